package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/jrsteele09/go-token-authority/users"
)

// BootstrapAdmin ensures an administrator principal exists so a fresh
// deployment can be managed. If BOOTSTRAP_ADMIN_PASSWORD is unset a random
// password is generated and printed once at startup.
func (s *Server) BootstrapAdmin(ctx context.Context) error {
	adminUsername := s.config.GetBootstrapAdminUsername()

	if _, err := s.repos.Users.GetByUsername(ctx, adminUsername); err == nil {
		log.Printf("Bootstrap: admin principal %q already exists", adminUsername)
		return nil
	}

	password := s.config.GetBootstrapAdminPassword()
	generated := password == ""
	if generated {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return fmt.Errorf("failed to generate admin password: %w", err)
		}
		password = base64.URLEncoding.EncodeToString(passwordBytes)
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &users.User{
		Username:     adminUsername,
		PasswordHash: passwordHash,
		Roles:        []users.RoleType{users.RoleAdmin},
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if err := s.repos.Users.Upsert(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin principal: %w", err)
	}

	log.Printf("Bootstrap: created admin principal %q", adminUsername)
	if generated {
		log.Printf("Bootstrap: admin password: %s", password)
		log.Printf("Bootstrap: SAVE THIS PASSWORD - it will not be displayed again")
	}
	return nil
}

package users

import (
	"fmt"
	"time"

	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a role name carried in access-token claims. The
// authority only records which roles a principal holds; interpreting them
// is left to the downstream services' permission gates.
type RoleType string

const (
	RoleAdmin   RoleType = "admin"   // Can manage principals and force-revoke sessions
	RoleUser    RoleType = "user"    // Regular authenticated principal
	RoleService RoleType = "service" // Programmatic caller (mail submission, storage, etc.)
)

// User is a principal known to the authority. A user is never hard-deleted
// while live tokens reference it; administrative removal flips Active to
// false and every outstanding token for the user stops verifying.
type User struct {
	ID           string     `json:"id,omitempty"`         // Unique identifier for the user
	Username     string     `json:"username,omitempty"`   // Login identifier
	PasswordHash string     `json:"-"`                    // Hashed version of the user's password - never serialize
	Roles        []RoleType `json:"roles,omitempty"`      // Role names embedded in issued tokens
	Active       bool       `json:"active"`               // Active, false means the principal is soft-disabled
	CreatedAt    time.Time  `json:"created_at,omitempty"` // When the principal was registered
	LastLogin    time.Time  `json:"last_login,omitempty"` // Last successful credential verification
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role RoleType) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the user can manage principals and sessions.
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// RoleStrings returns the role names as plain strings for token claims.
func (u *User) RoleStrings() []string {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	return roles
}

// RolesFromStrings converts claim values back to typed roles.
func RolesFromStrings(values []string) []RoleType {
	roles := make([]RoleType, 0, len(values))
	for _, v := range values {
		roles = append(roles, RoleType(v))
	}
	return roles
}

// Package auth is the service facade the transport layer talks to: login,
// session verification, refresh, logout, and administrative revocation.
// Every operation takes the token or credential as an argument and returns
// an explicit result; there is no in-process session table.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-token-authority/registry"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/token/refresh"
	"github.com/jrsteele09/go-token-authority/users"
)

// dummyPasswordHash is a bcrypt hash of a throwaway value. When the
// identifier is unknown the secret is still compared against this hash so
// "no such identifier" and "wrong secret" take the same time.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Repos holds all repository dependencies for the AuthService
type Repos struct {
	Users    users.UserRepo    // Repository for principal data
	Registry registry.Registry // Durable revocation registry
}

// AuthService wires the credential verifier, token issuer, and rotation
// engine behind the operations downstream services consume.
type AuthService struct {
	repos   Repos
	issuer  *token.Issuer
	rotator *refresh.Manager
	nowTime func() time.Time // nowTime function (injectable for testing)
}

// AuthServiceOption defines a function type to modify the AuthService instance.
type AuthServiceOption func(*AuthService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthServiceOption {
	return func(as *AuthService) {
		as.nowTime = nowFunc
	}
}

// NewAuthService initializes a new AuthService with required dependencies.
func NewAuthService(repos Repos, issuer *token.Issuer, rotator *refresh.Manager, options ...AuthServiceOption) (*AuthService, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewAuthService] Users repo is required")
	}
	if repos.Registry == nil {
		return nil, errors.New("[NewAuthService] Registry is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewAuthService] issuer is required")
	}
	if rotator == nil {
		return nil, errors.New("[NewAuthService] rotator is required")
	}

	authService := &AuthService{
		repos:   repos,
		issuer:  issuer,
		rotator: rotator,
		nowTime: time.Now,
	}

	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// Login verifies the identifier+secret pair and, on success, starts a new
// refresh chain and returns the token pair. All failure paths collapse to
// ErrInvalidCredential and the bcrypt comparison runs whether or not the
// identifier exists.
func (as *AuthService) Login(ctx context.Context, username, secret, deviceLabel string) (*token.TokenPair, error) {
	user, err := as.repos.Users.GetByUsername(ctx, username)
	if err != nil {
		users.CheckPasswordHash(secret, dummyPasswordHash)
		return nil, ErrInvalidCredential
	}

	if !users.CheckPasswordHash(secret, user.PasswordHash) {
		return nil, ErrInvalidCredential
	}

	if !user.Active {
		return nil, ErrInvalidCredential
	}

	user.LastLogin = as.nowTime()
	if err := as.repos.Users.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[AuthService.Login] update last login")
	}

	return as.issuer.Issue(ctx, user, deviceLabel, "", "")
}

// VerifySession checks an access token, whether presented as a bearer
// header value or a browser cookie value; the semantics are identical.
func (as *AuthService) VerifySession(ctx context.Context, rawToken string) (*token.Identity, error) {
	return as.issuer.Verify(ctx, rawToken)
}

// Refresh rotates a refresh token into a new access+refresh pair.
func (as *AuthService) Refresh(ctx context.Context, refreshToken string) (*token.TokenPair, error) {
	return as.rotator.Rotate(ctx, refreshToken)
}

// RevokeAccessToken tombstones the jti of a raw access token.
func (as *AuthService) RevokeAccessToken(ctx context.Context, rawToken string) error {
	return as.issuer.RevokeAccessToken(ctx, rawToken)
}

// RevokeAccessTokenID tombstones a bare jti.
func (as *AuthService) RevokeAccessTokenID(ctx context.Context, jti string) error {
	return as.issuer.RevokeAccessTokenID(ctx, jti)
}

// RevokeRefreshToken marks a single refresh token revoked. Idempotent; an
// unknown token is acknowledged without complaint so callers cannot probe
// for which tokens exist.
func (as *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return as.repos.Registry.MarkRefreshTokenRevoked(ctx, refreshToken)
}

// Logout ends a browser session: the access token's jti is tombstoned and,
// if a refresh token accompanies it, its whole chain is retired.
func (as *AuthService) Logout(ctx context.Context, rawAccessToken, refreshToken string) error {
	if rawAccessToken != "" {
		if err := as.issuer.RevokeAccessToken(ctx, rawAccessToken); err != nil && !errors.Is(err, token.ErrMalformed) {
			return errors.Wrap(err, "[AuthService.Logout] revoke access token")
		}
	}

	if refreshToken == "" {
		return nil
	}
	rec, err := as.repos.Registry.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "[AuthService.Logout] refresh lookup")
	}
	return as.repos.Registry.RevokeChain(ctx, rec.ChainID)
}

// RevokeAllForSubject force-logs-out every session of a principal:
// every refresh token is revoked across all chains. Outstanding access
// tokens drain within their short TTL; verification also fails at once if
// the principal is disabled in the same administrative action.
func (as *AuthService) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	return as.repos.Registry.RevokeAllForSubject(ctx, subjectID)
}

// CreateUser registers a new principal. Password strength is enforced
// here so every registration surface shares the same policy.
func (as *AuthService) CreateUser(ctx context.Context, username, password string, roles []users.RoleType) (*users.User, error) {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return nil, err
	}
	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthService.CreateUser] hash password")
	}

	user := &users.User{
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        roles,
		Active:       true,
		CreatedAt:    as.nowTime(),
	}
	if err := as.repos.Users.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[AuthService.CreateUser] upsert")
	}
	return user, nil
}

// SetUserActive soft-enables or soft-disables a principal. Disabling does
// not cascade deletes: outstanding tokens fail lazily at verification.
func (as *AuthService) SetUserActive(ctx context.Context, id string, active bool) error {
	return as.repos.Users.SetActive(ctx, id, active)
}

// CleanupExpired removes expired tombstones and refresh records. Called on
// a housekeeping schedule; correctness never depends on it.
func (as *AuthService) CleanupExpired(ctx context.Context) error {
	return as.repos.Registry.DeleteExpired(ctx, as.nowTime())
}

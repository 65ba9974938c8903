// Package refresh implements refresh-token rotation with reuse detection.
// Every successful rotation retires the presented token and mints a
// successor in the same chain; a second use of an already-retired token is
// treated as evidence of theft and revokes the whole chain, forcing the
// legitimate session to re-authenticate as well.
package refresh

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-token-authority/registry"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/users"
)

// Rotation failure kinds.
var (
	ErrInvalid = errors.New("invalid refresh token")
	ErrExpired = errors.New("refresh token expired")

	// ErrReused marks a reuse event: the presented token was already
	// consumed. By the time the caller sees this the containing chain has
	// been revoked.
	ErrReused = errors.New("refresh token reused")
)

// Manager handles refresh token validation and rotation.
type Manager struct {
	reg      registry.Registry
	issuer   *token.Issuer
	userRepo users.UserRepo
	nowFunc  func() time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates a new rotation manager.
func NewManager(reg registry.Registry, issuer *token.Issuer, userRepo users.UserRepo, options ...ManagerOption) *Manager {
	m := &Manager{
		reg:      reg,
		issuer:   issuer,
		userRepo: userRepo,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Rotate validates the presented refresh token and, on success, retires it
// and mints a new access+refresh pair in the same chain. The retire step is
// a conditional write on the revoked flag: of two concurrent rotations with
// the same token exactly one wins, and the loser is handled as a reuse
// event. Retire-then-mint is the registry-level test-and-set that keeps a
// consumed token from ever minting twice; a crash between the two steps
// costs the caller a re-login, never a duplicated chain tip.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (*token.TokenPair, error) {
	rec, err := m.reg.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrInvalid
		}
		return nil, errors.Wrap(err, "[Manager.Rotate] registry lookup")
	}

	if rec.Revoked {
		return nil, m.containReuse(ctx, rec)
	}

	if rec.Expired(m.nowFunc()) {
		return nil, ErrExpired
	}

	won, err := m.reg.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Rotate] consume")
	}
	if !won {
		// Another caller consumed the token between our read and write.
		return nil, m.containReuse(ctx, rec)
	}

	user, err := m.userRepo.GetByID(ctx, rec.SubjectID)
	if err != nil || !user.Active {
		// Disabled principals invalidate their chains lazily, here.
		return nil, ErrInvalid
	}

	pair, err := m.issuer.Issue(ctx, user, rec.DeviceLabel, rec.ChainID, rec.Token)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// containReuse revokes the entire chain the reused token belongs to and
// reports the reuse. Revoking broadly over narrowly: a possibly-stolen
// token family is worth less than a forced re-login.
func (m *Manager) containReuse(ctx context.Context, rec *registry.RefreshTokenRecord) error {
	if err := m.reg.RevokeChain(ctx, rec.ChainID); err != nil {
		// Fall back to the blunt instrument rather than leave the chain alive.
		if subjErr := m.reg.RevokeAllForSubject(ctx, rec.SubjectID); subjErr != nil {
			return errors.Wrap(subjErr, "[Manager.containReuse] revoke all for subject")
		}
	}
	return ErrReused
}

// Package registry defines the revocation registry: the durable source of
// truth for "is this token still good". It stores revoked access-token ids
// (tombstones kept until the token's natural expiry) and refresh-token
// records forming a rotation chain per login session.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a refresh token is absent from the registry.
var ErrNotFound = errors.New("refresh token not found")

// RefreshTokenRecord is the server-side record behind an opaque refresh
// token. The client only ever sees the Token string. Each successful
// rotation creates a new record whose ParentToken is the one just consumed;
// ChainID ties the whole login session together so a reuse event can revoke
// every descendant in one write.
type RefreshTokenRecord struct {
	Token       string    // The opaque random token string (sent to client)
	SubjectID   string    // Principal the chain belongs to
	ChainID     string    // Stable id for the login session's rotation chain
	ParentToken string    // Token consumed to mint this one; empty for a fresh login
	DeviceLabel string    // Caller-supplied device/context label
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
}

// Expired reports whether the record is past its expiry at the given time.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Registry is the shared durable store consulted on every verification and
// written on every revocation. A revoke must become visible to every
// subsequent verify, including ones arriving at another process replica;
// implementations therefore sit on shared storage, with at most a
// short-TTL, revoke-invalidated cache in front.
type Registry interface {
	// RecordRevokedAccessToken tombstones an access-token jti until its
	// natural expiry. Recording the same jti twice is a no-op.
	RecordRevokedAccessToken(ctx context.Context, jti string, expiresAt time.Time) error

	// IsAccessTokenRevoked reports whether the jti has been tombstoned.
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	// CreateRefreshToken persists a new refresh-token record.
	CreateRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error

	// GetRefreshToken returns the record for the opaque token string, or
	// ErrNotFound.
	GetRefreshToken(ctx context.Context, token string) (*RefreshTokenRecord, error)

	// MarkRefreshTokenRevoked revokes a single refresh token. Idempotent;
	// revoking an unknown or already-revoked token is not an error.
	MarkRefreshTokenRevoked(ctx context.Context, token string) error

	// ConsumeRefreshToken conditionally revokes the token, succeeding only
	// if it is currently not revoked. It returns true when this call won
	// the transition; a false return means another caller consumed the
	// token first. This is the rotation engine's test-and-set.
	ConsumeRefreshToken(ctx context.Context, token string) (bool, error)

	// RevokeChain revokes every refresh token in a rotation chain.
	RevokeChain(ctx context.Context, chainID string) error

	// RevokeAllForSubject revokes every refresh token belonging to the
	// subject, across all chains. Used by administrative force-logout and
	// by reuse detection when chain ancestry is unavailable.
	RevokeAllForSubject(ctx context.Context, subjectID string) error

	// DeleteExpired removes tombstones and refresh records whose expiry
	// has passed. Expired rows are inert either way; this is housekeeping,
	// not correctness.
	DeleteExpired(ctx context.Context, now time.Time) error
}

// Package postgres provides the PostgreSQL-backed revocation registry.
// It is the shared durable store behind every verification and revocation;
// all replicas of the authority point at the same database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-token-authority/registry"
)

// DBTX is the subset of database/sql used by the registry, satisfied by
// both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Registry implements registry.Registry over a DBTX.
type Registry struct {
	db DBTX
}

var _ registry.Registry = (*Registry)(nil)

// New constructs a registry bound to the given DBTX.
func New(db DBTX) *Registry {
	return &Registry{db: db}
}

func (r *Registry) RecordRevokedAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, jti, expiresAt); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *Registry) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM revoked_access_tokens WHERE jti = $1)
	`
	var revoked bool
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&revoked); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return revoked, nil
}

func (r *Registry) CreateRefreshToken(ctx context.Context, rec *registry.RefreshTokenRecord) error {
	query := `
		INSERT INTO refresh_tokens (token, subject_id, chain_id, parent_token, device_label, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.Token, rec.SubjectID, rec.ChainID, rec.ParentToken, rec.DeviceLabel, rec.IssuedAt, rec.ExpiresAt, rec.Revoked)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *Registry) GetRefreshToken(ctx context.Context, token string) (*registry.RefreshTokenRecord, error) {
	query := `
		SELECT token, subject_id, chain_id, COALESCE(parent_token, ''), device_label, issued_at, expires_at, revoked
		FROM refresh_tokens
		WHERE token = $1
	`
	rec := &registry.RefreshTokenRecord{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&rec.Token, &rec.SubjectID, &rec.ChainID, &rec.ParentToken, &rec.DeviceLabel, &rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *Registry) MarkRefreshTokenRevoked(ctx context.Context, token string) error {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ConsumeRefreshToken relies on the conditional UPDATE for mutual
// exclusion: of two concurrent rotations only one affects a row.
func (r *Registry) ConsumeRefreshToken(ctx context.Context, token string) (bool, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected == 1, nil
}

func (r *Registry) RevokeChain(ctx context.Context, chainID string) error {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE chain_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, chainID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Registry) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE subject_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, subjectID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Registry) DeleteExpired(ctx context.Context, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM revoked_access_tokens WHERE expires_at < $1`, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Package postgres provides the PostgreSQL-backed principal repository.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jrsteele09/go-token-authority/users"
)

// ErrNotFound is returned when no principal matches the lookup.
var ErrNotFound = errors.New("user not found")

// DBTX is the subset of database/sql used by the repository, satisfied by
// both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type UserRepo struct {
	db DBTX
}

var _ users.UserRepo = (*UserRepo)(nil)

func New(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Upsert(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO users (id, username, password_hash, roles, active, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '0001-01-01T00:00:00Z'::timestamptz))
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			roles = EXCLUDED.roles,
			active = EXCLUDED.active,
			last_login = EXCLUDED.last_login
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.PasswordHash, rolesArray(user.Roles), user.Active, user.CreatedAt, user.LastLogin)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	query := `
		SELECT id, username, password_hash, roles, active, created_at, COALESCE(last_login, '0001-01-01T00:00:00Z'::timestamptz)
		FROM users
		WHERE username = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	query := `
		SELECT id, username, password_hash, roles, active, created_at, COALESCE(last_login, '0001-01-01T00:00:00Z'::timestamptz)
		FROM users
		WHERE id = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepo) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE users SET active = $2
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, username, password_hash, roles, active, created_at, COALESCE(last_login, '0001-01-01T00:00:00Z'::timestamptz)
		FROM users
		ORDER BY username
		OFFSET $1 LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*users.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepo) scanUser(row rowScanner) (*users.User, error) {
	user := &users.User{}
	var roles pgtype.FlatArray[string]
	m := pgtype.NewMap()

	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, m.SQLScanner(&roles), &user.Active, &user.CreatedAt, &user.LastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.Roles = users.RolesFromStrings(roles)
	return user, nil
}

func rolesArray(roles []users.RoleType) pgtype.FlatArray[string] {
	values := make([]string, 0, len(roles))
	for _, role := range roles {
		values = append(values, string(role))
	}
	return pgtype.FlatArray[string](values)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jrsteele09/go-token-authority/registry"
)

func newRegistryWithMock(t *testing.T) (*Registry, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return New(db), mock, db
}

func TestRecordRevokedAccessToken_Success(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+revoked_access_tokens\b.*ON\s+CONFLICT\s+\(jti\)\s+DO\s+NOTHING\s*$`

	mock.ExpectExec(q).
		WithArgs("jti-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := reg.RecordRevokedAccessToken(context.Background(), "jti-1", time.Now().Add(15*time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIsAccessTokenRevoked(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+revoked_access_tokens\s+WHERE\s+jti\s*=\s*\$1\)\s*$`

	mock.ExpectQuery(q).
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := reg.IsAccessTokenRevoked(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected revoked = true")
	}
}

func TestCreateRefreshToken_DBError(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\b`

	mock.ExpectExec(q).
		WillReturnError(errors.New("db down"))

	err := reg.CreateRefreshToken(context.Background(), &registry.RefreshTokenRecord{
		Token:     "tok-1",
		SubjectID: "u1",
		ChainID:   "c1",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetRefreshToken_Found(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+token,\s*subject_id,\s*chain_id,.*FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`

	issued := time.Now()
	expires := issued.Add(time.Hour)
	rows := sqlmock.NewRows([]string{"token", "subject_id", "chain_id", "parent_token", "device_label", "issued_at", "expires_at", "revoked"}).
		AddRow("tok-1", "u1", "c1", "", "cli", issued, expires, false)

	mock.ExpectQuery(q).
		WithArgs("tok-1").
		WillReturnRows(rows)

	got, err := reg.GetRefreshToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SubjectID != "u1" || got.ChainID != "c1" || got.Revoked || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGetRefreshToken_NotFound(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+token,\s*subject_id,\s*chain_id,.*FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`

	mock.ExpectQuery(q).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := reg.GetRefreshToken(context.Background(), "missing")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("want registry.ErrNotFound, got %v", err)
	}
}

func TestConsumeRefreshToken_Winner(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+token\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE\s*$`

	mock.ExpectExec(q).
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := reg.ConsumeRefreshToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !won {
		t.Fatalf("expected the conditional update to win")
	}
}

func TestConsumeRefreshToken_AlreadyConsumed(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+token\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE\s*$`

	mock.ExpectExec(q).
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := reg.ConsumeRefreshToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if won {
		t.Fatalf("expected the conditional update to lose")
	}
}

func TestRevokeChain(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+chain_id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := reg.RevokeChain(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	reg, mock, db := newRegistryWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+revoked_access_tokens\s+WHERE\s+expires_at\s*<\s*\$1\s*$`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<\s*\$1\s*$`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	if err := reg.DeleteExpired(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

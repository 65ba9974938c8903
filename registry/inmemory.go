package registry

import (
	"context"
	"sync"
	"time"
)

// InMemoryRegistry is a mutex-guarded map implementation. It serves tests
// and single-process deployments; multi-replica setups need the shared
// postgres store since revocations here are invisible to other processes.
type InMemoryRegistry struct {
	revokedJTIs map[string]time.Time
	refresh     map[string]*RefreshTokenRecord
	mu          sync.RWMutex
}

var _ Registry = (*InMemoryRegistry)(nil)

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		revokedJTIs: make(map[string]time.Time),
		refresh:     make(map[string]*RefreshTokenRecord),
	}
}

func (r *InMemoryRegistry) RecordRevokedAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokedJTIs[jti] = expiresAt
	return nil
}

func (r *InMemoryRegistry) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.revokedJTIs[jti]
	return exists, nil
}

func (r *InMemoryRegistry) CreateRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *rec
	r.refresh[rec.Token] = &copied
	return nil
}

func (r *InMemoryRegistry) GetRefreshToken(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.refresh[token]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *InMemoryRegistry) MarkRefreshTokenRevoked(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.refresh[token]; ok {
		rec.Revoked = true
	}
	return nil
}

func (r *InMemoryRegistry) ConsumeRefreshToken(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.refresh[token]
	if !ok || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	return true, nil
}

func (r *InMemoryRegistry) RevokeChain(ctx context.Context, chainID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.refresh {
		if rec.ChainID == chainID {
			rec.Revoked = true
		}
	}
	return nil
}

func (r *InMemoryRegistry) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.refresh {
		if rec.SubjectID == subjectID {
			rec.Revoked = true
		}
	}
	return nil
}

func (r *InMemoryRegistry) DeleteExpired(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for jti, exp := range r.revokedJTIs {
		if now.After(exp) {
			delete(r.revokedJTIs, jti)
		}
	}
	for token, rec := range r.refresh {
		if now.After(rec.ExpiresAt) {
			delete(r.refresh, token)
		}
	}
	return nil
}

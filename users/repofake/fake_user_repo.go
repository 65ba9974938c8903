package fakeuserrepo

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-authority/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

var ErrNotFound = errors.New("user not found")

type FakeUserRepo struct {
	users       map[string]*users.User
	usernameIds map[string]string // username to user id
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*users.User),
		usernameIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(ctx context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	copied := *user
	ur.users[user.ID] = &copied
	ur.usernameIds[user.Username] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userID, ok := ur.usernameIds[username]
	if !ok {
		return nil, ErrNotFound
	}
	user, ok := ur.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (ur *FakeUserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (ur *FakeUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return ErrNotFound
	}
	user.Active = active
	return nil
}

func (ur *FakeUserRepo) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	all := make([]*users.User, 0, len(ur.users))
	for _, user := range ur.users {
		copied := *user
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

package users

import "context"

type UserRepo interface {
	Upsert(ctx context.Context, user *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context, offset, limit int) ([]*User, error)
}

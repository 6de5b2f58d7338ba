package port

import (
	"context"
	"errors"

	"tickcast/internal/domain/model"
)

var ErrUserNotFound = errors.New("user not found")

// UserLookup resolves a user id; it returns ErrUserNotFound for unknown ids.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

type UserRepository interface {
	UserLookup

	FindByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	MaxUserID(ctx context.Context) (int64, error)

	// Connection management
	Close() error
}

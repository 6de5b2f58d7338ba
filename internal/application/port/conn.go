package port

import (
	"context"
	"errors"

	"tickcast/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid connection token")
	ErrUnknownUser  = errors.New("unknown user")
)

// Conn is a live push-capable connection owned by one user.
type Conn interface {
	ID() string
	// Push delivers one projection. It must honour ctx's deadline.
	Push(ctx context.Context, p domain.Projection) error
	Close() error
}

// TokenValidator maps a handshake token to a user id.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (int64, error)
}

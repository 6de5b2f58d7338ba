package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tickcast/internal/application/port"
)

// UserIDToken treats the bare numeric user id as the token. There is no
// signature or expiry; swap in another port.TokenValidator for real credentials.
type UserIDToken struct {
	users port.UserLookup
}

func NewUserIDToken(users port.UserLookup) *UserIDToken {
	return &UserIDToken{users: users}
}

func (v *UserIDToken) Validate(ctx context.Context, token string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(token), 10, 64)
	if err != nil || id <= 0 {
		return 0, port.ErrInvalidToken
	}
	if _, err := v.users.GetUser(ctx, id); err != nil {
		if errors.Is(err, port.ErrUserNotFound) {
			return 0, port.ErrUnknownUser
		}
		return 0, fmt.Errorf("lookup user %d: %w", id, err)
	}
	return id, nil
}

var _ port.TokenValidator = (*UserIDToken)(nil)

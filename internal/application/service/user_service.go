package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tickcast/internal/application/port"
	"tickcast/internal/domain/model"
)

var ErrEmptyEmail = errors.New("email is empty")

// SubscriptionStore is the part of the subscription registry the login flow needs.
type SubscriptionStore interface {
	Ensure(userID int64)
	Subscribe(userID int64, symbol string) ([]string, error)
	Get(userID int64) []string
}

// SeedUser is a user known before the first login.
type SeedUser struct {
	ID            int64
	Email         string
	Name          string
	Subscriptions []string
}

type LoginResult struct {
	User          *model.User
	Subscriptions []string
	Created       bool
}

// UserService issues user ids to any presented email, creating the user on first sight.
type UserService struct {
	repo port.UserRepository
	subs SubscriptionStore

	mu     sync.Mutex
	nextID int64
}

func NewUserService(ctx context.Context, repo port.UserRepository, subs SubscriptionStore) (*UserService, error) {
	maxID, err := repo.MaxUserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read max user id: %w", err)
	}
	return &UserService{repo: repo, subs: subs, nextID: maxID + 1}, nil
}

// Seed inserts users with their initial subscriptions. Seeds without an
// ID take the next free one.
func (s *UserService) Seed(ctx context.Context, seeds []SeedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, su := range seeds {
		email := strings.TrimSpace(su.Email)
		if email == "" {
			return ErrEmptyEmail
		}
		id := su.ID
		if id <= 0 {
			id = s.nextID
		}
		name := su.Name
		if name == "" {
			name = nameFromEmail(email)
		}
		u := &model.User{ID: id, Name: name, Email: email, CreatedAt: time.Now().UnixMilli()}
		if err := s.repo.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", email, err)
		}
		if id >= s.nextID {
			s.nextID = id + 1
		}

		s.subs.Ensure(id)
		for _, sym := range su.Subscriptions {
			if _, err := s.subs.Subscribe(id, sym); err != nil {
				return fmt.Errorf("seed user %s: %s: %w", email, sym, err)
			}
		}
	}
	return nil
}

// Login returns the user for email, creating it (and an empty
// subscription set) when the email is new. No password is checked.
func (s *UserService) Login(ctx context.Context, email string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmptyEmail
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		log.Info().Str("email", email).Int64("user_id", u.ID).Msg("existing user logged in")
		return &LoginResult{User: u, Subscriptions: s.subs.Get(u.ID)}, nil
	case !errors.Is(err, port.ErrUserNotFound):
		return nil, fmt.Errorf("find user: %w", err)
	}

	u = &model.User{
		ID:        s.nextID,
		Name:      nameFromEmail(email),
		Email:     email,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.nextID++
	s.subs.Ensure(u.ID)

	log.Info().Str("email", email).Int64("user_id", u.ID).Msg("new user registered")
	return &LoginResult{User: u, Subscriptions: s.subs.Get(u.ID), Created: true}, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUser(ctx, id)
}

func nameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

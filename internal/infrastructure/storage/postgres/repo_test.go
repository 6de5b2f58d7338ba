package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"tickcast/internal/application/port"
	"tickcast/internal/domain/model"
)

// Needs a live server: TICKCAST_TEST_POSTGRES_DSN=postgres://...
func TestPostgresRepoLive(t *testing.T) {
	dsn := os.Getenv("TICKCAST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TICKCAST_TEST_POSTGRES_DSN not set")
	}
	repo, err := New(dsn)
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	if id, err := repo.MaxUserID(ctx); err != nil || id != 0 {
		t.Fatalf("table should start empty, got %d, %v", id, err)
	}

	u := &model.User{ID: 7, Name: "Alice", Email: "user1@example.com", CreatedAt: 1}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	got, err := repo.FindByEmail(ctx, "user1@example.com")
	if err != nil || *got != *u {
		t.Errorf("FindByEmail: got %+v, %v", got, err)
	}
	if id, _ := repo.MaxUserID(ctx); id != 7 {
		t.Errorf("expected max id 7, got %d", id)
	}
	if _, err := repo.GetUser(ctx, 8); !errors.Is(err, port.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"tickcast/internal/application/port"
	"tickcast/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

// New opens the user directory at path (":memory:" by default). The
// users table is recreated on every start: identities live for one
// process lifetime only.
func New(path string) (*Repo, error) {
	// ensure directory exists
	if !strings.Contains(path, ":memory:") {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
DROP TABLE IF EXISTS users;
CREATE TABLE users (
  id INTEGER PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`)
	return err
}

func (r *Repo) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM users WHERE id=?`, id))
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM users WHERE email=?`, email))
}

func (r *Repo) CreateUser(ctx context.Context, u *model.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users(id, email, name, created_at) VALUES(?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.CreatedAt)
	return err
}

func (r *Repo) MaxUserID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(id) FROM users`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (r *Repo) scanOne(row *sql.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ port.UserRepository = (*Repo)(nil)

package postgres

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tickcast/internal/application/port"
	"tickcast/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

// New connects through the pgx stdlib driver. Like the sqlite repo, the
// users table is recreated so identities do not outlive the process.
func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
DROP TABLE IF EXISTS tickcast_users;
CREATE TABLE tickcast_users (
  id BIGINT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`)
	return err
}

func (r *Repo) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanOne(r.db.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM tickcast_users WHERE id=$1`, id))
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanOne(r.db.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM tickcast_users WHERE email=$1`, email))
}

func (r *Repo) CreateUser(ctx context.Context, u *model.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO tickcast_users(id, email, name, created_at) VALUES($1, $2, $3, $4)`,
		u.ID, u.Email, u.Name, u.CreatedAt)
	return err
}

func (r *Repo) MaxUserID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(id) FROM tickcast_users`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func scanOne(row *sql.Row) (*model.User, error) {
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

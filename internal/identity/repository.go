package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(username, ''), role`

// PostgresDirectory implements Directory over the shared users table.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

// NewPostgresDirectory builds a Postgres-backed directory.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// FindByID implements Directory.
func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (User, error) {
	return d.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// Resolve implements Directory. Email matches case-insensitively.
func (d *PostgresDirectory) Resolve(ctx context.Context, identifier string) (User, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return User{}, ErrUserNotFound
	}
	return d.one(ctx, `SELECT `+userColumns+` FROM users
        WHERE id = $1 OR LOWER(email) = LOWER($1) OR phone = $1 OR username = $1
        ORDER BY (id = $1) DESC
        LIMIT 1`, identifier)
}

func (d *PostgresDirectory) one(ctx context.Context, query string, arg string) (User, error) {
	var u User
	err := d.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Phone, &u.Username, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

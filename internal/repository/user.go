package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/hireloop/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

const userColumns = `id, email, name, title, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Title, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Emails are stored trimmed and lowercased; lookups normalize the same way.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.Title, u.CreatedAt, u.UpdatedAt)
	switch {
	case isUniqueViolation(err):
		return ErrEmailExists
	case err != nil:
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := queryOne(ctx, r, scanUser, ErrUserNotFound,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, err
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := queryOne(ctx, r, scanUser, ErrUserNotFound,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, err
}

// GetOrCreateUser returns the user owning u.Email, inserting u when there
// is none. The no-op update makes RETURNING yield the existing row on
// conflict, so concurrent signups with one email converge on one user.
func (r *Repository) GetOrCreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	got, err := scanUser(r.db(ctx).QueryRow(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING `+userColumns,
		u.ID, normalizeEmail(u.Email), u.Name, u.Title, u.CreatedAt, u.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	return got, nil
}

// UpdateUser writes the profile fields. Email is immutable.
func (r *Repository) UpdateUser(ctx context.Context, u *model.User) error {
	err := r.execOne(ctx, ErrUserNotFound,
		`UPDATE users SET name = $2, title = $3, updated_at = $4 WHERE id = $1`,
		u.ID, u.Name, u.Title, u.UpdatedAt)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("update user: %w", err)
	}
	return err
}

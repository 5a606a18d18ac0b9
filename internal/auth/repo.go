package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUsername fetches an account by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return r.find(ctx, `SELECT id, username, password_hash, role, manager_id, is_active FROM users WHERE username = $1`, username)
}

// FindByID fetches an account by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Account, error) {
	return r.find(ctx, `SELECT id, username, password_hash, role, manager_id, is_active FROM users WHERE id = $1`, id)
}

func (r *PGRepository) find(ctx context.Context, query string, arg any) (*Account, error) {
	var (
		account Account
		role    string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&account.ID, &account.Username, &account.PasswordHash, &role, &account.ManagerID, &account.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	parsed, err := authz.ParseRole(role)
	if err != nil {
		return nil, err
	}
	account.Role = parsed
	return &account, nil
}

var _ Repository = (*PGRepository)(nil)

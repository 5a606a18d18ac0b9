package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, scope authz.Scope, actorID int64) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, user User, passwordHash string) (User, error)
	Update(ctx context.Context, user User, passwordHash string) (User, error)
	Delete(ctx context.Context, id int64) error
	AdminExists(ctx context.Context) (bool, error)
	HasActivity(ctx context.Context, id int64) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, email, first_name, last_name, role, manager_id, is_active, created_at, updated_at`

// List returns the users visible under the given scope.
func (r *Repository) List(ctx context.Context, scope authz.Scope, actorID int64) ([]User, error) {
	var (
		query string
		args  []any
	)
	switch scope {
	case authz.ScopeAll:
		query = `SELECT ` + userColumns + ` FROM users ORDER BY id`
	case authz.ScopeTeam:
		query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 OR manager_id = $1 ORDER BY id`
		args = append(args, actorID)
	case authz.ScopeSubordinates:
		query = `SELECT ` + userColumns + ` FROM users WHERE manager_id = $1 ORDER BY id`
		args = append(args, actorID)
	case authz.ScopeSelf:
		query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
		args = append(args, actorID)
	default:
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// Get fetches a user by primary key.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// Create inserts a new user row.
func (r *Repository) Create(ctx context.Context, user User, passwordHash string) (User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, first_name, last_name, role, manager_id, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		 RETURNING `+userColumns,
		user.Username, user.Email, passwordHash, user.FirstName, user.LastName, string(user.Role), user.ManagerID)
	created, err := scanUser(row)
	if err != nil {
		return User{}, mapConstraint(err)
	}
	return created, nil
}

// Update rewrites the mutable columns. An empty passwordHash keeps the
// stored hash.
func (r *Repository) Update(ctx context.Context, user User, passwordHash string) (User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET
			email = $2,
			first_name = $3,
			last_name = $4,
			role = $5,
			manager_id = $6,
			is_active = $7,
			password_hash = CASE WHEN $8 = '' THEN password_hash ELSE $8 END,
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		user.ID, user.Email, user.FirstName, user.LastName, string(user.Role), user.ManagerID, user.IsActive, passwordHash)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, mapConstraint(err)
	}
	return updated, nil
}

// Delete removes a user row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// AdminExists reports whether any admin account exists, for the bootstrap
// exception.
func (r *Repository) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role = 'admin')`).Scan(&exists)
	return exists, err
}

// HasActivity reports whether the user owns time entries or monthly reports.
func (r *Repository) HasActivity(ctx context.Context, id int64) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM time_entries WHERE user_id = $1)
		     OR EXISTS (SELECT 1 FROM monthly_reports WHERE user_id = $1)`, id).Scan(&has)
	return has, err
}

func scanUsers(rows pgx.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user User
		role string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
		&role, &user.ManagerID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	parsed, err := authz.ParseRole(role)
	if err != nil {
		return User{}, err
	}
	user.Role = parsed
	return user, nil
}

// mapConstraint converts PostgreSQL constraint violations into the shared
// error taxonomy.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return httpx.ErrConflict
		case "23503":
			return httpx.ErrConflict
		}
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)

package projects

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/db"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
)

// RepositoryPort defines data access methods for projects and their member
// sets.
type RepositoryPort interface {
	List(ctx context.Context, scope authz.Scope, actorID int64) ([]Project, error)
	Get(ctx context.Context, id int64) (Project, error)
	Create(ctx context.Context, p Project) (Project, error)
	Update(ctx context.Context, p Project) (Project, error)
	Delete(ctx context.Context, id int64) error
	MemberIDs(ctx context.Context, projectID int64) ([]int64, error)
	IsMember(ctx context.Context, projectID, userID int64) (bool, error)
	ReplaceMembers(ctx context.Context, projectID int64, userIDs []int64) error
	SubjectsByIDs(ctx context.Context, ids []int64) ([]authz.Subject, error)
	SubjectByID(ctx context.Context, id int64) (authz.Subject, error)
	CountManagedBy(ctx context.Context, managerID, excludeProjectID int64) (int64, error)
	HasEntries(ctx context.Context, projectID int64) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const projectColumns = `id, name, description, manager_id, created_at, updated_at`

// List returns the projects visible under the given scope. ScopeTeam means
// managed-or-assigned, ScopeSelf means assigned.
func (r *Repository) List(ctx context.Context, scope authz.Scope, actorID int64) ([]Project, error) {
	var (
		query string
		args  []any
	)
	switch scope {
	case authz.ScopeAll:
		query = `SELECT ` + projectColumns + ` FROM projects ORDER BY id`
	case authz.ScopeTeam:
		query = `SELECT ` + projectColumns + ` FROM projects
			 WHERE manager_id = $1
			    OR id IN (SELECT project_id FROM project_members WHERE user_id = $1)
			 ORDER BY id`
		args = append(args, actorID)
	case authz.ScopeSelf:
		query = `SELECT ` + projectColumns + ` FROM projects
			 WHERE id IN (SELECT project_id FROM project_members WHERE user_id = $1)
			 ORDER BY id`
		args = append(args, actorID)
	default:
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Get fetches a project by primary key.
func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, httpx.ErrNotFound
		}
		return Project{}, err
	}
	return p, nil
}

// Create inserts a new project row.
func (r *Repository) Create(ctx context.Context, p Project) (Project, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO projects (name, description, manager_id)
		 VALUES ($1, $2, $3)
		 RETURNING `+projectColumns,
		p.Name, p.Description, p.ManagerID)
	created, err := scanProject(row)
	if err != nil {
		return Project{}, mapConstraint(err)
	}
	return created, nil
}

// Update rewrites the mutable columns.
func (r *Repository) Update(ctx context.Context, p Project) (Project, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE projects SET name = $2, description = $3, manager_id = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+projectColumns,
		p.ID, p.Name, p.Description, p.ManagerID)
	updated, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, httpx.ErrNotFound
		}
		return Project{}, mapConstraint(err)
	}
	return updated, nil
}

// Delete removes a project and its member rows.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return mapConstraint(err)
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return nil
	})
}

// MemberIDs returns the ids of the project's assigned users, sorted.
func (r *Repository) MemberIDs(ctx context.Context, projectID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM project_members WHERE project_id = $1 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsMember reports whether the user belongs to the project's member set.
func (r *Repository) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	var is bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)`,
		projectID, userID).Scan(&is)
	return is, err
}

// ReplaceMembers swaps the project's member set for the given user ids in a
// single transaction.
func (r *Repository) ReplaceMembers(ctx context.Context, projectID int64, userIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1`, projectID); err != nil {
			return err
		}
		for _, userID := range userIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO project_members (project_id, user_id) VALUES ($1, $2)`,
				projectID, userID); err != nil {
				return mapConstraint(err)
			}
		}
		return nil
	})
}

// SubjectsByIDs loads the ownership facts of the given users, in input
// order. Missing ids are simply absent from the result.
func (r *Repository) SubjectsByIDs(ctx context.Context, ids []int64) ([]authz.Subject, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, role, manager_id FROM users WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []authz.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// SubjectByID loads the ownership facts of a single user.
func (r *Repository) SubjectByID(ctx context.Context, id int64) (authz.Subject, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, role, manager_id FROM users WHERE id = $1`, id)
	s, err := scanSubject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Subject{}, httpx.ErrNotFound
		}
		return authz.Subject{}, err
	}
	return s, nil
}

// CountManagedBy counts the projects managed by the given user, optionally
// excluding one project id (the one being updated).
func (r *Repository) CountManagedBy(ctx context.Context, managerID, excludeProjectID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM projects WHERE manager_id = $1 AND id <> $2`,
		managerID, excludeProjectID).Scan(&n)
	return n, err
}

// HasEntries reports whether any time entry references the project.
func (r *Repository) HasEntries(ctx context.Context, projectID int64) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM time_entries WHERE project_id = $1)`, projectID).Scan(&has)
	return has, err
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ManagerID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanSubject(row pgx.Row) (authz.Subject, error) {
	var (
		s    authz.Subject
		role string
	)
	if err := row.Scan(&s.ID, &s.Username, &role, &s.ManagerID); err != nil {
		return authz.Subject{}, err
	}
	parsed, err := authz.ParseRole(role)
	if err != nil {
		return authz.Subject{}, err
	}
	s.Role = parsed
	return s, nil
}

// mapConstraint converts PostgreSQL constraint violations into the shared
// error taxonomy.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return httpx.ErrConflict
		}
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)

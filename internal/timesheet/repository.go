package timesheet

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/db"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// TxOps is the slice of repository behaviour available inside a mutation
// transaction. DayTotalForUpdate serializes writers on the (user, date) pair
// so two concurrent writers cannot jointly pass the ceiling.
type TxOps interface {
	DayTotalForUpdate(ctx context.Context, userID int64, date time.Time, excludeID int64) (float64, error)
	Insert(ctx context.Context, e TimeEntry) (TimeEntry, error)
	Update(ctx context.Context, e TimeEntry) (TimeEntry, error)
	Delete(ctx context.Context, id int64) error
	RecomputeReportTotal(ctx context.Context, userID int64, month shared.Month) error
}

// RepositoryPort defines data access methods for time entries.
type RepositoryPort interface {
	List(ctx context.Context, scope authz.Scope, actorID int64) ([]TimeEntry, error)
	ListForUserMonth(ctx context.Context, userID int64, month shared.Month) ([]TimeEntry, error)
	Get(ctx context.Context, id int64) (TimeEntry, error)
	OwnerSubject(ctx context.Context, userID int64) (authz.Subject, error)
	ProjectManager(ctx context.Context, projectID int64) (int64, error)
	MonthFinal(ctx context.Context, userID int64, month shared.Month) (bool, error)
	Mutate(ctx context.Context, fn func(TxOps) error) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, user_id, project_id, date, days, description, created_at, updated_at`

// List returns the entries visible under the given scope, newest date first.
func (r *Repository) List(ctx context.Context, scope authz.Scope, actorID int64) ([]TimeEntry, error) {
	var (
		query string
		args  []any
	)
	switch scope {
	case authz.ScopeAll:
		query = `SELECT ` + entryColumns + ` FROM time_entries ORDER BY date DESC, id`
	case authz.ScopeTeam:
		query = `SELECT ` + entryColumns + ` FROM time_entries
			 WHERE user_id = $1
			    OR user_id IN (SELECT id FROM users WHERE manager_id = $1)
			 ORDER BY date DESC, id`
		args = append(args, actorID)
	case authz.ScopeSelf:
		query = `SELECT ` + entryColumns + ` FROM time_entries WHERE user_id = $1 ORDER BY date DESC, id`
		args = append(args, actorID)
	default:
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListForUserMonth returns a user's entries within a calendar month, sorted
// by date.
func (r *Repository) ListForUserMonth(ctx context.Context, userID int64, month shared.Month) ([]TimeEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE user_id = $1 AND date >= $2 AND date < $3
		 ORDER BY date, id`,
		userID, month.First(), month.Next())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Get fetches an entry by primary key.
func (r *Repository) Get(ctx context.Context, id int64) (TimeEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TimeEntry{}, httpx.ErrNotFound
		}
		return TimeEntry{}, err
	}
	return e, nil
}

// OwnerSubject loads the ownership facts of the entry's owner.
func (r *Repository) OwnerSubject(ctx context.Context, userID int64) (authz.Subject, error) {
	var (
		s    authz.Subject
		role string
	)
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, role, manager_id FROM users WHERE id = $1`, userID)
	if err := row.Scan(&s.ID, &s.Username, &role, &s.ManagerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Subject{}, httpx.ErrNotFound
		}
		return authz.Subject{}, err
	}
	parsed, err := authz.ParseRole(role)
	if err != nil {
		return authz.Subject{}, err
	}
	s.Role = parsed
	return s, nil
}

// ProjectManager returns the manager id of a project.
func (r *Repository) ProjectManager(ctx context.Context, projectID int64) (int64, error) {
	var managerID int64
	err := r.pool.QueryRow(ctx, `SELECT manager_id FROM projects WHERE id = $1`, projectID).Scan(&managerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, httpx.ErrNotFound
	}
	return managerID, err
}

// MonthFinal reports whether the user's report for the month is final.
func (r *Repository) MonthFinal(ctx context.Context, userID int64, month shared.Month) (bool, error) {
	var final bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM monthly_reports WHERE user_id = $1 AND month = $2 AND status = 'final')`,
		userID, month.First()).Scan(&final)
	return final, err
}

// Mutate runs fn inside a read-committed transaction. The ceiling check
// depends on the advisory lock taken in DayTotalForUpdate, and a writer that
// waited on that lock must see rows committed while it waited; a
// repeatable-read snapshot would be pinned before the lock is acquired.
func (r *Repository) Mutate(ctx context.Context, fn func(TxOps) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(txOps{tx: tx})
	})
}

type txOps struct {
	tx pgx.Tx
}

// DayTotalForUpdate serializes writers on the (user, date) pair with a
// transaction-scoped advisory lock, then sums the date's entries excluding
// the entry being rewritten. Row locks cannot cover this: a date with no
// entries yet has no rows to lock, and two first writers would both see an
// empty day.
func (o txOps) DayTotalForUpdate(ctx context.Context, userID int64, date time.Time, excludeID int64) (float64, error) {
	if _, err := o.tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`,
		userID, date); err != nil {
		return 0, err
	}
	rows, err := o.tx.Query(ctx,
		`SELECT days FROM time_entries
		 WHERE user_id = $1 AND date = $2 AND id <> $3`,
		userID, date, excludeID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total float64
	for rows.Next() {
		var days float64
		if err := rows.Scan(&days); err != nil {
			return 0, err
		}
		total += days
	}
	return total, rows.Err()
}

// Insert creates an entry row inside the transaction.
func (o txOps) Insert(ctx context.Context, e TimeEntry) (TimeEntry, error) {
	row := o.tx.QueryRow(ctx,
		`INSERT INTO time_entries (user_id, project_id, date, days, description)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+entryColumns,
		e.UserID, e.ProjectID, e.Date, e.Days, e.Description)
	created, err := scanEntry(row)
	if err != nil {
		return TimeEntry{}, mapConstraint(err)
	}
	return created, nil
}

// Update rewrites an entry row inside the transaction.
func (o txOps) Update(ctx context.Context, e TimeEntry) (TimeEntry, error) {
	row := o.tx.QueryRow(ctx,
		`UPDATE time_entries SET project_id = $2, date = $3, days = $4, description = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+entryColumns,
		e.ID, e.ProjectID, e.Date, e.Days, e.Description)
	updated, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TimeEntry{}, httpx.ErrNotFound
		}
		return TimeEntry{}, mapConstraint(err)
	}
	return updated, nil
}

// Delete removes an entry row inside the transaction.
func (o txOps) Delete(ctx context.Context, id int64) error {
	tag, err := o.tx.Exec(ctx, `DELETE FROM time_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// RecomputeReportTotal rewrites the stored total of the user's draft report
// for the month from current entry state. Months without a report row are
// left alone; final reports never move.
func (o txOps) RecomputeReportTotal(ctx context.Context, userID int64, month shared.Month) error {
	_, err := o.tx.Exec(ctx,
		`UPDATE monthly_reports SET
			total_days = (SELECT COALESCE(SUM(days), 0) FROM time_entries
			              WHERE user_id = $1 AND date >= $2 AND date < $3),
			updated_at = NOW()
		 WHERE user_id = $1 AND month = $2 AND status = 'draft'`,
		userID, month.First(), month.Next())
	return err
}

func scanEntries(rows pgx.Rows) ([]TimeEntry, error) {
	var entries []TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (TimeEntry, error) {
	var e TimeEntry
	err := row.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.Date, &e.Days,
		&e.Description, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// mapConstraint converts the unique (user, project, date) violation into the
// duplicate-entry error.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateEntry
		case "23503":
			return httpx.ErrConflict
		}
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)

package reports

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// RepositoryPort defines data access methods for monthly reports.
type RepositoryPort interface {
	List(ctx context.Context, scope authz.Scope, actorID int64) ([]MonthlyReport, error)
	Get(ctx context.Context, id int64) (MonthlyReport, error)
	Create(ctx context.Context, userID int64, month shared.Month) (MonthlyReport, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (MonthlyReport, error)
	Delete(ctx context.Context, id int64) error
	OwnerSubject(ctx context.Context, userID int64) (authz.Subject, error)
	EntryRows(ctx context.Context, userID int64, month shared.Month) ([]EntryRow, error)
	ListDrafts(ctx context.Context) ([]MonthlyReport, error)
	RecomputeTotal(ctx context.Context, id int64) (float64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reportColumns = `id, user_id, month, total_days, status, created_at, updated_at`

// List returns the reports visible under the given scope.
func (r *Repository) List(ctx context.Context, scope authz.Scope, actorID int64) ([]MonthlyReport, error) {
	var (
		query string
		args  []any
	)
	switch scope {
	case authz.ScopeAll:
		query = `SELECT ` + reportColumns + ` FROM monthly_reports ORDER BY month DESC, user_id`
	case authz.ScopeSubordinates:
		query = `SELECT ` + reportColumns + ` FROM monthly_reports
			 WHERE user_id IN (SELECT id FROM users WHERE manager_id = $1)
			 ORDER BY month DESC, user_id`
		args = append(args, actorID)
	case authz.ScopeSelf:
		query = `SELECT ` + reportColumns + ` FROM monthly_reports WHERE user_id = $1 ORDER BY month DESC`
		args = append(args, actorID)
	default:
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

// Get fetches a report by primary key.
func (r *Repository) Get(ctx context.Context, id int64) (MonthlyReport, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM monthly_reports WHERE id = $1`, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MonthlyReport{}, httpx.ErrNotFound
		}
		return MonthlyReport{}, err
	}
	return report, nil
}

// Create inserts a draft report, computing its total from entry state inside
// the same statement.
func (r *Repository) Create(ctx context.Context, userID int64, month shared.Month) (MonthlyReport, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO monthly_reports (user_id, month, total_days, status)
		 VALUES ($1, $2,
		         (SELECT COALESCE(SUM(days), 0) FROM time_entries
		          WHERE user_id = $1 AND date >= $2 AND date < $3),
		         'draft')
		 RETURNING `+reportColumns,
		userID, month.First(), month.Next())
	created, err := scanReport(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return MonthlyReport{}, ErrDuplicateReport
		}
		return MonthlyReport{}, err
	}
	return created, nil
}

// UpdateStatus moves the report's status, refreshing the stored total from
// entry state in the same statement.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) (MonthlyReport, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE monthly_reports m SET
			status = $2,
			total_days = (SELECT COALESCE(SUM(days), 0) FROM time_entries
			              WHERE user_id = m.user_id AND date >= m.month AND date < m.month + INTERVAL '1 month'),
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+reportColumns,
		id, string(status))
	updated, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MonthlyReport{}, httpx.ErrNotFound
		}
		return MonthlyReport{}, err
	}
	return updated, nil
}

// Delete removes a report row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM monthly_reports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// OwnerSubject loads the ownership facts of the report's owner.
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

// EntryRows loads the aggregator's input: the user's entries for the month
// joined with project names.
func (r *Repository) EntryRows(ctx context.Context, userID int64, month shared.Month) ([]EntryRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.project_id, p.name, e.date, e.days, e.description
		 FROM time_entries e
		 JOIN projects p ON p.id = e.project_id
		 WHERE e.user_id = $1 AND e.date >= $2 AND e.date < $3
		 ORDER BY p.name, e.date`,
		userID, month.First(), month.Next())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntryRow
	for rows.Next() {
		var row EntryRow
		if err := rows.Scan(&row.ProjectID, &row.ProjectName, &row.Date, &row.Days, &row.Description); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListDrafts returns every draft report, for the reconciliation job.
func (r *Repository) ListDrafts(ctx context.Context) ([]MonthlyReport, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM monthly_reports WHERE status = 'draft' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

// RecomputeTotal rewrites a single report's total from entry state and
// returns the new value.
func (r *Repository) RecomputeTotal(ctx context.Context, id int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx,
		`UPDATE monthly_reports m SET
			total_days = (SELECT COALESCE(SUM(days), 0) FROM time_entries
			              WHERE user_id = m.user_id AND date >= m.month AND date < m.month + INTERVAL '1 month'),
			updated_at = NOW()
		 WHERE id = $1 AND status = 'draft'
		 RETURNING total_days`, id).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, httpx.ErrNotFound
	}
	return total, err
}

func scanReports(rows pgx.Rows) ([]MonthlyReport, error) {
	var reports []MonthlyReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func scanReport(row pgx.Row) (MonthlyReport, error) {
	var (
		report MonthlyReport
		month  time.Time
		status string
	)
	if err := row.Scan(&report.ID, &report.UserID, &month, &report.TotalDays,
		&status, &report.CreatedAt, &report.UpdatedAt); err != nil {
		return MonthlyReport{}, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return MonthlyReport{}, err
	}
	report.Status = parsed
	report.Month = shared.MonthOf(month)
	return report, nil
}

var _ RepositoryPort = (*Repository)(nil)

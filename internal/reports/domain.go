// Package reports implements monthly reports: the stored report rows, the
// on-read aggregator and the PDF export.
package reports

import (
	"fmt"
	"time"

	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// Status is the lifecycle state of a monthly report.
type Status string

const (
	// StatusDraft reports follow entry mutations and may be deleted.
	StatusDraft Status = "draft"
	// StatusFinal reports are immutable, and so are the entries of their
	// month.
	StatusFinal Status = "final"
)

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusDraft, StatusFinal:
		return Status(raw), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, raw)
}

// MonthlyReport aggregates one user's entries for one calendar month.
// TotalDays is derived from entry state and never independently settable.
type MonthlyReport struct {
	ID        int64
	UserID    int64
	Month     shared.Month
	TotalDays float64
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput carries the fields accepted at creation time. UserID defaults
// to the acting user.
type CreateInput struct {
	UserID int64
	Month  shared.Month
}

// UpdateInput carries the single mutable field: the status.
type UpdateInput struct {
	Status Status
}

var (
	// ErrFinal blocks updates and deletes of finalized reports.
	ErrFinal = fmt.Errorf("%w: report is final", httpx.ErrConflict)
	// ErrDuplicateReport rejects a second report for the same user and
	// month.
	ErrDuplicateReport = fmt.Errorf("%w: a report for this user and month already exists", httpx.ErrConflict)
)

// EntryRow is one time entry joined with its project name, the aggregator's
// input.
type EntryRow struct {
	ProjectID   int64
	ProjectName string
	Date        time.Time
	Days        float64
	Description string
}

// Aggregate is the computed monthly breakdown.
type Aggregate struct {
	UserID     int64              `json:"user_id"`
	Month      string             `json:"month"`
	TotalDays  float64            `json:"total_days"`
	EntryCount int                `json:"entry_count"`
	Projects   []ProjectBreakdown `json:"projects"`
}

// ProjectBreakdown sums one project's entries within the month.
type ProjectBreakdown struct {
	ProjectID   int64       `json:"project_id"`
	ProjectName string      `json:"project_name"`
	TotalDays   float64     `json:"total_days"`
	Entries     []EntryLine `json:"entries"`
}

// EntryLine is one entry inside a project breakdown.
type EntryLine struct {
	Date        string  `json:"date"`
	Days        float64 `json:"days"`
	Description string  `json:"description"`
}

// Package timesheet implements time entries and the consistency rules
// guarding them: ownership, project eligibility and the one-day ceiling.
package timesheet

import (
	"errors"
	"fmt"
	"time"

	"github.com/tempora-hq/tempora/internal/platform/httpx"
)

// DailyCeiling is the maximum total a user may log on a single date,
// expressed in working-day fractions.
const DailyCeiling = 1.0

// ceilingEpsilon absorbs float64 representation error in accumulated day
// totals; a day that sums to exactly the ceiling must pass.
const ceilingEpsilon = 1e-9

// TimeEntry records a fraction of a working day spent on a project.
type TimeEntry struct {
	ID          int64
	UserID      int64
	ProjectID   int64
	Date        time.Time
	Days        float64
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput carries the fields accepted at creation time. UserID defaults
// to the acting user.
type CreateInput struct {
	UserID      int64
	ProjectID   int64
	Date        time.Time
	Days        float64
	Description string
}

// UpdateInput carries optional updates; nil fields are left untouched. The
// entry's owner cannot change.
type UpdateInput struct {
	ProjectID   *int64
	Date        *time.Time
	Days        *float64
	Description *string
}

var (
	// ErrDailyLimit flags a write that would push a day's total past the
	// ceiling. Surfaced as 422.
	ErrDailyLimit = errors.New("daily limit exceeded")
	// ErrProjectNotAccessible flags an entry against a project the user is
	// not eligible for. Surfaced as 422.
	ErrProjectNotAccessible = errors.New("project not accessible for this user")
	// ErrInvalidDays rejects values outside the (0, 1] working-day range.
	ErrInvalidDays = fmt.Errorf("%w: days must be greater than 0 and at most 1.0", httpx.ErrValidation)
	// ErrDuplicateEntry rejects a second entry for the same user, project
	// and date.
	ErrDuplicateEntry = fmt.Errorf("%w: an entry for this user, project and date already exists", httpx.ErrConflict)
	// ErrMonthFinal blocks mutations in a month whose report was finalized.
	ErrMonthFinal = fmt.Errorf("%w: the report for this month is final", httpx.ErrConflict)
)

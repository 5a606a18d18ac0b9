package timesheet

import (
	"fmt"
	"time"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// ValidationInput bundles the facts the entry validator needs. DayTotal is
// the owner's existing total for the entry's date, excluding the entry being
// updated.
type ValidationInput struct {
	Actor            authz.Actor
	Owner            authz.Subject
	ProjectManagerID int64
	Date             time.Time
	Days             float64
	DayTotal         float64
}

// Validate runs the write checks in a fixed order: access, project
// eligibility, daily ceiling, value domain. The first failure wins, so a
// cross-boundary write is reported as AccessDenied even when its value is
// also out of range.
func Validate(in ValidationInput) error {
	if err := authz.CanTouchEntry(in.Actor, in.Owner); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	if !eligible(in.Actor, in.Owner, in.ProjectManagerID) {
		return ErrProjectNotAccessible
	}
	if in.DayTotal+in.Days > DailyCeiling+ceilingEpsilon {
		return fmt.Errorf("%w: total for %s would be %.2f days", ErrDailyLimit,
			in.Date.Format(shared.DateLayout), in.DayTotal+in.Days)
	}
	if in.Days <= 0 || in.Days > 1.0 {
		return ErrInvalidDays
	}
	return nil
}

// eligible decides whether the owner may log against the project: the
// project's manager is the owner's manager, the owner manages the project
// themselves, or the actor is an admin.
func eligible(actor authz.Actor, owner authz.Subject, projectManagerID int64) bool {
	if actor.IsAdmin() {
		return true
	}
	if owner.ID == projectManagerID {
		return true
	}
	return owner.ManagerID != nil && *owner.ManagerID == projectManagerID
}

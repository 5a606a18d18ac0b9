package projects

import (
	"fmt"
	"time"

	"github.com/tempora-hq/tempora/internal/platform/httpx"
)

// Project groups time entries under a name and exactly one manager.
type Project struct {
	ID          int64
	Name        string
	Description string
	ManagerID   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput carries the fields accepted at creation time. ManagerID is
// honoured for admins only; other creators become the manager themselves.
type CreateInput struct {
	Name        string
	Description string
	ManagerID   *int64
}

// UpdateInput carries optional updates; nil fields are left untouched.
type UpdateInput struct {
	Name        *string
	Description *string
	ManagerID   *int64
}

var (
	// ErrManagerRole rejects a project manager that does not hold the
	// manager or admin role.
	ErrManagerRole = fmt.Errorf("%w: the project manager must hold the manager or admin role", httpx.ErrValidation)
	// ErrSingleManager enforces the one-project-per-manager policy when it
	// is switched on.
	ErrSingleManager = fmt.Errorf("%w: this manager already manages a project", httpx.ErrConflict)
	// ErrHasEntries blocks deletion of projects that still carry time
	// entries.
	ErrHasEntries = fmt.Errorf("%w: project still has time entries", httpx.ErrConflict)
	// ErrUnknownMembers rejects an assignment referencing user ids that do
	// not exist.
	ErrUnknownMembers = fmt.Errorf("%w: unknown user ids in member set", httpx.ErrValidation)
)

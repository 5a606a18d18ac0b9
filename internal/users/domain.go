package users

import (
	"fmt"
	"time"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
)

// User represents a user account.
type User struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	Role      authz.Role
	ManagerID *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subject converts the user into the authorization engine's view of it.
func (u User) Subject() authz.Subject {
	return authz.Subject{ID: u.ID, Username: u.Username, Role: u.Role, ManagerID: u.ManagerID}
}

// CreateInput carries the fields accepted at creation time.
type CreateInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      authz.Role
	ManagerID *int64
}

// UpdateInput carries optional updates; nil fields are left untouched.
// ManagerSet distinguishes "clear the manager" from "leave it alone".
type UpdateInput struct {
	Email      *string
	Password   *string
	FirstName  *string
	LastName   *string
	IsActive   *bool
	Role       *authz.Role
	ManagerID  *int64
	ManagerSet bool
}

var (
	// ErrManagerRole rejects a manager reference that does not hold the
	// manager or admin role.
	ErrManagerRole = fmt.Errorf("%w: the assigned manager must hold the manager or admin role", httpx.ErrValidation)
	// ErrManagerCycle rejects a manager assignment that would close a loop
	// in the supervision chain.
	ErrManagerCycle = fmt.Errorf("%w: manager assignment would create a cycle", httpx.ErrConflict)
	// ErrProtected blocks deletion of users that still own time entries or
	// monthly reports.
	ErrProtected = fmt.Errorf("%w: user still owns time entries or reports", httpx.ErrConflict)
)

// Package authz implements the role model and the authorization engine.
// Decisions are pure functions of the actor's identity, role and manager
// reference plus the ownership facts passed in; the engine never touches
// storage itself.
package authz

import (
	"errors"
	"fmt"
)

// Role is the single source of truth for a user's privileges.
type Role string

const (
	// RoleAdmin supervises everyone and bypasses ownership checks.
	RoleAdmin Role = "admin"
	// RoleManager supervises its direct subordinates, one hop only.
	RoleManager Role = "manager"
	// RoleUser owns its own entries and reports and nothing else.
	RoleUser Role = "user"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RoleManager, RoleUser:
		return Role(raw), nil
	}
	return "", fmt.Errorf("authz: unknown role %q", raw)
}

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleUser
}

// Elevated reports whether the role is manager or admin.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleManager
}

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID        int64
	Username  string
	Role      Role
	ManagerID *int64
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsElevated reports whether the actor holds the manager or admin role.
func (a Actor) IsElevated() bool { return a.Role.Elevated() }

// Subject is the engine's view of a target user row: just enough ownership
// facts to decide supervision.
type Subject struct {
	ID        int64
	Username  string
	Role      Role
	ManagerID *int64
}

// Supervises reports whether the actor supervises the subject. The relation
// is one hop: the subject's manager reference must equal the actor. Admins
// implicitly supervise everyone. A manager's manager does not supervise the
// bottom user.
func (a Actor) Supervises(s Subject) bool {
	if a.Role == RoleAdmin {
		return true
	}
	if a.Role != RoleManager {
		return false
	}
	return s.ManagerID != nil && *s.ManagerID == a.ID
}

// Scope narrows a list query to the rows the actor may see.
type Scope int

const (
	// ScopeNone yields no rows.
	ScopeNone Scope = iota
	// ScopeSelf yields only rows owned by the actor.
	ScopeSelf
	// ScopeSubordinates yields rows owned by the actor's direct subordinates.
	ScopeSubordinates
	// ScopeTeam yields the actor's own rows plus its direct subordinates'.
	ScopeTeam
	// ScopeAll yields every row.
	ScopeAll
)

// ErrDenied is the root of every authorization failure.
var ErrDenied = errors.New("access denied")

func deny(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDenied, fmt.Sprintf(format, args...))
}

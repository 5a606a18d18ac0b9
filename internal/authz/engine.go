package authz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRoleConflict flags an assignment that would put a manager or admin into
// a subordinate position.
var ErrRoleConflict = errors.New("role conflict")

// UserListScope narrows user listings: admins see everyone, managers see
// themselves plus direct subordinates, users see themselves.
func UserListScope(a Actor) Scope {
	switch a.Role {
	case RoleAdmin:
		return ScopeAll
	case RoleManager:
		return ScopeTeam
	default:
		return ScopeSelf
	}
}

// CanReadUser decides single-record user reads, mirroring the list scope.
func CanReadUser(a Actor, target Subject) error {
	if a.ID == target.ID || a.Supervises(target) {
		return nil
	}
	return deny("user %s is not visible to you", target.Username)
}

// CanCreateUser decides user creation. A nil actor is an unauthenticated
// request, allowed only while no admin exists yet (bootstrap). Managers may
// create users and managers; only an admin may create another admin.
func CanCreateUser(a *Actor, adminExists bool, newRole Role) error {
	if a == nil {
		if adminExists {
			return deny("authentication required")
		}
		return nil
	}
	if !a.IsElevated() {
		return deny("only managers and admins can create users")
	}
	if newRole == RoleAdmin && !a.IsAdmin() {
		return deny("only an admin can grant the admin role")
	}
	return nil
}

// CanUpdateUser decides user updates. Admins may update anyone; managers may
// update themselves and their direct subordinates. Role changes are
// admin-only and never self-service.
func CanUpdateUser(a Actor, target Subject, roleChanged bool) error {
	if !a.IsElevated() {
		return deny("only managers and admins can update users")
	}
	if !a.IsAdmin() && a.ID != target.ID && !a.Supervises(target) {
		return deny("user %s is not one of your subordinates", target.Username)
	}
	if roleChanged {
		if !a.IsAdmin() {
			return deny("only an admin can change roles")
		}
		if a.ID == target.ID {
			return deny("you cannot change your own role")
		}
	}
	return nil
}

// CanDeleteUser decides user deletion, an admin-only operation.
func CanDeleteUser(a Actor) error {
	if !a.IsAdmin() {
		return deny("only an admin can delete users")
	}
	return nil
}

// ProjectListScope narrows project listings: admins see all projects,
// managers the ones they manage or are assigned to, users the ones they are
// assigned to. ScopeTeam stands for managed-or-assigned here.
func ProjectListScope(a Actor) Scope {
	switch a.Role {
	case RoleAdmin:
		return ScopeAll
	case RoleManager:
		return ScopeTeam
	default:
		return ScopeSelf
	}
}

// CanCreateProject decides project creation, restricted to managers and
// admins. A non-admin creator always becomes the project's manager.
func CanCreateProject(a Actor) error {
	if !a.IsElevated() {
		return deny("only managers and admins can create projects")
	}
	return nil
}

// CanUpdateProject decides project updates: the project's own manager or an
// admin. Reassigning the manager is admin-only.
func CanUpdateProject(a Actor, projectManagerID int64, managerChanged bool) error {
	if a.IsAdmin() {
		return nil
	}
	if !a.IsElevated() || a.ID != projectManagerID {
		return deny("only the project manager or an admin can update this project")
	}
	if managerChanged {
		return deny("only an admin can reassign the project manager")
	}
	return nil
}

// CanDeleteProject decides project deletion: the project's own manager or an
// admin.
func CanDeleteProject(a Actor, projectManagerID int64) error {
	if a.IsAdmin() {
		return nil
	}
	if !a.IsElevated() || a.ID != projectManagerID {
		return deny("only the project manager or an admin can delete this project")
	}
	return nil
}

// CanAssignUsers decides the assign-users action. Admins may assign anyone.
// A manager may only assign to a project they manage, may never place
// another manager or admin in the member set, and may only assign their own
// direct subordinates; violations name the offending usernames.
func CanAssignUsers(a Actor, projectManagerID int64, targets []Subject) error {
	if a.IsAdmin() {
		return nil
	}
	if !a.IsElevated() {
		return deny("only managers and admins can assign users to projects")
	}
	if a.ID != projectManagerID {
		return deny("you can only assign users to your own projects")
	}
	var elevated, foreign []string
	for _, t := range targets {
		if t.Role.Elevated() {
			elevated = append(elevated, t.Username)
			continue
		}
		if !a.Supervises(t) {
			foreign = append(foreign, t.Username)
		}
	}
	if len(elevated) > 0 {
		return fmt.Errorf("%w: managers can only assign regular users to projects: %s",
			ErrRoleConflict, strings.Join(elevated, ", "))
	}
	if len(foreign) > 0 {
		return deny("you cannot assign these users: %s", strings.Join(foreign, ", "))
	}
	return nil
}

// EntryListScope narrows time-entry listings: admins see all entries,
// managers their own plus their direct subordinates', users their own.
func EntryListScope(a Actor) Scope {
	switch a.Role {
	case RoleAdmin:
		return ScopeAll
	case RoleManager:
		return ScopeTeam
	default:
		return ScopeSelf
	}
}

// CanTouchEntry decides reads and writes of a single time entry owned by
// owner: the owner, the owner's direct manager, or an admin.
func CanTouchEntry(a Actor, owner Subject) error {
	if a.ID == owner.ID || a.Supervises(owner) {
		return nil
	}
	return deny("you can only manage your own time entries or your subordinates'")
}

// ReportListScope narrows monthly-report listings. Managers see their direct
// subordinates' reports, not their own; the observed system behaves this way
// and a manager's own report is visible to their own manager instead.
func ReportListScope(a Actor) Scope {
	switch a.Role {
	case RoleAdmin:
		return ScopeAll
	case RoleManager:
		return ScopeSubordinates
	default:
		return ScopeSelf
	}
}

// CanTouchReport decides reads and writes of a single monthly report owned
// by owner: the owner, the owner's direct manager, or an admin.
func CanTouchReport(a Actor, owner Subject) error {
	if a.ID == owner.ID || a.Supervises(owner) {
		return nil
	}
	return deny("you can only manage your own reports or your subordinates'")
}

package projects

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// Config carries the policy switches of the projects module.
type Config struct {
	// SingleManagerPolicy limits every manager to one managed project.
	SingleManagerPolicy bool
}

// Service handles project business logic: manager assignment rules and the
// member set.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditPort
	config Config
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit shared.AuditPort, config Config) *Service {
	return &Service{repo: repo, audit: audit, config: config}
}

// List returns the projects the actor may see.
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]Project, error) {
	return s.repo.List(ctx, authz.ProjectListScope(actor), actor.ID)
}

// Get fetches a single project: its manager, its members and admins may
// read it.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id int64) (Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if err := s.canRead(ctx, actor, p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Members returns the project's assigned user ids, subject to the same
// visibility as Get.
func (s *Service) Members(ctx context.Context, actor authz.Actor, id int64) ([]int64, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(ctx, actor, p); err != nil {
		return nil, err
	}
	return s.repo.MemberIDs(ctx, id)
}

// Create registers a new project. Non-admin creators always become the
// manager; an admin may hand the project to any elevated user.
func (s *Service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (Project, error) {
	if err := authz.CanCreateProject(actor); err != nil {
		return Project{}, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	if strings.TrimSpace(input.Name) == "" {
		return Project{}, fmt.Errorf("%w: project name required", httpx.ErrValidation)
	}

	managerID := actor.ID
	if actor.IsAdmin() && input.ManagerID != nil {
		managerID = *input.ManagerID
	}
	if err := s.checkManager(ctx, managerID, 0); err != nil {
		return Project{}, err
	}

	created, err := s.repo.Create(ctx, Project{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		ManagerID:   managerID,
	})
	if err != nil {
		return Project{}, err
	}
	s.record(ctx, actor, "project.create", created.ID)
	return created, nil
}

// Update applies the given changes; manager reassignment is admin-only.
func (s *Service) Update(ctx context.Context, actor authz.Actor, id int64, input UpdateInput) (Project, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}

	managerChanged := input.ManagerID != nil && *input.ManagerID != current.ManagerID
	if err := authz.CanUpdateProject(actor, current.ManagerID, managerChanged); err != nil {
		return Project{}, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}

	next := current
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return Project{}, fmt.Errorf("%w: project name required", httpx.ErrValidation)
		}
		next.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		next.Description = *input.Description
	}
	if managerChanged {
		next.ManagerID = *input.ManagerID
		if err := s.checkManager(ctx, next.ManagerID, id); err != nil {
			return Project{}, err
		}
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Project{}, err
	}
	s.record(ctx, actor, "project.update", updated.ID)
	return updated, nil
}

// Delete removes a project. Projects that still carry time entries are
// protected.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id int64) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.CanDeleteProject(actor, p.ManagerID); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	has, err := s.repo.HasEntries(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return ErrHasEntries
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "project.delete", id)
	return nil
}

// AssignUsers replaces the project's member set. The rules live in the
// authorization engine; violations name the offending usernames.
func (s *Service) AssignUsers(ctx context.Context, actor authz.Actor, id int64, userIDs []int64) ([]int64, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	userIDs = dedupe(userIDs)
	targets, err := s.repo.SubjectsByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if len(targets) != len(userIDs) {
		known := make(map[int64]bool, len(targets))
		for _, t := range targets {
			known[t.ID] = true
		}
		var missing []string
		for _, uid := range userIDs {
			if !known[uid] {
				missing = append(missing, strconv.FormatInt(uid, 10))
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownMembers, strings.Join(missing, ", "))
	}

	if err := authz.CanAssignUsers(actor, p.ManagerID, targets); err != nil {
		switch {
		case errors.Is(err, authz.ErrRoleConflict):
			return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
		default:
			return nil, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
		}
	}

	if err := s.repo.ReplaceMembers(ctx, id, userIDs); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "project.assign_users", id)
	return s.repo.MemberIDs(ctx, id)
}

// canRead gates single-project reads: admin, the project's manager, or an
// assigned member.
func (s *Service) canRead(ctx context.Context, actor authz.Actor, p Project) error {
	if actor.IsAdmin() || actor.ID == p.ManagerID {
		return nil
	}
	member, err := s.repo.IsMember(ctx, p.ID, actor.ID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: project %s is not visible to you", httpx.ErrForbidden, p.Name)
	}
	return nil
}

// checkManager validates a manager assignment: elevated role, and at most
// one managed project when the policy is on.
func (s *Service) checkManager(ctx context.Context, managerID, excludeProjectID int64) error {
	subject, err := s.repo.SubjectByID(ctx, managerID)
	if err != nil {
		return err
	}
	if !subject.Role.Elevated() {
		return ErrManagerRole
	}
	if s.config.SingleManagerPolicy {
		n, err := s.repo.CountManagedBy(ctx, managerID, excludeProjectID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSingleManager
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor authz.Actor, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "project",
		EntityID: strconv.FormatInt(id, 10),
	})
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

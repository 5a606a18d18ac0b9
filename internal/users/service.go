package users

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// Service handles user business logic: creation rules, manager-chain
// integrity and role-scoped visibility.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns the users the actor may see.
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]User, error) {
	return s.repo.List(ctx, authz.UserListScope(actor), actor.ID)
}

// Get fetches a single user, subject to the actor's visibility.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id int64) (User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := authz.CanReadUser(actor, user.Subject()); err != nil {
		return User{}, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	return user, nil
}

// Create registers a new account. An unauthenticated actor (nil) is allowed
// only while no admin exists; managers create users and managers, admins
// create anyone.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, input CreateInput) (User, error) {
	adminExists, err := s.repo.AdminExists(ctx)
	if err != nil {
		return User{}, err
	}
	if !input.Role.Valid() {
		return User{}, fmt.Errorf("%w: invalid role %q", httpx.ErrValidation, input.Role)
	}
	if err := authz.CanCreateUser(actor, adminExists, input.Role); err != nil {
		return User{}, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	if strings.TrimSpace(input.Username) == "" {
		return User{}, fmt.Errorf("%w: username required", httpx.ErrValidation)
	}
	if input.Password == "" {
		return User{}, fmt.Errorf("%w: password required", httpx.ErrValidation)
	}
	if input.ManagerID != nil {
		if err := s.checkManager(ctx, 0, *input.ManagerID); err != nil {
			return User{}, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		Username:  strings.TrimSpace(input.Username),
		Email:     strings.TrimSpace(input.Email),
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Role:      input.Role,
		ManagerID: input.ManagerID,
	}
	created, err := s.repo.Create(ctx, user, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, "user.create", created.ID)
	return created, nil
}

// Update applies the given changes to a user, enforcing role-change and
// supervision rules.
func (s *Service) Update(ctx context.Context, actor authz.Actor, id int64, input UpdateInput) (User, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}

	roleChanged := input.Role != nil && *input.Role != current.Role
	if err := authz.CanUpdateUser(actor, current.Subject(), roleChanged); err != nil {
		return User{}, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	if input.Role != nil && !input.Role.Valid() {
		return User{}, fmt.Errorf("%w: invalid role %q", httpx.ErrValidation, *input.Role)
	}

	next := current
	if input.Email != nil {
		next.Email = strings.TrimSpace(*input.Email)
	}
	if input.FirstName != nil {
		next.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		next.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.IsActive != nil {
		next.IsActive = *input.IsActive
	}
	if roleChanged {
		next.Role = *input.Role
	}
	if input.ManagerSet {
		next.ManagerID = input.ManagerID
		if input.ManagerID != nil {
			if err := s.checkManager(ctx, id, *input.ManagerID); err != nil {
				return User{}, err
			}
		}
	}

	var hash string
	if input.Password != nil && *input.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		hash = string(hashed)
	}

	updated, err := s.repo.Update(ctx, next, hash)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, &actor, "user.update", updated.ID)
	return updated, nil
}

// Delete removes a user. Admin-only; users with time entries or reports are
// protected.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id int64) error {
	if err := authz.CanDeleteUser(actor); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	active, err := s.repo.HasActivity(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return ErrProtected
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, &actor, "user.delete", id)
	return nil
}

// checkManager validates a manager assignment: the manager must exist, hold
// an elevated role, and the chain from the manager upwards must not reach
// the user being written (which would close a cycle).
func (s *Service) checkManager(ctx context.Context, userID, managerID int64) error {
	if userID != 0 && managerID == userID {
		return ErrManagerCycle
	}
	manager, err := s.repo.Get(ctx, managerID)
	if err != nil {
		return err
	}
	if !manager.Role.Elevated() {
		return ErrManagerRole
	}
	if userID == 0 {
		return nil
	}

	// Walk the chain upwards from the proposed manager; the depth guard only
	// trips if the stored data already contains a loop.
	const maxDepth = 512
	current := manager
	for depth := 0; depth < maxDepth; depth++ {
		if current.ManagerID == nil {
			return nil
		}
		if *current.ManagerID == userID {
			return ErrManagerCycle
		}
		current, err = s.repo.Get(ctx, *current.ManagerID)
		if err != nil {
			return err
		}
	}
	return ErrManagerCycle
}

func (s *Service) record(ctx context.Context, actor *authz.Actor, action string, id int64) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if actor != nil {
		actorID = actor.ID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
	})
}

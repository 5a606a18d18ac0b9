package timesheet

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// AggregateInvalidator bumps the cached monthly aggregate for a user after
// an entry mutation. The reports cache implements it.
type AggregateInvalidator interface {
	Invalidate(ctx context.Context, userID int64, month shared.Month) error
}

// Service handles time-entry business logic. Every mutation runs inside a
// single transaction: row locks for the ceiling check, the write itself and
// the report-total recompute commit or roll back together.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	cache  AggregateInvalidator
	audit  shared.AuditPort
}

// NewService builds a Service instance. cache may be nil when no aggregate
// cache is wired (tests, worker).
func NewService(logger *slog.Logger, repo RepositoryPort, cache AggregateInvalidator, audit shared.AuditPort) *Service {
	return &Service{logger: logger, repo: repo, cache: cache, audit: audit}
}

// List returns the entries the actor may see.
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]TimeEntry, error) {
	return s.repo.List(ctx, authz.EntryListScope(actor), actor.ID)
}

// Monthly returns a user's entries for a calendar month, visible to the
// owner, the owner's direct manager and admins.
func (s *Service) Monthly(ctx context.Context, actor authz.Actor, userID int64, month shared.Month) ([]TimeEntry, error) {
	owner, err := s.repo.OwnerSubject(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanTouchEntry(actor, owner); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	return s.repo.ListForUserMonth(ctx, userID, month)
}

// Get fetches a single entry, subject to the owner/supervisor/admin rule.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id int64) (TimeEntry, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	owner, err := s.repo.OwnerSubject(ctx, e.UserID)
	if err != nil {
		return TimeEntry{}, err
	}
	if err := authz.CanTouchEntry(actor, owner); err != nil {
		return TimeEntry{}, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	return e, nil
}

// Create logs a new entry.
func (s *Service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (TimeEntry, error) {
	if input.UserID == 0 {
		input.UserID = actor.ID
	}
	if input.Date.IsZero() {
		return TimeEntry{}, fmt.Errorf("%w: date required", httpx.ErrValidation)
	}

	owner, err := s.repo.OwnerSubject(ctx, input.UserID)
	if err != nil {
		return TimeEntry{}, err
	}
	projectManagerID, err := s.repo.ProjectManager(ctx, input.ProjectID)
	if err != nil {
		return TimeEntry{}, err
	}
	month := shared.MonthOf(input.Date)
	if err := s.requireOpenMonth(ctx, input.UserID, month); err != nil {
		return TimeEntry{}, err
	}

	var created TimeEntry
	err = s.repo.Mutate(ctx, func(tx TxOps) error {
		dayTotal, err := tx.DayTotalForUpdate(ctx, input.UserID, input.Date, 0)
		if err != nil {
			return err
		}
		if err := Validate(ValidationInput{
			Actor:            actor,
			Owner:            owner,
			ProjectManagerID: projectManagerID,
			Date:             input.Date,
			Days:             input.Days,
			DayTotal:         dayTotal,
		}); err != nil {
			return err
		}
		created, err = tx.Insert(ctx, TimeEntry{
			UserID:      input.UserID,
			ProjectID:   input.ProjectID,
			Date:        input.Date,
			Days:        input.Days,
			Description: input.Description,
		})
		if err != nil {
			return err
		}
		return tx.RecomputeReportTotal(ctx, input.UserID, month)
	})
	if err != nil {
		return TimeEntry{}, err
	}

	s.invalidate(ctx, input.UserID, month)
	s.record(ctx, actor, "entry.create", created.ID)
	return created, nil
}

// Update rewrites an entry. When the date moves across a month boundary both
// months' report totals are recomputed in the same transaction.
func (s *Service) Update(ctx context.Context, actor authz.Actor, id int64, input UpdateInput) (TimeEntry, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	owner, err := s.repo.OwnerSubject(ctx, current.UserID)
	if err != nil {
		return TimeEntry{}, err
	}

	next := current
	if input.ProjectID != nil {
		next.ProjectID = *input.ProjectID
	}
	if input.Date != nil {
		next.Date = *input.Date
	}
	if input.Days != nil {
		next.Days = *input.Days
	}
	if input.Description != nil {
		next.Description = *input.Description
	}

	projectManagerID, err := s.repo.ProjectManager(ctx, next.ProjectID)
	if err != nil {
		return TimeEntry{}, err
	}

	oldMonth := shared.MonthOf(current.Date)
	newMonth := shared.MonthOf(next.Date)
	if err := s.requireOpenMonth(ctx, current.UserID, oldMonth); err != nil {
		return TimeEntry{}, err
	}
	if newMonth != oldMonth {
		if err := s.requireOpenMonth(ctx, current.UserID, newMonth); err != nil {
			return TimeEntry{}, err
		}
	}

	var updated TimeEntry
	err = s.repo.Mutate(ctx, func(tx TxOps) error {
		dayTotal, err := tx.DayTotalForUpdate(ctx, current.UserID, next.Date, id)
		if err != nil {
			return err
		}
		if err := Validate(ValidationInput{
			Actor:            actor,
			Owner:            owner,
			ProjectManagerID: projectManagerID,
			Date:             next.Date,
			Days:             next.Days,
			DayTotal:         dayTotal,
		}); err != nil {
			return err
		}
		updated, err = tx.Update(ctx, next)
		if err != nil {
			return err
		}
		if err := tx.RecomputeReportTotal(ctx, current.UserID, oldMonth); err != nil {
			return err
		}
		if newMonth != oldMonth {
			return tx.RecomputeReportTotal(ctx, current.UserID, newMonth)
		}
		return nil
	})
	if err != nil {
		return TimeEntry{}, err
	}

	s.invalidate(ctx, current.UserID, oldMonth)
	if newMonth != oldMonth {
		s.invalidate(ctx, current.UserID, newMonth)
	}
	s.record(ctx, actor, "entry.update", updated.ID)
	return updated, nil
}

// Delete removes an entry, subject to the same access and finalized-month
// rules as writes.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id int64) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	owner, err := s.repo.OwnerSubject(ctx, current.UserID)
	if err != nil {
		return err
	}
	if err := authz.CanTouchEntry(actor, owner); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}
	month := shared.MonthOf(current.Date)
	if err := s.requireOpenMonth(ctx, current.UserID, month); err != nil {
		return err
	}

	err = s.repo.Mutate(ctx, func(tx TxOps) error {
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecomputeReportTotal(ctx, current.UserID, month)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, current.UserID, month)
	s.record(ctx, actor, "entry.delete", id)
	return nil
}

func (s *Service) requireOpenMonth(ctx context.Context, userID int64, month shared.Month) error {
	final, err := s.repo.MonthFinal(ctx, userID, month)
	if err != nil {
		return err
	}
	if final {
		return fmt.Errorf("%w (%s)", ErrMonthFinal, month)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64, month shared.Month) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID, month); err != nil {
		s.logger.Warn("aggregate cache invalidation failed",
			slog.Int64("user_id", userID),
			slog.String("month", month.String()),
			slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor authz.Actor, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "time_entry",
		EntityID: strconv.FormatInt(id, 10),
	})
}

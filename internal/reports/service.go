package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// PDFRenderer converts report HTML into a PDF document.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Service handles monthly-report business logic: scoped CRUD, the on-read
// aggregate and the PDF export.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	cache    *Cache
	renderer PDFRenderer
	audit    shared.AuditPort
	renders  singleflight.Group
}

// NewService builds a Service instance. cache and renderer may be nil in
// contexts that never export (worker, tests).
func NewService(logger *slog.Logger, repo RepositoryPort, cache *Cache, renderer PDFRenderer, audit shared.AuditPort) *Service {
	return &Service{logger: logger, repo: repo, cache: cache, renderer: renderer, audit: audit}
}

// List returns the reports the actor may see. Managers see their direct
// subordinates' reports; their own are visible to their own manager.
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]MonthlyReport, error) {
	return s.repo.List(ctx, authz.ReportListScope(actor), actor.ID)
}

// Get fetches a single report, subject to the owner/supervisor/admin rule.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id int64) (MonthlyReport, error) {
	report, err := s.repo.Get(ctx, id)
	if err != nil {
		return MonthlyReport{}, err
	}
	if err := s.canTouch(ctx, actor, report.UserID); err != nil {
		return MonthlyReport{}, err
	}
	return report, nil
}

// Create opens a draft report for a user and month. The stored total is
// computed from entry state inside the insert itself.
func (s *Service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (MonthlyReport, error) {
	if input.UserID == 0 {
		input.UserID = actor.ID
	}
	if input.Month.IsZero() {
		return MonthlyReport{}, fmt.Errorf("%w: month required", httpx.ErrValidation)
	}
	if err := s.canTouch(ctx, actor, input.UserID); err != nil {
		return MonthlyReport{}, err
	}
	created, err := s.repo.Create(ctx, input.UserID, input.Month)
	if err != nil {
		return MonthlyReport{}, err
	}
	s.record(ctx, actor, "report.create", created.ID)
	return created, nil
}

// Update moves a report's status. Final reports are immutable; the stored
// total is refreshed from entry state in the same statement.
func (s *Service) Update(ctx context.Context, actor authz.Actor, id int64, input UpdateInput) (MonthlyReport, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return MonthlyReport{}, err
	}
	if err := s.canTouch(ctx, actor, current.UserID); err != nil {
		return MonthlyReport{}, err
	}
	if current.Status == StatusFinal {
		return MonthlyReport{}, ErrFinal
	}
	updated, err := s.repo.UpdateStatus(ctx, id, input.Status)
	if err != nil {
		return MonthlyReport{}, err
	}
	s.record(ctx, actor, "report.update", updated.ID)
	return updated, nil
}

// Delete removes a draft report. Final reports are immutable.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id int64) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.canTouch(ctx, actor, current.UserID); err != nil {
		return err
	}
	if current.Status == StatusFinal {
		return ErrFinal
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "report.delete", id)
	return nil
}

// Aggregate computes the user's monthly breakdown from current entry state,
// through the versioned cache.
func (s *Service) Aggregate(ctx context.Context, actor authz.Actor, userID int64, month shared.Month) (Aggregate, error) {
	if err := s.canTouch(ctx, actor, userID); err != nil {
		return Aggregate{}, err
	}
	loader := func(ctx context.Context) (Aggregate, error) {
		rows, err := s.repo.EntryRows(ctx, userID, month)
		if err != nil {
			return Aggregate{}, err
		}
		return BuildAggregate(userID, month, rows), nil
	}
	if s.cache == nil {
		return loader(ctx)
	}
	return s.cache.FetchAggregate(ctx, userID, month, loader)
}

// RenderPDF exports the monthly aggregate as a PDF document. Concurrent
// identical renders are coalesced.
func (s *Service) RenderPDF(ctx context.Context, actor authz.Actor, userID int64, month shared.Month) ([]byte, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("reports: no PDF renderer configured")
	}
	owner, err := s.repo.OwnerSubject(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanTouchReport(actor, owner); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
	}

	key := strconv.FormatInt(userID, 10) + ":" + month.String()
	pdf, err, _ := s.renders.Do(key, func() (any, error) {
		rows, err := s.repo.EntryRows(ctx, userID, month)
		if err != nil {
			return nil, err
		}
		agg := BuildAggregate(userID, month, rows)
		html, err := RenderHTML(owner.Username, month, agg)
		if err != nil {
			return nil, err
		}
		return s.renderer.RenderHTML(ctx, html)
	})
	if err != nil {
		return nil, err
	}
	return pdf.([]byte), nil
}

// Filename returns the export filename, report-<year>-<month>-<userId>.pdf,
// with the month zero-padded to two digits.
func Filename(userID int64, month shared.Month) string {
	return fmt.Sprintf("report-%d-%02d-%d.pdf", month.Year, int(month.Month), userID)
}

func (s *Service) canTouch(ctx context.Context, actor authz.Actor, userID int64) error {
	owner, err := s.repo.OwnerSubject(ctx, userID)
	if err != nil {
		return err
	}
	if err := authz.CanTouchReport(actor, owner); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrForbidden, err)
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
		Entity:   "monthly_report",
		EntityID: strconv.FormatInt(id, 10),
	})
}

package jobs

import (
	"context"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"

	"github.com/tempora-hq/tempora/internal/observability"
	"github.com/tempora-hq/tempora/internal/reports"
)

// ReportStore is the slice of the reports repository the reconciliation
// sweep needs.
type ReportStore interface {
	ListDrafts(ctx context.Context) ([]reports.MonthlyReport, error)
	RecomputeTotal(ctx context.Context, id int64) (float64, error)
}

// ReconcileDeps collects the dependencies of the report reconciliation
// handler.
type ReconcileDeps struct {
	Logger  *slog.Logger
	Reports ReportStore
	Metrics *observability.JobMetrics
}

// NewReportReconcileHandler sweeps every draft report and rewrites its total
// from current entry state, logging any drift it finds.
func NewReportReconcileHandler(deps ReconcileDeps) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := deps.Metrics.Track("report_reconcile")
		return tracker.End(reconcileReports(ctx, deps))
	}
}

func reconcileReports(ctx context.Context, deps ReconcileDeps) error {
	drafts, err := deps.Reports.ListDrafts(ctx)
	if err != nil {
		return err
	}

	var drifted int
	for _, report := range drafts {
		total, err := deps.Reports.RecomputeTotal(ctx, report.ID)
		if err != nil {
			return err
		}
		if math.Abs(total-report.TotalDays) > 1e-9 {
			drifted++
			deps.Logger.Warn("report total drifted",
				slog.Int64("report_id", report.ID),
				slog.Int64("user_id", report.UserID),
				slog.String("month", report.Month.String()),
				slog.Float64("stored", report.TotalDays),
				slog.Float64("recomputed", total))
		}
	}

	deps.Logger.Info("report reconciliation finished",
		slog.Int("drafts", len(drafts)),
		slog.Int("drifted", drifted))
	return nil
}

// Package jobs wires the background worker: the Asynq server, the cron
// scheduler and the report reconciliation task.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportReconcile recomputes every draft report total from entry
	// state. Totals are maintained transactionally; the nightly run guards
	// against drift.
	TaskReportReconcile = "reports:reconcile"
)

// NewReportReconcileTask constructs the reconciliation task. It carries no
// payload: the handler always sweeps every draft report.
func NewReportReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskReportReconcile, nil)
}

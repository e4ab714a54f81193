package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAssetsOverdueSweep flags deployed assets past their expected checkin.
	TaskAssetsOverdueSweep = "assets:overdue_sweep"
	// TaskIdempotencyCleanup purges expired bulk request keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// OverdueSweepPayload carries scheduling metadata. A zero AsOf means the
// time the task runs.
type OverdueSweepPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewOverdueSweepTask constructs an Asynq task for the overdue sweep.
func NewOverdueSweepTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssetsOverdueSweep, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/replenishment/internal/procurement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProcurementRun executes one pull run.
	TaskProcurementRun = "procurement:run"
	// TaskIdempotencyCleanup prunes processed run keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// runTimeout bounds a single pull run inside the worker.
const runTimeout = 5 * time.Minute

// NewProcurementRunTask builds a pull-run task. The run id doubles as the
// asynq task id so a run is queued at most once.
func NewProcurementRunTask(payload procurement.RunRequest) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.Timeout(runTimeout)}
	if payload.RunID != "" {
		opts = append(opts, asynq.TaskID(payload.RunID))
	}
	return asynq.NewTask(TaskProcurementRun, body, opts...), nil
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

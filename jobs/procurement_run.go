package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/replenishment/internal/jobs"
	"github.com/odyssey-erp/replenishment/internal/picking"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/shared"
	"github.com/odyssey-erp/replenishment/internal/stockrule"
)

// RunAssembler resolves run inputs into procurements.
type RunAssembler interface {
	Assemble(ctx context.Context, inputs []procurement.ProcurementInput) ([]procurement.Procurement, error)
}

// PullRunner executes a pull run.
type PullRunner interface {
	RunPull(ctx context.Context, procs []procurement.Procurement) (stockrule.Result, error)
}

// IdempotencyGuard claims and releases run keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// ProcurementRunJob handles TaskProcurementRun.
type ProcurementRunJob struct {
	Assembler   RunAssembler
	Runner      PullRunner
	Idempotency IdempotencyGuard
	Logger      *slog.Logger
}

// NewProcurementRunJob initialises the pull-run handler.
func NewProcurementRunJob(assembler RunAssembler, runner PullRunner, guard IdempotencyGuard, logger *slog.Logger) *ProcurementRunJob {
	return &ProcurementRunJob{Assembler: assembler, Runner: runner, Idempotency: guard, Logger: logger}
}

// Handle executes one run. Configuration and input errors are not retried,
// and neither is a sink failure after some pickings were committed. Read and
// lock failures go back to asynq for retry.
func (j *ProcurementRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil || j.Assembler == nil {
		return errors.New("procurement run: handler not configured")
	}
	var payload procurement.RunRequest
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("procurement run: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := j.logger().With(slog.String("run_id", payload.RunID))

	if j.Idempotency != nil && payload.RunID != "" {
		err := j.Idempotency.CheckAndInsert(ctx, payload.RunID, shared.RunIdempotencyModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			logger.Info("procurement run already processed")
			return nil
		}
		if err != nil {
			return fmt.Errorf("procurement run: claim key: %w", err)
		}
	}

	procs, err := j.Assembler.Assemble(ctx, payload.Procurements)
	if err != nil {
		if errors.Is(err, procurement.ErrValidation) {
			logger.Warn("procurement run rejected", slog.Any("error", err))
			return fmt.Errorf("procurement run: %v: %w", err, asynq.SkipRetry)
		}
		j.release(ctx, logger, payload.RunID)
		return fmt.Errorf("procurement run: assemble: %w", err)
	}

	start := time.Now()
	result, err := j.Runner.RunPull(stockrule.WithRunID(ctx, payload.RunID), procs)
	if err != nil {
		if !Retryable(err, result) {
			return fmt.Errorf("procurement run: %v: %w", err, asynq.SkipRetry)
		}
		j.release(ctx, logger, payload.RunID)
		return fmt.Errorf("procurement run: %w", err)
	}
	logger.Info("procurement run handled",
		slog.Int("pickings", len(result.Pickings)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Retryable reports whether a failed run may be replayed from scratch.
func Retryable(err error, result stockrule.Result) bool {
	var (
		procErr     *procurement.ProcurementError
		conflictErr *picking.HeaderConflictError
		sinkErr     *picking.SinkError
	)
	switch {
	case errors.As(err, &procErr), errors.As(err, &conflictErr):
		return false
	case errors.As(err, &sinkErr):
		return len(result.Pickings) == 0 && !errors.Is(err, picking.ErrUntrustedIdentity)
	default:
		return true
	}
}

func (j *ProcurementRunJob) release(ctx context.Context, logger *slog.Logger, runID string) {
	if j.Idempotency == nil || runID == "" {
		return
	}
	if err := j.Idempotency.Delete(context.WithoutCancel(ctx), runID, shared.RunIdempotencyModule); err != nil {
		logger.Warn("release run key", slog.Any("error", err))
	}
}

func (j *ProcurementRunJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// IdempotencyJanitor prunes old run keys.
type IdempotencyJanitor struct {
	Store interface {
		Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
	}
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle executes TaskIdempotencyCleanup.
func (j *IdempotencyJanitor) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 24 * 7
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	removed, err := j.Store.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err != nil {
		return tracker.End(err)
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys pruned", slog.Int64("removed", removed))
	}
	return tracker.End(nil)
}

package picking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/replenishment/internal/procurement"
)

// Sink turns a batch into a stored, confirmed picking.
type Sink interface {
	Create(ctx context.Context, identity Identity, batch Batch) (Picking, error)
}

// SinkError reports a batch that could not be stored. Batches created before
// it in the same run stay committed.
type SinkError struct {
	CompanyID int64
	Prefix    string
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("picking: create batch %q of company %d: %v", e.Prefix, e.CompanyID, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// ErrEmptyBatch indicates a batch without moves.
var ErrEmptyBatch = errors.New("picking: batch has no moves")

// Store exposes transactional persistence for pickings.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the set of writes performed inside one picking transaction.
type TxRepository interface {
	InsertPicking(ctx context.Context, p Picking) (int64, error)
	InsertMove(ctx context.Context, pickingID int64, move procurement.ResolvedMove, createdBy int64) (int64, error)
	SetMoveState(ctx context.Context, moveID int64, state State) error
	SetPickingState(ctx context.Context, pickingID int64, state State) error
}

// Service is the PostgreSQL-backed Sink.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the picking service. publisher may be nil.
func NewService(store Store, publisher EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// Create stores the batch as one picking, confirms its moves and publishes a
// PickingCreatedEvent once committed.
func (s *Service) Create(ctx context.Context, identity Identity, batch Batch) (Picking, error) {
	if !identity.Valid() {
		return Picking{}, s.sinkErr(batch, ErrUntrustedIdentity)
	}
	if len(batch.Moves) == 0 {
		return Picking{}, s.sinkErr(batch, ErrEmptyBatch)
	}

	p := Picking{
		Reference: uuid.NewString(),
		CompanyID: batch.CompanyID,
		Header:    batch.Header,
		State:     StateDraft,
		CreatedBy: identity.ActorID(),
		CreatedAt: s.now().UTC(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPicking(ctx, p)
		if err != nil {
			return fmt.Errorf("insert picking: %w", err)
		}
		p.ID = id

		records := make([]MoveRecord, 0, len(batch.Moves))
		for _, move := range batch.Moves {
			moveID, err := tx.InsertMove(ctx, id, move, p.CreatedBy)
			if err != nil {
				return fmt.Errorf("insert move %q: %w", move.Name, err)
			}
			state := ConfirmState(move.ProcureMethod)
			if err := tx.SetMoveState(ctx, moveID, state); err != nil {
				return fmt.Errorf("confirm move %d: %w", moveID, err)
			}
			records = append(records, MoveRecord{ID: moveID, Move: move, State: state})
		}

		p.State = PickingState(records)
		if err := tx.SetPickingState(ctx, id, p.State); err != nil {
			return fmt.Errorf("set picking state: %w", err)
		}
		p.Moves = records
		return nil
	})
	if err != nil {
		return Picking{}, s.sinkErr(batch, err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishPickingCreated(ctx, newCreatedEvent(p, batch.Prefix)); err != nil {
			s.logger.Warn("publish picking created",
				slog.Any("error", err),
				slog.Int64("picking_id", p.ID),
				slog.String("reference", p.Reference))
		}
	}
	return p, nil
}

func (s *Service) sinkErr(batch Batch, err error) *SinkError {
	return &SinkError{CompanyID: batch.CompanyID, Prefix: batch.Prefix, Err: err}
}

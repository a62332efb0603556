package picking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/procurement"
)

// memoryStore keeps committed rows and drops the writes of failed transactions.
type memoryStore struct {
	pickings  map[int64]Picking
	moves     map[int64]State
	nextID    int64
	failMove  string
	commits   int
	rollbacks int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{pickings: map[int64]Picking{}, moves: map[int64]State{}}
}

type memoryTx struct {
	store    *memoryStore
	pickings map[int64]Picking
	moves    map[int64]State
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{store: m, pickings: map[int64]Picking{}, moves: map[int64]State{}}
	if err := fn(ctx, tx); err != nil {
		m.rollbacks++
		return err
	}
	for id, p := range tx.pickings {
		m.pickings[id] = p
	}
	for id, s := range tx.moves {
		m.moves[id] = s
	}
	m.commits++
	return nil
}

func (t *memoryTx) InsertPicking(_ context.Context, p Picking) (int64, error) {
	t.store.nextID++
	p.ID = t.store.nextID
	t.pickings[p.ID] = p
	return p.ID, nil
}

func (t *memoryTx) InsertMove(_ context.Context, _ int64, move procurement.ResolvedMove, _ int64) (int64, error) {
	if move.Name == t.store.failMove {
		return 0, errors.New("constraint violation")
	}
	t.store.nextID++
	t.moves[t.store.nextID] = StateDraft
	return t.store.nextID, nil
}

func (t *memoryTx) SetMoveState(_ context.Context, moveID int64, state State) error {
	t.moves[moveID] = state
	return nil
}

func (t *memoryTx) SetPickingState(_ context.Context, pickingID int64, state State) error {
	p := t.pickings[pickingID]
	p.State = state
	t.pickings[pickingID] = p
	return nil
}

type recordingPublisher struct {
	events []PickingCreatedEvent
	err    error
}

func (r *recordingPublisher) PublishPickingCreated(_ context.Context, evt PickingCreatedEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batchOf(moves ...procurement.ResolvedMove) Batch {
	return Batch{CompanyID: moves[0].CompanyID, Prefix: NamePrefix(moves[0].Name), Header: HeaderOf(moves[len(moves)-1]), Moves: moves}
}

func TestCreateConfirmsMovesByMethod(t *testing.T) {
	store := newMemoryStore()
	pub := &recordingPublisher{}
	svc := NewService(store, pub, quietLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	mts := mv(1, "Widget a", 10)
	mto := mv(1, "Widget b", 10)
	mto.ProcureMethod = procurement.MakeToOrder

	p, err := svc.Create(context.Background(), SystemIdentity(1), batchOf(mts, mto))
	require.NoError(t, err)
	require.Len(t, p.Moves, 2)
	assert.Equal(t, StateConfirmed, p.Moves[0].State)
	assert.Equal(t, StateWaiting, p.Moves[1].State)
	assert.Equal(t, StateWaiting, p.State)
	assert.Equal(t, int64(1), p.CreatedBy)
	assert.NotEmpty(t, p.Reference)

	assert.Equal(t, StateWaiting, store.pickings[p.ID].State)
	assert.Equal(t, StateConfirmed, store.moves[p.Moves[0].ID])
	assert.Equal(t, 1, store.commits)

	require.Len(t, pub.events, 1)
	assert.Equal(t, p.ID, pub.events[0].PickingID)
	assert.Equal(t, "Widget", pub.events[0].Prefix)
	assert.Equal(t, []int64{p.Moves[0].ID, p.Moves[1].ID}, pub.events[0].MoveIDs)
}

func TestCreateAllStockMovesConfirmsPicking(t *testing.T) {
	p, err := NewService(newMemoryStore(), nil, quietLogger()).Create(context.Background(), SystemIdentity(1), batchOf(mv(1, "Widget a", 1)))
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, p.State)
}

func TestCreateRejectsUntrustedIdentity(t *testing.T) {
	store := newMemoryStore()
	_, err := NewService(store, nil, quietLogger()).Create(context.Background(), Identity{}, batchOf(mv(1, "Widget a", 1)))

	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	require.ErrorIs(t, err, ErrUntrustedIdentity)
	assert.Zero(t, store.commits)
	assert.False(t, SystemIdentity(0).Valid())
}

func TestCreateRollsBackOnMoveFailure(t *testing.T) {
	store := newMemoryStore()
	store.failMove = "Widget b"
	pub := &recordingPublisher{}

	_, err := NewService(store, pub, quietLogger()).Create(context.Background(), SystemIdentity(1), batchOf(mv(1, "Widget a", 1), mv(1, "Widget b", 1)))
	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "Widget", sinkErr.Prefix)
	assert.Contains(t, err.Error(), "constraint violation")
	assert.Empty(t, store.pickings)
	assert.Empty(t, store.moves)
	assert.Equal(t, 1, store.rollbacks)
	assert.Empty(t, pub.events)
}

func TestCreateKeepsPickingWhenPublishFails(t *testing.T) {
	store := newMemoryStore()
	pub := &recordingPublisher{err: errors.New("broker down")}

	p, err := NewService(store, pub, quietLogger()).Create(context.Background(), SystemIdentity(1), batchOf(mv(1, "Widget a", 1)))
	require.NoError(t, err)
	assert.Contains(t, store.pickings, p.ID)
}

func TestCreateRejectsEmptyBatch(t *testing.T) {
	_, err := NewService(newMemoryStore(), nil, quietLogger()).Create(context.Background(), SystemIdentity(1), Batch{CompanyID: 1})
	require.ErrorIs(t, err, ErrEmptyBatch)
}

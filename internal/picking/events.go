package picking

import (
	"context"
	"time"
)

// PickingCreatedEvent is emitted after a picking and its moves are committed.
type PickingCreatedEvent struct {
	PickingID int64     `json:"picking_id"`
	Reference string    `json:"reference"`
	CompanyID int64     `json:"company_id"`
	Prefix    string    `json:"prefix"`
	State     State     `json:"state"`
	Header    Header    `json:"header"`
	MoveIDs   []int64   `json:"move_ids"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// EventPublisher delivers picking events to downstream consumers.
type EventPublisher interface {
	PublishPickingCreated(ctx context.Context, evt PickingCreatedEvent) error
}

func newCreatedEvent(p Picking, prefix string) PickingCreatedEvent {
	ids := make([]int64, len(p.Moves))
	for i, m := range p.Moves {
		ids[i] = m.ID
	}
	return PickingCreatedEvent{
		PickingID: p.ID,
		Reference: p.Reference,
		CompanyID: p.CompanyID,
		Prefix:    prefix,
		State:     p.State,
		Header:    p.Header,
		MoveIDs:   ids,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}
}

package picking

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/procurement"
)

// ============================================================================
// HEADER MERGE POLICY
// ============================================================================

// MergePolicy decides which move supplies the header fields of a batch.
type MergePolicy string

const (
	MergeLast        MergePolicy = "last"         // Every move overwrites, the last one wins
	MergeFirst       MergePolicy = "first"        // The first move of the batch wins
	MergeAssertEqual MergePolicy = "assert-equal" // All moves must agree
)

// ErrUnknownMergePolicy indicates an unsupported policy name.
var ErrUnknownMergePolicy = errors.New("picking: unknown merge policy")

// ParseMergePolicy converts a configuration value. Empty selects MergeLast.
func ParseMergePolicy(value string) (MergePolicy, error) {
	switch p := MergePolicy(value); p {
	case "":
		return MergeLast, nil
	case MergeLast, MergeFirst, MergeAssertEqual:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMergePolicy, value)
	}
}

// ============================================================================
// BATCH
// ============================================================================

// Header holds the picking-level fields taken from the moves of a batch.
type Header struct {
	PartnerID      int64                `json:"partner_id"`
	PickingTypeID  int64                `json:"picking_type_id"`
	LocationID     inventory.LocationID `json:"location_id"`
	LocationDestID inventory.LocationID `json:"location_dest_id"`
	Origin         string               `json:"origin"`
	GroupID        int64                `json:"group_id"`
}

// HeaderOf extracts the header fields carried by a move.
func HeaderOf(move procurement.ResolvedMove) Header {
	return Header{
		PartnerID:      move.PartnerID,
		PickingTypeID:  move.PickingTypeID,
		LocationID:     move.LocationID,
		LocationDestID: move.LocationDestID,
		Origin:         move.Origin,
		GroupID:        move.GroupID,
	}
}

// Batch is the set of moves that becomes one picking.
type Batch struct {
	CompanyID int64
	Prefix    string
	Header    Header
	Moves     []procurement.ResolvedMove
}

// ============================================================================
// PICKING
// ============================================================================

// State is the workflow state of a picking or of one of its moves.
type State string

const (
	StateDraft     State = "draft"
	StateWaiting   State = "waiting"   // Waiting for another operation to bring the goods
	StateConfirmed State = "confirmed" // Waiting for availability at the source location
)

// ConfirmState returns the state a move reaches when it is confirmed.
func ConfirmState(method procurement.ProcureMethod) State {
	if method == procurement.MakeToOrder {
		return StateWaiting
	}
	return StateConfirmed
}

// PickingState derives the picking state from its confirmed moves.
func PickingState(moves []MoveRecord) State {
	if len(moves) == 0 {
		return StateDraft
	}
	for _, m := range moves {
		if m.State == StateWaiting {
			return StateWaiting
		}
	}
	return StateConfirmed
}

// MoveRecord is a persisted move of a picking.
type MoveRecord struct {
	ID    int64                    `json:"id"`
	Move  procurement.ResolvedMove `json:"-"`
	State State                    `json:"state"`
}

// Picking represents a stored transfer document.
type Picking struct {
	ID        int64        `json:"id"`
	Reference string       `json:"reference"`
	CompanyID int64        `json:"company_id"`
	Header    Header       `json:"header"`
	State     State        `json:"state"`
	CreatedBy int64        `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
	Moves     []MoveRecord `json:"moves"`
}

// ============================================================================
// IDENTITY
// ============================================================================

// ErrUntrustedIdentity indicates document creation without a system identity.
var ErrUntrustedIdentity = errors.New("picking: document creation requires a system identity")

// Identity is the capability required to create documents regardless of the
// caller's own permissions. Only SystemIdentity mints a usable value.
type Identity struct {
	actorID int64
	system  bool
}

// SystemIdentity returns the elevated identity acting as actorID.
func SystemIdentity(actorID int64) Identity {
	return Identity{actorID: actorID, system: true}
}

// ActorID returns the user recorded as creator.
func (i Identity) ActorID() int64 {
	return i.actorID
}

// Valid reports whether the identity was minted by SystemIdentity.
func (i Identity) Valid() bool {
	return i.system && i.actorID > 0
}

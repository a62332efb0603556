package procurement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/uom"
)

// ProcureMethod tells how a move gets its goods.
type ProcureMethod string

const (
	// MakeToStock takes the goods from the source location stock.
	MakeToStock ProcureMethod = "make_to_stock"
	// MakeToOrder triggers replenishment of the source location.
	MakeToOrder ProcureMethod = "make_to_order"
	// StockElseOrder takes from stock when the forecast allows it, otherwise replenishes.
	StockElseOrder ProcureMethod = "mts_else_mto"
)

// IsValid checks if the method is known.
func (m ProcureMethod) IsValid() bool {
	switch m {
	case MakeToStock, MakeToOrder, StockElseOrder:
		return true
	default:
		return false
	}
}

// GroupPropagation controls which procurement group a rule puts its moves in.
type GroupPropagation string

const (
	// GroupPropagate keeps the group of the incoming procurement.
	GroupPropagate GroupPropagation = "propagate"
	// GroupFixed uses the group configured on the rule.
	GroupFixed GroupPropagation = "fixed"
	// GroupNone leaves the move without a group.
	GroupNone GroupPropagation = "none"
)

// Product is the slice of product master data the resolver needs.
type Product struct {
	ID          inventory.ProductID
	Name        string
	DefaultCode string
	UoM         uom.Unit
}

// DisplayName renders the product as "[CODE] Name".
func (p Product) DisplayName() string {
	if p.DefaultCode == "" {
		return p.Name
	}
	return fmt.Sprintf("[%s] %s", p.DefaultCode, p.Name)
}

// Request is a demand for a product quantity at a destination location.
type Request struct {
	Product        Product
	Qty            decimal.Decimal
	UoM            uom.Unit
	DestLocationID inventory.LocationID
	CompanyID      int64
	Origin         string
	GroupID        int64
	PartnerID      int64
	Name           string
}

// Rule is the sourcing rule applied to a request.
type Rule struct {
	ID               int64
	Name             string
	SourceLocationID inventory.LocationID
	ProcureMethod    ProcureMethod
	PickingTypeID    int64
	PartnerAddressID int64
	GroupPropagation GroupPropagation
	FixedGroupID     int64
}

// Procurement pairs a request with its rule.
type Procurement struct {
	Request Request
	Rule    Rule
}

// ResolvedMove holds the values of one planned stock move.
type ResolvedMove struct {
	Name           string
	ProductID      inventory.ProductID
	Qty            decimal.Decimal
	UoMID          int64
	LocationID     inventory.LocationID
	LocationDestID inventory.LocationID
	CompanyID      int64
	PartnerID      int64
	PickingTypeID  int64
	Origin         string
	GroupID        int64
	RuleID         int64
	ProcureMethod  ProcureMethod
}

// ExistingMove is a move already attached to a procurement group.
type ExistingMove struct {
	ID            int64
	RuleID        int64
	Qty           decimal.Decimal
	Rounding      decimal.Decimal
	ProcureMethod ProcureMethod
}

// GroupMoves indexes existing moves by procurement group, in read order.
type GroupMoves map[int64][]ExistingMove

// Failure pairs a faulty procurement with its message.
type Failure struct {
	Procurement Procurement
	Message     string
}

// ProcurementError reports faulty procurements. None of the procurements of
// the failing call were turned into documents.
type ProcurementError struct {
	Failures []Failure
}

func (e *ProcurementError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Message)
	}
	return "procurement: " + strings.Join(msgs, "; ")
}

func (e *ProcurementError) Unwrap() error {
	return ErrConfiguration
}

var (
	// ErrConfiguration marks sourcing configuration problems.
	ErrConfiguration = errors.New("procurement: invalid sourcing configuration")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)

func failure(proc Procurement, format string, args ...any) *ProcurementError {
	return &ProcurementError{Failures: []Failure{{Procurement: proc, Message: fmt.Sprintf(format, args...)}}}
}

package procurement

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/uom"
)

// Validate checks the sourcing configuration of every procurement and
// returns the first violation.
func Validate(procs []Procurement) error {
	for _, proc := range procs {
		if proc.Rule.SourceLocationID == 0 {
			return failure(proc, "No source location defined on stock rule: %s!", proc.Rule.Name)
		}
		if !proc.Rule.ProcureMethod.IsValid() {
			return failure(proc, "Unknown procure method %q on stock rule: %s!", proc.Rule.ProcureMethod, proc.Rule.Name)
		}
	}
	return nil
}

// ForecastDemand lists, per source location, the products whose forecast the
// stock-else-order procurements need.
func ForecastDemand(procs []Procurement) map[inventory.LocationID][]inventory.ProductID {
	demand := make(map[inventory.LocationID][]inventory.ProductID)
	for _, proc := range procs {
		if proc.Rule.ProcureMethod != StockElseOrder {
			continue
		}
		loc := proc.Rule.SourceLocationID
		demand[loc] = append(demand[loc], proc.Request.Product.ID)
	}
	return demand
}

// OverrideGroups lists the procurement groups whose existing moves may
// override the method of a non-positive stock-else-order procurement.
func OverrideGroups(procs []Procurement) []int64 {
	var groups []int64
	for _, proc := range procs {
		if proc.Rule.ProcureMethod != StockElseOrder || proc.Request.GroupID == 0 {
			continue
		}
		req := proc.Request
		needed, err := uom.Convert(req.Qty, req.UoM, req.Product.UoM)
		if err == nil && uom.Compare(needed, decimal.Zero, req.Product.UoM.Step()) > 0 {
			continue
		}
		groups = append(groups, req.GroupID)
	}
	slices.Sort(groups)
	return slices.Compact(groups)
}

// Prioritize returns the procurements in claim order: zero and negative
// quantities first, positive ones last, keeping input order otherwise.
func Prioritize(procs []Procurement) []Procurement {
	out := slices.Clone(procs)
	slices.SortStableFunc(out, func(a, b Procurement) int {
		pa, pb := isPositive(a.Request), isPositive(b.Request)
		switch {
		case pa == pb:
			return 0
		case pa:
			return 1
		default:
			return -1
		}
	})
	return out
}

func isPositive(req Request) bool {
	return uom.Compare(req.Qty, decimal.Zero, req.UoM.Step()) > 0
}

// Resolver decides the effective procure method of each procurement.
type Resolver struct {
	builder MoveBuilder
}

// NewResolver builds a Resolver. A nil builder falls back to DefaultBuilder.
func NewResolver(builder MoveBuilder) *Resolver {
	if builder == nil {
		builder = DefaultBuilder{}
	}
	return &Resolver{builder: builder}
}

// Resolve processes procurements in priority order against the ledger, which
// it mutates, and returns one move per procurement in processed order.
func (r *Resolver) Resolve(procs []Procurement, ledger *inventory.Ledger, history GroupMoves) ([]ResolvedMove, error) {
	if err := Validate(procs); err != nil {
		return nil, err
	}
	ordered := Prioritize(procs)
	moves := make([]ResolvedMove, 0, len(ordered))
	for _, proc := range ordered {
		method, err := r.method(proc, ledger, history)
		if err != nil {
			return nil, err
		}
		move, err := r.builder.Build(proc)
		if err != nil {
			return nil, failure(proc, "Cannot build move for %s: %v", proc.Request.Product.DisplayName(), err)
		}
		move.ProcureMethod = method
		moves = append(moves, move)
	}
	return moves, nil
}

func (r *Resolver) method(proc Procurement, ledger *inventory.Ledger, history GroupMoves) (ProcureMethod, error) {
	rule := proc.Rule
	if rule.ProcureMethod != StockElseOrder {
		return rule.ProcureMethod, nil
	}
	req := proc.Request
	productUoM := req.Product.UoM
	needed, err := uom.Convert(req.Qty, req.UoM, productUoM)
	if err != nil {
		return "", failure(proc, "Cannot convert %s from %s to %s: %v", req.Product.DisplayName(), req.UoM.Name, productUoM.Name, err)
	}
	loc, product := rule.SourceLocationID, req.Product.ID
	step := productUoM.Step()

	if uom.Compare(needed, decimal.Zero, step) <= 0 {
		method := MakeToOrder
		for _, move := range history[req.GroupID] {
			if move.RuleID == rule.ID && uom.Compare(move.Qty, decimal.Zero, roundingOr(move.Rounding, step)) > 0 {
				method = move.ProcureMethod
				break
			}
		}
		if err := ledger.Consume(loc, product, needed); err != nil {
			return "", err
		}
		return method, nil
	}

	available, err := ledger.Available(loc, product)
	if err != nil {
		return "", err
	}
	if uom.Compare(needed, available, step) > 0 {
		return MakeToOrder, nil
	}
	if err := ledger.Consume(loc, product, needed); err != nil {
		return "", err
	}
	return MakeToStock, nil
}

func roundingOr(value, fallback decimal.Decimal) decimal.Decimal {
	if value.Sign() <= 0 {
		return fallback
	}
	return value
}

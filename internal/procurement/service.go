package procurement

import (
	"context"
	"fmt"
	"slices"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/uom"
)

// CatalogPort describes the master data reads used by Service.
type CatalogPort interface {
	Products(ctx context.Context, ids []int64) (map[inventory.ProductID]Product, error)
	Units(ctx context.Context, ids []int64) (map[int64]uom.Unit, error)
	Rules(ctx context.Context, ids []int64) (map[int64]Rule, error)
}

// Service turns run inputs into procurements.
type Service struct {
	catalog CatalogPort
}

// NewService constructs procurement service.
func NewService(catalog CatalogPort) *Service {
	return &Service{catalog: catalog}
}

// Assemble resolves the master data referenced by inputs, keeping input order.
func (s *Service) Assemble(ctx context.Context, inputs []ProcurementInput) ([]Procurement, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	var productIDs, unitIDs, ruleIDs []int64
	for _, in := range inputs {
		productIDs = append(productIDs, in.ProductID)
		unitIDs = append(unitIDs, in.UoMID)
		ruleIDs = append(ruleIDs, in.RuleID)
	}
	products, err := s.catalog.Products(ctx, dedupe(productIDs))
	if err != nil {
		return nil, fmt.Errorf("procurement: load products: %w", err)
	}
	units, err := s.catalog.Units(ctx, dedupe(unitIDs))
	if err != nil {
		return nil, fmt.Errorf("procurement: load units: %w", err)
	}
	rules, err := s.catalog.Rules(ctx, dedupe(ruleIDs))
	if err != nil {
		return nil, fmt.Errorf("procurement: load rules: %w", err)
	}

	procs := make([]Procurement, 0, len(inputs))
	for i, in := range inputs {
		product, ok := products[inventory.ProductID(in.ProductID)]
		if !ok {
			return nil, fmt.Errorf("line %d: product %d: %w", i+1, in.ProductID, ErrValidation)
		}
		unit, ok := units[in.UoMID]
		if !ok {
			return nil, fmt.Errorf("line %d: uom %d: %w", i+1, in.UoMID, ErrValidation)
		}
		rule, ok := rules[in.RuleID]
		if !ok {
			return nil, fmt.Errorf("line %d: rule %d: %w", i+1, in.RuleID, ErrValidation)
		}
		procs = append(procs, Procurement{
			Request: Request{
				Product:        product,
				Qty:            in.Qty,
				UoM:            unit,
				DestLocationID: inventory.LocationID(in.DestLocationID),
				CompanyID:      in.CompanyID,
				Origin:         in.Origin,
				GroupID:        in.GroupID,
				PartnerID:      in.PartnerID,
				Name:           in.Name,
			},
			Rule: rule,
		})
	}
	return procs, nil
}

func dedupe(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

package procurement

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/platform/db"
	"github.com/odyssey-erp/replenishment/internal/uom"
)

// Repository reads procurement master data and group moves from PostgreSQL.
type Repository struct {
	db db.Querier
}

// NewRepository constructs Repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// GroupMoves returns the live moves of the given procurement groups, oldest first.
func (r *Repository) GroupMoves(ctx context.Context, groupIDs []int64) (GroupMoves, error) {
	out := make(GroupMoves)
	if len(groupIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT m.id, m.group_id, COALESCE(m.rule_id, 0), m.product_uom_qty::text, u.rounding::text, m.procure_method
		FROM stock_moves m
		JOIN uoms u ON u.id = m.product_uom_id
		WHERE m.group_id = ANY($1) AND m.state <> 'cancel'
		ORDER BY m.group_id, m.id`, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			move     ExistingMove
			groupID  int64
			qty      string
			rounding string
			method   string
		)
		if err := rows.Scan(&move.ID, &groupID, &move.RuleID, &qty, &rounding, &method); err != nil {
			return nil, err
		}
		if move.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("procurement: move %d qty: %w", move.ID, err)
		}
		if move.Rounding, err = decimal.NewFromString(rounding); err != nil {
			return nil, fmt.Errorf("procurement: move %d rounding: %w", move.ID, err)
		}
		move.ProcureMethod = ProcureMethod(method)
		out[groupID] = append(out[groupID], move)
	}
	return out, rows.Err()
}

// Units loads units of measure by id.
func (r *Repository) Units(ctx context.Context, ids []int64) (map[int64]uom.Unit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, category_id, ratio::text, rounding::text
		FROM uoms WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]uom.Unit, len(ids))
	for rows.Next() {
		unit, err := scanUnit(rows, 0)
		if err != nil {
			return nil, err
		}
		out[unit.ID] = unit
	}
	return out, rows.Err()
}

// Products loads products with their base unit.
func (r *Repository) Products(ctx context.Context, ids []int64) (map[inventory.ProductID]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, COALESCE(p.default_code, ''),
		       u.id, u.name, u.category_id, u.ratio::text, u.rounding::text
		FROM products p
		JOIN uoms u ON u.id = p.uom_id
		WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[inventory.ProductID]Product, len(ids))
	for rows.Next() {
		var (
			id   int64
			name string
			code string
		)
		unit, err := scanUnit(rows, 3, &id, &name, &code)
		if err != nil {
			return nil, err
		}
		out[inventory.ProductID(id)] = Product{ID: inventory.ProductID(id), Name: name, DefaultCode: code, UoM: unit}
	}
	return out, rows.Err()
}

// Rules loads sourcing rules by id.
func (r *Repository) Rules(ctx context.Context, ids []int64) (map[int64]Rule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, location_src_id, procure_method, COALESCE(picking_type_id, 0),
		       partner_address_id, group_propagation_option, group_id
		FROM stock_rules WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Rule, len(ids))
	for rows.Next() {
		var (
			rule        Rule
			srcLocation pgtype.Int8
			partner     pgtype.Int8
			group       pgtype.Int8
			method      string
			propagation string
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &srcLocation, &method, &rule.PickingTypeID, &partner, &propagation, &group); err != nil {
			return nil, err
		}
		rule.SourceLocationID = inventory.LocationID(srcLocation.Int64)
		rule.ProcureMethod = ProcureMethod(method)
		rule.PartnerAddressID = partner.Int64
		rule.GroupPropagation = GroupPropagation(propagation)
		rule.FixedGroupID = group.Int64
		out[rule.ID] = rule
	}
	return out, rows.Err()
}

// scanUnit scans a unit whose columns start at offset; lead receives the
// columns before it.
func scanUnit(rows pgx.Rows, offset int, lead ...any) (uom.Unit, error) {
	var (
		unit     uom.Unit
		ratio    string
		rounding string
	)
	if len(lead) != offset {
		return uom.Unit{}, fmt.Errorf("procurement: scan unit: want %d leading columns, got %d", offset, len(lead))
	}
	dest := append(lead, &unit.ID, &unit.Name, &unit.CategoryID, &ratio, &rounding)
	if err := rows.Scan(dest...); err != nil {
		return uom.Unit{}, err
	}
	var err error
	if unit.Ratio, err = decimal.NewFromString(ratio); err != nil {
		return uom.Unit{}, fmt.Errorf("procurement: unit %d ratio: %w", unit.ID, err)
	}
	if unit.Rounding, err = decimal.NewFromString(rounding); err != nil {
		return uom.Unit{}, fmt.Errorf("procurement: unit %d rounding: %w", unit.ID, err)
	}
	return unit, nil
}

package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/replenishment/internal/platform/db"
)

// Repository reads stock quants from PostgreSQL.
type Repository struct {
	db db.Querier
}

// NewRepository constructs Repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

const freeQtyQuery = `
	SELECT q.product_id, COALESCE(SUM(q.quantity - q.reserved_quantity), 0)::text
	FROM stock_quants q
	JOIN stock_locations l ON l.id = q.location_id
	WHERE q.product_id = ANY($1)
	  AND l.parent_path LIKE $2 || '%'
	GROUP BY q.product_id`

// FreeQuantities sums unreserved quantity per product over the location and
// its children.
func (r *Repository) FreeQuantities(ctx context.Context, location LocationID, products []ProductID) (map[ProductID]decimal.Decimal, error) {
	var parentPath string
	err := r.db.QueryRow(ctx, `SELECT parent_path FROM stock_locations WHERE id = $1`, int64(location)).Scan(&parentPath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrLocationNotFound, location)
		}
		return nil, err
	}

	ids := make([]int64, len(products))
	for i, id := range products {
		ids[i] = int64(id)
	}
	rows, err := r.db.Query(ctx, freeQtyQuery, ids, parentPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[ProductID]decimal.Decimal, len(products))
	for rows.Next() {
		var (
			productID int64
			raw       string
		)
		if err := rows.Scan(&productID, &raw); err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("inventory: parse free qty for product %d: %w", productID, err)
		}
		result[ProductID(productID)] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

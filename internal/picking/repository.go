package picking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/replenishment/internal/platform/db"
	"github.com/odyssey-erp/replenishment/internal/procurement"
)

// ErrNotFound indicates a missing picking or move row.
var ErrNotFound = errors.New("picking: record not found")

// Repository provides PostgreSQL backed persistence for pickings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) InsertPicking(ctx context.Context, p Picking) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_pickings (reference, company_id, partner_id, picking_type_id,
		                            location_id, location_dest_id, origin, group_id,
		                            state, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		p.Reference, p.CompanyID, nullID(p.Header.PartnerID), nullID(p.Header.PickingTypeID),
		int64(p.Header.LocationID), int64(p.Header.LocationDestID), p.Header.Origin, nullID(p.Header.GroupID),
		string(p.State), p.CreatedBy, p.CreatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertMove(ctx context.Context, pickingID int64, m procurement.ResolvedMove, createdBy int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_moves (picking_id, name, product_id, product_uom_qty, product_uom_id,
		                         location_id, location_dest_id, company_id, partner_id,
		                         picking_type_id, origin, group_id, rule_id, procure_method,
		                         state, created_by)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'draft', $15)
		RETURNING id`,
		pickingID, m.Name, int64(m.ProductID), m.Qty.String(), m.UoMID,
		int64(m.LocationID), int64(m.LocationDestID), m.CompanyID, nullID(m.PartnerID),
		nullID(m.PickingTypeID), m.Origin, nullID(m.GroupID), nullID(m.RuleID), string(m.ProcureMethod),
		createdBy,
	).Scan(&id)
	return id, err
}

func (t *txRepo) SetMoveState(ctx context.Context, moveID int64, state State) error {
	return t.exec(ctx, `UPDATE stock_moves SET state = $2, updated_at = NOW() WHERE id = $1`, moveID, string(state))
}

func (t *txRepo) SetPickingState(ctx context.Context, pickingID int64, state State) error {
	return t.exec(ctx, `UPDATE stock_pickings SET state = $2, updated_at = NOW() WHERE id = $1`, pickingID, string(state))
}

func (t *txRepo) exec(ctx context.Context, sql string, id int64, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// nullID maps the zero id to SQL NULL.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

var (
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = errors.New("shared: idempotent request already processed")
	// ErrIdempotencyKeyRequired indicates a blank key or module.
	ErrIdempotencyKeyRequired = errors.New("shared: idempotency key and module required")
)

// IdempotencyStore persists processed keys in idempotency_keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// CheckAndInsert claims key within module, returning ErrIdempotencyConflict
// when it was already claimed.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if key == "" || module == "" {
		return ErrIdempotencyKeyRequired
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, s.now())
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Delete releases a key so a failed run can be retried.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if key == "" || module == "" {
		return ErrIdempotencyKeyRequired
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsUniqueViolation reports whether err is a PostgreSQL duplicate key error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

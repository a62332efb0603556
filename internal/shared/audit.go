package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAuditNotInitialised indicates a nil audit logger.
	ErrAuditNotInitialised = errors.New("shared: audit logger not initialised")
	// ErrAuditIncomplete indicates a record without action, entity or entity id.
	ErrAuditIncomplete = errors.New("shared: audit log requires action/entity/entity_id")
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Validate checks the mandatory fields.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return ErrAuditIncomplete
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. A zero At is stored as the database time.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return ErrAuditNotInitialised
	}
	if err := log.Validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

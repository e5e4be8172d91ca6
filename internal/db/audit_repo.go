package db

import (
	"context"
	"encoding/json"

	"tippslottet/internal/types"
)

// AuditRepository provides insert-only data access for the admin audit log.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new AuditRepository backed by the given
// database connection (pool or transaction).
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Log inserts one audit event. There is no update or delete path: the audit
// trail is append-only.
func (r *AuditRepository) Log(ctx context.Context, event types.AuditEvent) error {
	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode audit details", err)
		}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_events (id, actor_email, action, target_id, details, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.ActorEmail, event.Action, event.TargetID, details, event.OccurredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write audit event", err)
	}
	return nil
}

// List returns the most recent audit events, newest first, capped at limit.
func (r *AuditRepository) List(ctx context.Context, limit int) ([]types.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, actor_email, action, target_id, details, occurred_at
		 FROM audit_events
		 ORDER BY occurred_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list audit events", err)
	}
	defer rows.Close()

	var events []types.AuditEvent
	for rows.Next() {
		var e types.AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.ActorEmail, &e.Action, &e.TargetID, &details, &e.OccurredAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan audit event", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode audit details", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate audit events", err)
	}
	return events, nil
}

var _ types.AuditLogger = (*AuditRepository)(nil)

package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"surveysync.org/internal/audit"
	"surveysync.org/internal/ids"
)

var _ audit.Sink = (*AuditSink)(nil)

// AuditSink appends events to audit_logs. Payloads are redacted before they
// are written.
type AuditSink struct {
	db *sql.DB
}

func NewAuditSink(db *sql.DB) *AuditSink { return &AuditSink{db: db} }

func (s *AuditSink) Record(ctx context.Context, ev audit.Event) error {
	oldData, err := marshalPayload(ev.OldData)
	if err != nil {
		return err
	}
	newData, err := marshalPayload(ev.NewData)
	if err != nil {
		return err
	}
	severity := ev.Severity
	if severity == "" {
		severity = audit.SeverityInfo
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_logs(
			id, user_id, action, entity_type, entity_id, old_data, new_data,
			ip_address, user_agent, severity, request_id, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, ids.NewAt(ev.OccurredAt), nullIfEmpty(ev.UserID), ev.Action, ev.EntityType, nullIfEmpty(ev.EntityID),
		oldData, newData, nullIfEmpty(ev.IPAddress), nullIfEmpty(ev.UserAgent), string(severity),
		nullIfEmpty(audit.RequestIDFromContext(ctx)), ev.OccurredAt)
	return err
}

func marshalPayload(data map[string]any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(audit.Redact(data))
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return b, nil
}

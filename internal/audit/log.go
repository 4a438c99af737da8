package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"surveysync.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogSink writes audit events as JSON lines through the shared logger.
type LogSink struct {
	now func() time.Time
}

// NewLogSink returns a sink writing to obs.Logger().
func NewLogSink() *LogSink {
	return &LogSink{now: time.Now}
}

// Record writes one entry. Sensitive keys in old and new data are redacted.
func (s *LogSink) Record(ctx context.Context, ev Event) error {
	ev.Action = strings.TrimSpace(ev.Action)
	if ev.Action == "" {
		return errors.New("audit: action is required")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", ev.Action),
		slog.String("severity", string(ev.normalizedSeverity())),
		slog.String("occurred_at", ev.OccurredAt.UTC().Format(time.RFC3339Nano)),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if ev.UserID != "" {
		attrs = append(attrs, slog.String("user_id", ev.UserID))
	}
	if ev.EntityType != "" {
		attrs = append(attrs, slog.String("entity_type", ev.EntityType))
	}
	if ev.EntityID != "" {
		attrs = append(attrs, slog.String("entity_id", ev.EntityID))
	}
	if ev.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ev.IPAddress))
	}
	if ev.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", ev.UserAgent))
	}
	if len(ev.OldData) > 0 {
		attrs = append(attrs, slog.Any("old_data", Redact(ev.OldData)))
	}
	newData := Redact(ev.NewData)
	if newData == nil {
		newData = map[string]any{}
	}
	attrs = append(attrs, slog.Any("new_data", newData))

	obs.Logger().LogAttrs(ctx, ev.level(), "audit", attrs...)
	return nil
}

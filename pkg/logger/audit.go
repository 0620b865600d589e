package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents one audited lifecycle action
type AuditEvent struct {
	EventType string
	Actor     string
	Email     string
	Success   bool
	Metadata  map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogOtpEvent logs an OTP lifecycle event (issue, submit, approve, reject,
// delete). Recipient emails are masked before they reach the log stream.
func (al *AuditLogger) LogOtpEvent(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "otp"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Actor != "" {
		attrs = append(attrs, slog.String("actor", event.Actor))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

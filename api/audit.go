package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aibiliti/kbdash/internal/uuid"
	"github.com/aibiliti/kbdash/storage"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess       AuditEvent = "login_success"
	AuditLoginFailure       AuditEvent = "login_failure"
	AuditLoginNotConfigured AuditEvent = "login_not_configured"
	AuditLogout             AuditEvent = "logout"
	AuditSessionRejected    AuditEvent = "session_rejected"
	AuditCSRFRejected       AuditEvent = "csrf_rejected"
)

// auditLogger wraps slog.Logger for structured security audit logging and
// fans each event out to the repository, the alert collector, and the
// collector forwarder.
type auditLogger struct {
	logger   *slog.Logger
	repo     storage.Repository
	metrics  *metricsCollector
	forward  *auditForwarder
	clientIP func(*http.Request) string
}

func newAuditLogger(logger *slog.Logger, repo storage.Repository, clientIP func(*http.Request) string) *auditLogger {
	return &auditLogger{
		logger:   logger.With("component", "audit"),
		repo:     repo,
		clientIP: clientIP,
	}
}

// log writes a structured audit log entry. subject is the configured
// username on success paths and "" otherwise; submitted usernames are never
// recorded.
func (al *auditLogger) log(event AuditEvent, r *http.Request, subject string, attrs ...slog.Attr) {
	now := time.Now().UTC()
	remote := al.clientIP(r)

	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", remote),
		slog.String("timestamp", now.Format(time.RFC3339)),
	}
	if subject != "" {
		baseAttrs = append(baseAttrs, slog.String("subject", subject))
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)

	record := storage.Event{
		ID:         uuid.New(),
		Type:       string(event),
		Subject:    subject,
		RemoteAddr: remote,
		CreatedAt:  now,
	}
	if al.repo != nil {
		if err := al.repo.Append(record); err != nil {
			al.logger.Warn("persisting audit event failed", "event", string(event), "error", err)
		}
	}
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
	if al.forward != nil {
		al.forward.submit(auditRecord{Event: record, Details: attrMap(attrs)})
	}
}

// logFailure logs a failed attempt with an internal reason.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, "", attrs...)
}

func attrMap(attrs []slog.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.String()
	}
	return m
}

// Package audit records auth events. Recording is best-effort and never fails the request
// that triggered it.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"covid-dashboard/platform/internal/audit/domain"
	auditrepo "covid-dashboard/platform/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. Used by the identity and session services.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, username, action, outcome, detail string)
}

// Emitter forwards audit entries to another sink (e.g. OTel logs).
type Emitter interface {
	Emit(ctx context.Context, entry *domain.AuditLog)
}

// MetricsRecorder counts audit events by action and outcome.
type MetricsRecorder interface {
	Record(ctx context.Context, action, outcome string)
}

// Logger implements AuditLogger using the audit repository and optional sinks.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     Emitter
	metrics     MetricsRecorder
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// repo and ipExtractor may be nil; then nothing is persisted or IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// WithEmitter also forwards every entry to e.
func (l *Logger) WithEmitter(e Emitter) *Logger {
	l.emitter = e
	return l
}

// WithMetrics also counts every entry in m.
func (l *Logger) WithMetrics(m MetricsRecorder) *Logger {
	l.metrics = m
	return l
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, username, action, outcome, detail string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		Username:  username,
		Action:    action,
		Outcome:   outcome,
		IP:        ip,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if l.metrics != nil {
		l.metrics.Record(ctx, action, outcome)
	}
	if l.emitter != nil {
		l.emitter.Emit(ctx, entry)
	}
	if l.repo == nil {
		return
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, outcome, err)
	}
}

// Nop is an AuditLogger that discards events.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}

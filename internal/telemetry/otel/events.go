package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"covid-dashboard/platform/internal/audit/domain"
)

const instrumentationName = "covid-dashboard/auth"

// recordEmitter is the subset of otellog.Logger used by AuditEmitter.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// AuditEmitter forwards audit entries as OTel log records. It implements audit.Emitter.
type AuditEmitter struct {
	logger recordEmitter
}

// NewAuditEmitter returns an emitter on provider. A nil provider yields an emitter that drops entries.
func NewAuditEmitter(provider *sdklog.LoggerProvider) *AuditEmitter {
	if provider == nil {
		return &AuditEmitter{}
	}
	return &AuditEmitter{logger: provider.Logger(instrumentationName)}
}

// NewAuditEmitterWithLogger returns an emitter writing to logger.
func NewAuditEmitterWithLogger(logger recordEmitter) *AuditEmitter {
	return &AuditEmitter{logger: logger}
}

// Emit converts entry to a log record. Failures are impossible to observe here; the SDK
// batches and exports in the background.
func (e *AuditEmitter) Emit(ctx context.Context, entry *domain.AuditLog) {
	if e.logger == nil || entry == nil {
		return
	}
	var rec otellog.Record
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetEventName("auth." + entry.Action)
	rec.SetBody(otellog.StringValue(entry.Action + " " + entry.Outcome))
	if entry.Outcome == "failure" {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	rec.AddAttributes(
		otellog.String("audit.id", entry.ID),
		otellog.String("auth.action", entry.Action),
		otellog.String("auth.outcome", entry.Outcome),
		otellog.String("client.address", entry.IP),
	)
	if entry.Username != "" {
		rec.AddAttributes(otellog.String("user.name", entry.Username))
	}
	if entry.Detail != "" {
		rec.AddAttributes(otellog.String("auth.detail", entry.Detail))
	}
	e.logger.Emit(ctx, rec)
}

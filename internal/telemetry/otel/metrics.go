package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics counts auth events. It implements audit.MetricsRecorder.
type AuthMetrics struct {
	events  metric.Int64Counter
	expired metric.Int64Counter
}

// NewAuthMetrics registers the auth instruments on meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	events, err := meter.Int64Counter("auth.events",
		metric.WithDescription("Auth events by action and outcome."),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	expired, err := meter.Int64Counter("auth.sessions.expired",
		metric.WithDescription("Sessions found past their expiry during validation."),
		metric.WithUnit("{session}"))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{events: events, expired: expired}, nil
}

// Record counts one event.
func (m *AuthMetrics) Record(ctx context.Context, action, outcome string) {
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth.action", action),
		attribute.String("auth.outcome", outcome),
	))
	if action == "session_expired" {
		m.expired.Add(ctx, 1)
	}
}

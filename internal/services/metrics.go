package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/bionicotaku/lingo-services-engagement/internal/services"

// engagementMetrics 聚合互动与观看会话的指标。
type engagementMetrics struct {
	toggles  metric.Int64Counter
	settled  metric.Int64Counter
	retries  metric.Int64Counter
	sessions metric.Int64Counter
}

func newEngagementMetrics() *engagementMetrics {
	meter := otel.Meter(meterName)
	return &engagementMetrics{
		toggles:  int64Counter(meter, "engagement.toggle.requests", "Toggle requests by kind and admission result"),
		settled:  int64Counter(meter, "engagement.toggle.settled", "Settled toggle operations by outcome"),
		retries:  int64Counter(meter, "engagement.toggle.retries", "Persistence retries after transient failures"),
		sessions: int64Counter(meter, "engagement.view.sessions", "View session lifecycle events"),
	}
}

func int64Counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil || counter == nil {
		return noop.Int64Counter{}
	}
	return counter
}

func (m *engagementMetrics) recordToggle(ctx context.Context, kind, result string) {
	if m == nil {
		return
	}
	m.toggles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func (m *engagementMetrics) recordSettled(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.settled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (m *engagementMetrics) recordRetry(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *engagementMetrics) recordSession(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

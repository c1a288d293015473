package engagement

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricNameApplied = "engagement_change_applied_total"
	metricNameSkipped = "engagement_change_skipped_total"
	metricNameFailure = "engagement_change_decode_failure_total"
	metricNameLag     = "engagement_change_lag_ms"
)

type metrics struct {
	applied metric.Int64Counter
	skipped metric.Int64Counter
	failure metric.Int64Counter
	lag     metric.Float64Histogram
	enabled bool
}

func newMetrics(helper *log.Helper) *metrics {
	m := &metrics{}
	meter := otel.GetMeterProvider().Meter("lingo-services-engagement.changefeed")
	if meter == nil {
		return m
	}
	var err error
	if m.applied, err = meter.Int64Counter(metricNameApplied,
		metric.WithDescription("Number of change events applied to the engagement cache")); err != nil {
		helper.Warnf("changefeed metrics: register applied counter: %v", err)
		return m
	}
	if m.skipped, err = meter.Int64Counter(metricNameSkipped,
		metric.WithDescription("Number of stale or duplicate change events")); err != nil {
		helper.Warnf("changefeed metrics: register skipped counter: %v", err)
	}
	if m.failure, err = meter.Int64Counter(metricNameFailure,
		metric.WithDescription("Number of change payloads that failed to decode")); err != nil {
		helper.Warnf("changefeed metrics: register failure counter: %v", err)
	}
	if m.lag, err = meter.Float64Histogram(metricNameLag,
		metric.WithDescription("Lag between occurred_at and cache apply"), metric.WithUnit("ms")); err != nil {
		helper.Warnf("changefeed metrics: register lag histogram: %v", err)
	}
	m.enabled = true
	return m
}

func (m *metrics) recordApplied(ctx context.Context, kind string, occurredAt, now time.Time) {
	if m == nil || !m.enabled {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if m.applied != nil {
		m.applied.Add(ctx, 1, attrs)
	}
	if m.lag != nil {
		lag := max(now.Sub(occurredAt).Milliseconds(), 0)
		m.lag.Record(ctx, float64(lag), attrs)
	}
}

func (m *metrics) recordSkipped(ctx context.Context, kind string) {
	if m == nil || !m.enabled || m.skipped == nil {
		return
	}
	m.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *metrics) recordFailure(ctx context.Context) {
	if m == nil || !m.enabled || m.failure == nil {
		return
	}
	m.failure.Add(ctx, 1)
}

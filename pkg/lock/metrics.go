package lock

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/bruj0/spec-kitty-sub000/pkg/lock"

// Metrics records lock contention. Instruments degrade to no-ops when the
// meter provider rejects them; lock correctness never depends on telemetry.
type Metrics struct {
	waitDur  metric.Float64Histogram
	reclaims metric.Int64Counter
}

func newMetrics(logger *zap.Logger) *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.waitDur, err = meter.Float64Histogram(
		"kitty.lock.wait_seconds",
		metric.WithDescription("Time spent waiting to acquire a resource lock, labeled by resource id"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300),
	)
	if err != nil {
		logger.Warn("failed to create lock wait histogram", zap.Error(err))
	}

	m.reclaims, err = meter.Int64Counter(
		"kitty.lock.reclaimed_total",
		metric.WithDescription("Stale lock markers reclaimed from dead or expired owners"),
		metric.WithUnit("{lock}"),
	)
	if err != nil {
		logger.Warn("failed to create lock reclaim counter", zap.Error(err))
	}

	return m
}

func (m *Metrics) recordWait(ctx context.Context, resourceID string, waited time.Duration) {
	if m == nil || m.waitDur == nil {
		return
	}
	m.waitDur.Record(ctx, waited.Seconds(),
		metric.WithAttributes(attribute.String("resource", resourceID)))
}

func (m *Metrics) recordReclaim(ctx context.Context, resourceID string) {
	if m == nil || m.reclaims == nil {
		return
	}
	m.reclaims.Add(ctx, 1,
		metric.WithAttributes(attribute.String("resource", resourceID)))
}

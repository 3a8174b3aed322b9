package versioning

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("skillvcs.versioning")

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillvcs_operations_total",
		Help: "Version manager operations by result",
	}, []string{"operation", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skillvcs_operation_duration_seconds",
		Help:    "Version manager operation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	}, []string{"operation"})

	mergeConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skillvcs_merge_conflicts_total",
		Help: "Conflicts produced by line merges",
	})

	blobCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillvcs_blob_cache_requests_total",
		Help: "Hot tier blob cache lookups by result",
	}, []string{"result"})

	notifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skillvcs_notify_failures_total",
		Help: "Lifecycle notifications that failed to deliver",
	})
)

// resultLabel maps an operation error onto a low-cardinality metric label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	if kind, ok := KindOf(err); ok {
		return kind.String()
	}
	return "error"
}

// startOperation opens a span for op and returns a finisher that records the
// outcome on the span and in the operation metrics.
func startOperation(ctx context.Context, op, documentID, versionLabel string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "versioning."+op, trace.WithAttributes(
		attribute.String("document.id", documentID),
		attribute.String("version.label", versionLabel),
	))

	return ctx, func(err error) {
		result := resultLabel(err)
		operationsTotal.WithLabelValues(op, result).Inc()
		operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

package core

import (
	"context"
	"farmvault/internal/arena"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PrometheusRecorder exports operation outcomes and partition usage.
type PrometheusRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	partitions *prometheus.GaugeVec
}

// NewPrometheusRecorder registers the store collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmvault",
			Name:      "operations_total",
			Help:      "Store operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "farmvault",
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
		partitions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "farmvault",
			Name:      "partition_bytes",
			Help:      "Logical bytes used per arena partition.",
		}, []string{"partition"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.partitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPartitions publishes the logical length of each partition.
func (r *PrometheusRecorder) RecordPartitions(usage map[arena.PartitionID]int64) {
	for id, n := range usage {
		r.partitions.WithLabelValues(strconv.Itoa(int(id))).Set(float64(n))
	}
}

// NewOTelTracer adapts an OpenTelemetry tracer.
func NewOTelTracer(t trace.Tracer) Tracer {
	return otelTracer{t: t}
}

type otelTracer struct {
	t trace.Tracer
}

func (o otelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := o.t.Start(ctx, "farmvault."+operation)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

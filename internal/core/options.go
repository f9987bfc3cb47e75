package core

import (
	"context"
	"time"
)

// Default lifecycle durations.
const (
	DefaultFundingWindow = 30 * 24 * time.Hour
	DefaultLoanTerm      = 180 * 24 * time.Hour
)

// Clock supplies timestamps for lifecycle transitions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logger used by the store. hclog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes the outcome of every store operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per store operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// Option customises a Store.
type Option func(*options)

type options struct {
	clock         Clock
	logger        Logger
	metrics       MetricsRecorder
	tracer        Tracer
	fundingWindow time.Duration
	loanTerm      time.Duration
}

func defaultOptions() options {
	return options{
		clock:         ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:        noopLogger{},
		metrics:       noopMetrics{},
		tracer:        noopTracer{},
		fundingWindow: DefaultFundingWindow,
		loanTerm:      DefaultLoanTerm,
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithLoanDurations sets the funding window and loan term. Non-positive values
// keep the defaults.
func WithLoanDurations(fundingWindow, loanTerm time.Duration) Option {
	return func(o *options) {
		if fundingWindow > 0 {
			o.fundingWindow = fundingWindow
		}
		if loanTerm > 0 {
			o.loanTerm = loanTerm
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

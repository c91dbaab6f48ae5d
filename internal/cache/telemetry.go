package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce       sync.Once
	operationTotal    metric.Int64Counter
	operationDuration metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/chinmina/translator-bridge/internal/cache")

		var err error
		operationTotal, err = meter.Int64Counter(
			"token_cache.operations",
			metric.WithDescription("Token cache operations by backend and outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}

		operationDuration, err = meter.Float64Histogram(
			"token_cache.operation.duration",
			metric.WithDescription("Token cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// observe records one operation as metrics and as attributes of the current
// span, if any.
func observe(ctx context.Context, backend, operation, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("token_cache.backend", backend),
		attribute.String("token_cache.operation", operation),
		attribute.String("token_cache.status", status),
	)
	if operationTotal != nil {
		operationTotal.Add(ctx, 1, attrs)
	}
	if operationDuration != nil {
		operationDuration.Record(ctx, duration.Seconds(), attrs)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("token_cache.backend", backend),
		attribute.String("token_cache."+operation+".status", status),
		attribute.Float64("token_cache."+operation+".duration", duration.Seconds()),
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Instrumented records metrics and span attributes for every operation of
// the wrapped cache.
type Instrumented[T any] struct {
	wrapped TokenCache[T]
	backend string
}

// NewInstrumented wraps cache. The backend name ("memory" or "valkey") is
// recorded with each operation.
func NewInstrumented[T any](cache TokenCache[T], backend string) *Instrumented[T] {
	initMetrics()
	return &Instrumented[T]{wrapped: cache, backend: backend}
}

func (i *Instrumented[T]) Get(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()
	value, found, err := i.wrapped.Get(ctx, key)

	status := "miss"
	switch {
	case err != nil:
		status = "error"
	case found:
		status = "hit"
	}
	observe(ctx, i.backend, "get", status, time.Since(start))

	return value, found, err
}

func (i *Instrumented[T]) Set(ctx context.Context, key string, value T) error {
	start := time.Now()
	err := i.wrapped.Set(ctx, key, value)
	observe(ctx, i.backend, "set", outcome(err), time.Since(start))
	return err
}

func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	start := time.Now()
	err := i.wrapped.Invalidate(ctx, key)
	observe(ctx, i.backend, "invalidate", outcome(err), time.Since(start))
	return err
}

func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

// InstrumentedSealer records seal and open operations of the wrapped Sealer.
type InstrumentedSealer struct {
	wrapped Sealer
}

func NewInstrumentedSealer(sealer Sealer) *InstrumentedSealer {
	initMetrics()
	return &InstrumentedSealer{wrapped: sealer}
}

func (s *InstrumentedSealer) Seal(ctx context.Context, plaintext []byte, key string) (string, error) {
	start := time.Now()
	sealed, err := s.wrapped.Seal(ctx, plaintext, key)
	observe(ctx, "sealer", "seal", outcome(err), time.Since(start))
	return sealed, err
}

func (s *InstrumentedSealer) Open(ctx context.Context, sealed string, key string) ([]byte, error) {
	start := time.Now()
	plaintext, err := s.wrapped.Open(ctx, sealed, key)
	observe(ctx, "sealer", "open", outcome(err), time.Since(start))
	return plaintext, err
}

func (s *InstrumentedSealer) Namespace() string {
	return s.wrapped.Namespace()
}

func (s *InstrumentedSealer) Close() error {
	return s.wrapped.Close()
}

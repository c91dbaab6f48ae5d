package auth

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
	metricsOnce    sync.Once
	fetchTotal     metric.Int64Counter
	fetchDuration  metric.Float64Histogram
	tokenCacheHits metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/chinmina/translator-bridge/internal/auth")

		var err error
		fetchTotal, err = meter.Int64Counter(
			"auth.fetch",
			metric.WithDescription("Access token requests made to the auth endpoint"),
		)
		if err != nil {
			otel.Handle(err)
		}

		fetchDuration, err = meter.Float64Histogram(
			"auth.fetch.duration",
			metric.WithDescription("Access token request duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}

		tokenCacheHits, err = meter.Int64Counter(
			"auth.token.reuse",
			metric.WithDescription("Access token lookups served without a fetch"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func recordFetch(ctx context.Context, outcome string, duration time.Duration) {
	if fetchTotal != nil {
		fetchTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("auth.outcome", outcome)))
	}
	if fetchDuration != nil {
		fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("auth.outcome", outcome)))
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("auth.fetch.outcome", outcome),
		attribute.Float64("auth.fetch.duration", duration.Seconds()),
	)
}

func recordReuse(ctx context.Context) {
	if tokenCacheHits != nil {
		tokenCacheHits.Add(ctx, 1)
	}
}

package gemini

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type geminiMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	rateLimitWait   metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	metrics     geminiMetrics
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/kzhara/lathemind/backend/internal/infrastructure/clients/gemini")
		metrics.requestCount, _ = meter.Int64Counter(
			"gemini.request.count",
			metric.WithDescription("Number of Gemini API requests"),
		)
		metrics.requestDuration, _ = meter.Float64Histogram(
			"gemini.request.duration",
			metric.WithDescription("Gemini API request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		metrics.requestErrors, _ = meter.Int64Counter(
			"gemini.request.errors",
			metric.WithDescription("Number of failed Gemini API requests"),
		)
		metrics.rateLimitWait, _ = meter.Float64Histogram(
			"gemini.ratelimit.wait",
			metric.WithDescription("Time spent waiting on the client rate limiter in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

func recordGeminiMetric(ctx context.Context, model, operation string, status int, duration time.Duration, err error) {
	ensureMetrics()

	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("gemini.operation", operation),
		attribute.Int("http.status_code", status),
	}

	if metrics.requestCount != nil {
		metrics.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if metrics.requestDuration != nil && duration > 0 {
		metrics.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	}
	if err != nil && metrics.requestErrors != nil {
		metrics.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordGeminiRateLimitWait(ctx context.Context, model string, wait time.Duration) {
	ensureMetrics()
	if metrics.rateLimitWait != nil {
		metrics.rateLimitWait.Record(ctx, float64(wait.Milliseconds()),
			metric.WithAttributes(attribute.String("gemini.model", model)))
	}
}

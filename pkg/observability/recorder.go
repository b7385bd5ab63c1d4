package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records what the pipeline does. Implementations must be
// safe for concurrent use and tolerate partial initialization.
type Metrics interface {
	RecordAnswer(ctx context.Context, duration time.Duration, attempts int, confidence float64, err error)
	RecordSearch(ctx context.Context, mode string, duration time.Duration, results int, err error)
	RecordRefinement(ctx context.Context)
	RecordIngest(ctx context.Context, source string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordEmbedding(ctx context.Context, model string, duration time.Duration, texts int, err error)
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration)
}

// PrometheusMetrics implements Metrics over OpenTelemetry instruments
// backed by the Prometheus exporter. The zero value is a usable no-op,
// every method nil-checks its instruments.
type PrometheusMetrics struct {
	answerDuration    metric.Float64Histogram
	answersTotal      metric.Int64Counter
	answerErrorsTotal metric.Int64Counter
	answerAttempts    metric.Float64Histogram
	answerConfidence  metric.Float64Histogram
	refinementsTotal  metric.Int64Counter

	searchDuration    metric.Float64Histogram
	searchesTotal     metric.Int64Counter
	searchErrorsTotal metric.Int64Counter

	ingestDuration    metric.Float64Histogram
	ingestDocsTotal   metric.Int64Counter
	ingestErrorsTotal metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter

	embedDuration   metric.Float64Histogram
	embedTextsTotal metric.Int64Counter

	httpDuration      metric.Float64Histogram
	httpRequestsTotal metric.Int64Counter
}

func (m *PrometheusMetrics) RecordAnswer(ctx context.Context, duration time.Duration, attempts int, confidence float64, err error) {
	if m == nil || m.answerDuration == nil || m.answersTotal == nil {
		return
	}

	m.answerDuration.Record(ctx, duration.Seconds())
	m.answersTotal.Add(ctx, 1)

	if m.answerAttempts != nil {
		m.answerAttempts.Record(ctx, float64(attempts))
	}
	if m.answerConfidence != nil {
		m.answerConfidence.Record(ctx, confidence)
	}
	if err != nil && m.answerErrorsTotal != nil {
		m.answerErrorsTotal.Add(ctx, 1)
	}
}

func (m *PrometheusMetrics) RecordSearch(ctx context.Context, mode string, duration time.Duration, results int, err error) {
	if m == nil || m.searchDuration == nil || m.searchesTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
	}

	m.searchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.searchesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.searchErrorsTotal != nil {
		m.searchErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordRefinement(ctx context.Context) {
	if m == nil || m.refinementsTotal == nil {
		return
	}
	m.refinementsTotal.Add(ctx, 1)
}

func (m *PrometheusMetrics) RecordIngest(ctx context.Context, source string, duration time.Duration, err error) {
	if m == nil || m.ingestDuration == nil || m.ingestDocsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("source", source),
	}

	m.ingestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if err != nil {
		if m.ingestErrorsTotal != nil {
			m.ingestErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		return
	}
	m.ingestDocsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil || m.llmInputTokens == nil || m.llmOutputTokens == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))

	if err != nil && m.llmErrorsTotal != nil {
		m.llmErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordEmbedding(ctx context.Context, model string, duration time.Duration, texts int, err error) {
	if m == nil || m.embedDuration == nil || m.embedTextsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}

	m.embedDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if err == nil {
		m.embedTextsTotal.Add(ctx, int64(texts), metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpDuration == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", statusCode),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// SetGlobalMetrics installs the process-wide metrics sink.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics sink, nil before
// initialization. Callers nil-check.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

var _ Metrics = (*PrometheusMetrics)(nil)

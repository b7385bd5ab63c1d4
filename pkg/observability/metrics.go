package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics builds Prometheus-backed instruments. The exporter
// registers with the default Prometheus registry, so the HTTP server
// can expose everything through promhttp.
func InitMetrics(ctx context.Context, enabled bool) (*PrometheusMetrics, error) {
	if !enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("dowser")

	m := &PrometheusMetrics{}

	m.answerDuration, err = meter.Float64Histogram(
		"dowser_answer_duration_seconds",
		metric.WithDescription("End-to-end answer duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer duration histogram: %w", err)
	}

	m.answersTotal, err = meter.Int64Counter(
		"dowser_answers_total",
		metric.WithDescription("Total answered questions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create answers counter: %w", err)
	}

	m.answerErrorsTotal, err = meter.Int64Counter(
		"dowser_answer_errors_total",
		metric.WithDescription("Total failed answer attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer errors counter: %w", err)
	}

	m.answerAttempts, err = meter.Float64Histogram(
		"dowser_answer_attempts",
		metric.WithDescription("Retrieval attempts consumed per answer"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts histogram: %w", err)
	}

	m.answerConfidence, err = meter.Float64Histogram(
		"dowser_answer_confidence",
		metric.WithDescription("Confidence of the attempt used for synthesis"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create confidence histogram: %w", err)
	}

	m.refinementsTotal, err = meter.Int64Counter(
		"dowser_refinements_total",
		metric.WithDescription("Total query refinements"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refinements counter: %w", err)
	}

	m.searchDuration, err = meter.Float64Histogram(
		"dowser_search_duration_seconds",
		metric.WithDescription("Store search duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}

	m.searchesTotal, err = meter.Int64Counter(
		"dowser_searches_total",
		metric.WithDescription("Total store searches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create searches counter: %w", err)
	}

	m.searchErrorsTotal, err = meter.Int64Counter(
		"dowser_search_errors_total",
		metric.WithDescription("Total failed store searches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search errors counter: %w", err)
	}

	m.ingestDuration, err = meter.Float64Histogram(
		"dowser_ingest_duration_seconds",
		metric.WithDescription("Per-document ingest duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest duration histogram: %w", err)
	}

	m.ingestDocsTotal, err = meter.Int64Counter(
		"dowser_ingest_documents_total",
		metric.WithDescription("Total ingested documents"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest documents counter: %w", err)
	}

	m.ingestErrorsTotal, err = meter.Int64Counter(
		"dowser_ingest_errors_total",
		metric.WithDescription("Total failed document ingests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest errors counter: %w", err)
	}

	m.llmDuration, err = meter.Float64Histogram(
		"dowser_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	m.llmInputTokens, err = meter.Int64Counter(
		"dowser_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	m.llmOutputTokens, err = meter.Int64Counter(
		"dowser_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	m.llmErrorsTotal, err = meter.Int64Counter(
		"dowser_llm_errors_total",
		metric.WithDescription("Total LLM errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	m.embedDuration, err = meter.Float64Histogram(
		"dowser_embedding_duration_seconds",
		metric.WithDescription("Embedding request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding duration histogram: %w", err)
	}

	m.embedTextsTotal, err = meter.Int64Counter(
		"dowser_embedding_texts_total",
		metric.WithDescription("Total texts embedded"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding texts counter: %w", err)
	}

	m.httpDuration, err = meter.Float64Histogram(
		"dowser_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.httpRequestsTotal, err = meter.Int64Counter(
		"dowser_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return m, nil
}

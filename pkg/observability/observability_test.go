package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dowser-io/dowser/pkg/config"
)

func TestMetricsRecordingNilSafe(t *testing.T) {
	ctx := context.Background()

	// Zero value has nil instruments; every method must be a no-op.
	metrics := &PrometheusMetrics{}

	metrics.RecordAnswer(ctx, 100*time.Millisecond, 2, 0.85, nil)
	metrics.RecordSearch(ctx, "hybrid", 50*time.Millisecond, 10, nil)
	metrics.RecordRefinement(ctx)
	metrics.RecordIngest(ctx, "directory", 20*time.Millisecond, nil)
	metrics.RecordLLMCall(ctx, "gpt-4o", 500*time.Millisecond, 100, 50, nil)
	metrics.RecordEmbedding(ctx, "nomic-embed-text", 30*time.Millisecond, 8, nil)
	metrics.RecordHTTPRequest(ctx, http.MethodPost, "/v1/ask", 200, 1200*time.Millisecond)
}

func TestGlobalMetrics(t *testing.T) {
	SetGlobalMetrics(nil)
	if GetGlobalMetrics() != nil {
		t.Error("expected nil before initialization")
	}

	m := &PrometheusMetrics{}
	SetGlobalMetrics(m)
	defer SetGlobalMetrics(nil)

	if GetGlobalMetrics() == nil {
		t.Error("expected metrics after SetGlobalMetrics")
	}
}

func TestGetTracerBeforeInit(t *testing.T) {
	tracer := GetTracer("dowser.test")

	ctx, span := tracer.Start(context.Background(), "test_span")
	defer span.End()

	if ctx == nil {
		t.Fatal("expected a context")
	}
}

func TestInitGlobalTracerDisabled(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitGlobalTracer: %v", err)
	}
	if tp == nil {
		t.Fatal("expected a provider even when disabled")
	}
}

func TestInitGlobalTracerUnknownExporter(t *testing.T) {
	_, err := InitGlobalTracer(context.Background(), config.TracingConfig{
		Enabled:  true,
		Exporter: "carrier-pigeon",
	})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	handler := HTTPMiddleware(GetTracer("test"), &PrometheusMetrics{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte("short and stout"))
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if rec.Body.String() != "short and stout" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

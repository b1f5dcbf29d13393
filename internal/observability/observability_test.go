package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetricsCollectorRegistersAll(t *testing.T) {
	m := NewMetricsCollector()
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}
	m.ObserveChat("placeholder", 10*time.Millisecond)
	m.HTTPRequestsTotal.WithLabelValues("GET", "/api/health", "200").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families gathered")
	}
}

func TestObserveChatCounts(t *testing.T) {
	m := NewMetricsCollector()
	m.ObserveChat("provider", 50*time.Millisecond)
	m.ObserveChat("provider", 70*time.Millisecond)
	m.ObserveChat("placeholder", time.Millisecond)

	if got := counterValue(t, m.Registry, "joytrunk_chat_replies_total", prometheus.Labels{"source": "provider"}); got != 2 {
		t.Errorf("provider replies = %v, want 2", got)
	}
	if got := counterValue(t, m.Registry, "joytrunk_chat_replies_total", prometheus.Labels{"source": "placeholder"}); got != 1 {
		t.Errorf("placeholder replies = %v, want 1", got)
	}
}

func TestDisabledTracerSetup(t *testing.T) {
	ts, err := NewTracerSetup(&TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracerSetup: %v", err)
	}
	if ts != nil {
		t.Error("disabled tracing should yield nil setup")
	}
	// Nil setup still hands out a usable tracer.
	if ts.Tracer() == nil {
		t.Error("Tracer() on nil setup must not be nil")
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("JOYTRUNK_TRACING_ENABLED", "true")
	t.Setenv("JOYTRUNK_TRACING_PROTOCOL", "http")
	t.Setenv("JOYTRUNK_TRACING_SAMPLE_RATE", "0.25")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Protocol != "http" || cfg.SampleRate != 0.25 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ServiceName != "joytrunk" {
		t.Errorf("service name = %q", cfg.ServiceName)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetricsCollector()
	handler := HTTPMetricsMiddleware(m, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/api/employees/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	got := counterValue(t, m.Registry, "joytrunk_http_requests_total",
		prometheus.Labels{"method": "GET", "path": "/api/employees/x", "status_code": "404"})
	if got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestHTTPMetricsMiddlewareNilMetrics(t *testing.T) {
	handler := HTTPMetricsMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func matchLabels(metric *dto.Metric, labels prometheus.Labels) bool {
	got := map[string]string{}
	for _, pair := range metric.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

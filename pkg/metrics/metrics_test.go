package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.registry == nil {
		t.Fatal("registry is nil")
	}
}

func TestRecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest("/train", 200, 50*time.Millisecond)
	m.RecordRequest("/train", 200, 100*time.Millisecond)
	m.RecordRequest("/train", 400, 5*time.Millisecond)

	val := counterValue(t, m.RequestsTotal, "endpoint", "/train", "status", "200")
	if val != 2 {
		t.Errorf("expected 2 requests with status 200, got %f", val)
	}

	val = counterValue(t, m.RequestsTotal, "endpoint", "/train", "status", "400")
	if val != 1 {
		t.Errorf("expected 1 request with status 400, got %f", val)
	}
}

func TestRecordIteration(t *testing.T) {
	m := New()
	m.RecordIteration("job-1", 0.01, 2.5)
	m.RecordIteration("job-1", 0.005, 2.1)

	val := counterValue(t, m.TrainingIterationsTotal, "job", "job-1")
	if val != 2 {
		t.Errorf("expected 2 iterations recorded, got %f", val)
	}

	var metric dto.Metric
	gauge, err := m.ConvergenceDelta.GetMetricWith(prometheus.Labels{"job": "job-1"})
	if err != nil {
		t.Fatalf("failed to get gauge: %v", err)
	}
	if err := gauge.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.GetGauge().GetValue() != 0.005 {
		t.Errorf("expected last delta 0.005, got %f", metric.GetGauge().GetValue())
	}
}

func TestRecordRescue(t *testing.T) {
	m := New()
	m.RecordRescue("job-1")
	m.RecordRescue("job-1")

	val := counterValue(t, m.EmptyClusterRescues, "job", "job-1")
	if val != 2 {
		t.Errorf("expected 2 rescues, got %f", val)
	}
}

func TestRecordJobTerminal(t *testing.T) {
	m := New()
	m.RecordJobTerminal("succeeded")
	m.RecordJobTerminal("failed")
	m.RecordJobTerminal("succeeded")

	val := counterValue(t, m.TrainingJobsTotal, "status", "succeeded")
	if val != 2 {
		t.Errorf("expected 2 succeeded jobs, got %f", val)
	}
}

func TestRecordIngestAndExport(t *testing.T) {
	m := New()
	m.RecordIngest("csv", 100)
	m.RecordIngest("csv", 50)
	m.RecordExport("qdrant", 8)

	ingested := counterValue(t, m.RowsIngested, "format", "csv")
	if ingested != 150 {
		t.Errorf("expected 150 rows ingested, got %f", ingested)
	}

	exported := counterValue(t, m.CentroidsExported, "backend", "qdrant")
	if exported != 8 {
		t.Errorf("expected 8 centroids exported, got %f", exported)
	}
}

func TestMiddleware(t *testing.T) {
	m := New()

	handler := m.Middleware("/train", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodPost, "/train", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	val := counterValue(t, m.RequestsTotal, "endpoint", "/train", "status", "200")
	if val != 1 {
		t.Errorf("expected 1 request recorded, got %f", val)
	}
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	m := New()

	handler := m.Middleware("/train", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/train", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	val := counterValue(t, m.RequestsTotal, "endpoint", "/train", "status", "400")
	if val != 1 {
		t.Errorf("expected 1 request with status 400, got %f", val)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordRequest("/train", 200, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "kmeansd_requests_total") {
		t.Error("metrics output missing kmeansd_requests_total")
	}
	if !strings.Contains(body, "kmeansd_request_duration_seconds") {
		t.Error("metrics output missing kmeansd_request_duration_seconds")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output missing go runtime metrics")
	}
}

func TestActiveRequests(t *testing.T) {
	m := New()

	started := make(chan struct{})
	release := make(chan struct{})

	handler := m.Middleware("/train", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/train", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}()

	<-started

	var metric dto.Metric
	if err := m.ActiveRequests.Write(&metric); err != nil {
		t.Fatalf("failed to read gauge: %v", err)
	}
	if metric.GetGauge().GetValue() != 1 {
		t.Errorf("expected 1 active request, got %f", metric.GetGauge().GetValue())
	}

	close(release)
}

// counterValue extracts the value of a counter with the given label pairs.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labelPairs ...string) float64 {
	t.Helper()
	labels := prometheus.Labels{}
	for i := 0; i < len(labelPairs); i += 2 {
		labels[labelPairs[i]] = labelPairs[i+1]
	}
	counter, err := cv.GetMetricWith(labels)
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

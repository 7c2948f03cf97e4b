package infra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserveJob(t *testing.T) {
	m := NewMetrics()
	m.ObserveJob("comfyui", "succeeded", 3*time.Second)
	m.ObserveJob("comfyui", "failed", time.Second)
	m.ObserveJob("comfyui", "succeeded", time.Second)
	m.IncPoll("fashn")

	if got := testutil.ToFloat64(m.JobsTotal().WithLabelValues("comfyui", "succeeded")); got != 2 {
		t.Fatalf("succeeded jobs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PollRequests().WithLabelValues("fashn")); got != 1 {
		t.Fatalf("poll requests = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "tryon_jobs_total") {
		t.Fatalf("metrics output missing tryon_jobs_total:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveJob("fashn", "failed", time.Second)
	m.IncPoll("fashn")
}

package fashn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"tryon/internal/asset"
	"tryon/internal/domain"
	"tryon/internal/infra"
)

type fakeFashn struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	runBodies  []runRequest
	runStatus  int
	runBody    any
	statuses   []map[string]any
	statusHits int
	authSeen   []string
}

func newFakeFashn(t *testing.T) *fakeFashn {
	t.Helper()
	f := &fakeFashn{t: t, runBody: map[string]any{"id": "pred-1", "error": nil}}
	mux := http.NewServeMux()
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
		var body runRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.runBodies = append(f.runBodies, body)
		status := f.runStatus
		if status == 0 {
			status = http.StatusOK
		}
		writeJSON(w, status, f.runBody)
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
		idx := f.statusHits
		f.statusHits++
		if idx >= len(f.statuses) {
			f.t.Errorf("unexpected status request #%d", idx+1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/pred-1") {
			f.t.Errorf("status path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, f.statuses[idx])
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeFashn) client(t *testing.T, metrics *infra.Metrics) *Client {
	t.Helper()
	c, err := NewClient(Options{
		APIKey:       "secret",
		BaseURL:      f.srv.URL + "/",
		PollInterval: time.Millisecond,
		Metrics:      metrics,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestTryOnSubmitsInlineImagesAndPolls(t *testing.T) {
	fake := newFakeFashn(t)
	fake.statuses = []map[string]any{
		{"id": "pred-1", "status": "starting"},
		{"id": "pred-1", "status": "in_queue"},
		{"id": "pred-1", "status": "processing"},
		{"id": "pred-1", "status": "completed", "output": []any{"https://cdn.fashn.ai/pred-1/output_0.png"}},
	}
	metrics := infra.NewMetrics()
	c := fake.client(t, metrics)

	job, err := c.TryOn(context.Background(),
		asset.Asset{Data: []byte("person"), MIME: "image/jpeg"},
		asset.Asset{Data: []byte("garment"), MIME: "image/png"},
		map[string]any{"category": "tops", "model_image": "https://override.example/x.png"},
	)
	if err != nil {
		t.Fatalf("try on: %v", err)
	}
	if job.ID != "pred-1" || job.Status != domain.JobStatusSucceeded || job.Provider != ProviderName {
		t.Fatalf("job = %#v", job)
	}
	if len(job.Outputs) != 1 || job.Outputs[0] != "https://cdn.fashn.ai/pred-1/output_0.png" {
		t.Fatalf("outputs = %v", job.Outputs)
	}
	if fake.statusHits != 4 {
		t.Fatalf("status hits = %d, want 4", fake.statusHits)
	}
	if got := testutil.ToFloat64(metrics.PollRequests().WithLabelValues(ProviderName)); got != 4 {
		t.Fatalf("poll metric = %v, want 4", got)
	}

	run := fake.runBodies[0]
	if run.ModelName != defaultModel {
		t.Fatalf("model_name = %q", run.ModelName)
	}
	if run.Inputs["model_image"] != asset.Encode(asset.Asset{Data: []byte("person"), MIME: "image/jpeg"}) {
		t.Fatalf("model_image = %v", run.Inputs["model_image"])
	}
	if !strings.HasPrefix(run.Inputs["garment_image"].(string), "data:image/png;base64,") {
		t.Fatalf("garment_image = %v", run.Inputs["garment_image"])
	}
	if run.Inputs["category"] != "tops" {
		t.Fatalf("extra inputs not merged: %v", run.Inputs)
	}
	for _, auth := range fake.authSeen {
		if auth != "Bearer secret" {
			t.Fatalf("authorization = %q", auth)
		}
	}
}

func TestTryOnFailureCarriesReason(t *testing.T) {
	tests := []struct {
		name   string
		status map[string]any
		reason string
	}{
		{
			name:   "failed with object error",
			status: map[string]any{"status": "failed", "error": map[string]any{"name": "PoseError", "message": "no person detected"}},
			reason: "PoseError: no person detected",
		},
		{
			name:   "failed with string error",
			status: map[string]any{"status": "failed", "error": "quota exceeded"},
			reason: "quota exceeded",
		},
		{
			name:   "unknown status",
			status: map[string]any{"status": "canceled"},
			reason: "status canceled",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFakeFashn(t)
			fake.statuses = []map[string]any{tc.status}
			c := fake.client(t, nil)

			job, err := c.TryOn(context.Background(), asset.Asset{Data: []byte("p")}, asset.Asset{Data: []byte("g")}, nil)
			var failed *domain.JobFailed
			if !errors.As(err, &failed) {
				t.Fatalf("error = %v, want JobFailed", err)
			}
			if failed.Reason != tc.reason || failed.JobID != "pred-1" {
				t.Fatalf("failure = %#v, want reason %q", failed, tc.reason)
			}
			if job == nil || job.Status != domain.JobStatusFailed {
				t.Fatalf("job = %#v", job)
			}
			if fake.statusHits != 1 {
				t.Fatalf("status hits = %d, want 1", fake.statusHits)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		fake := newFakeFashn(t)
		fake.runStatus = http.StatusUnauthorized
		fake.runBody = map[string]any{"error": "invalid api key"}
		_, err := fake.client(t, nil).Run(context.Background(), map[string]any{})
		var terr *domain.TransportError
		if !errors.As(err, &terr) || terr.Status != http.StatusUnauthorized {
			t.Fatalf("error = %v, want TransportError 401", err)
		}
		if !strings.Contains(terr.Body, "invalid api key") {
			t.Fatalf("body = %q", terr.Body)
		}
	})
	t.Run("missing id", func(t *testing.T) {
		fake := newFakeFashn(t)
		fake.runBody = map[string]any{"error": nil}
		_, err := fake.client(t, nil).Run(context.Background(), map[string]any{})
		var perr *domain.ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("error = %v, want ProtocolError", err)
		}
	})
}

func TestWaitHonoursContext(t *testing.T) {
	fake := newFakeFashn(t)
	for range 1000 {
		fake.statuses = append(fake.statuses, map[string]any{"status": "processing"})
	}
	c, err := NewClient(Options{APIKey: "k", BaseURL: fake.srv.URL, PollInterval: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Wait(ctx, "pred-1")
	var terr *domain.TransportError
	if !errors.As(err, &terr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline transport error", err)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{APIKey: "  "}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("error = %v, want ErrMissingAPIKey", err)
	}
	c, err := NewClient(Options{APIKey: "k"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.baseURL != defaultBaseURL || c.ModelName() != defaultModel {
		t.Fatalf("defaults not applied: %s %s", c.baseURL, c.ModelName())
	}
}

func TestOutputsSkipsNonStrings(t *testing.T) {
	got := Outputs(map[string]any{"output": []any{"a", 3, "", "b"}})
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("outputs = %v", got)
	}
}

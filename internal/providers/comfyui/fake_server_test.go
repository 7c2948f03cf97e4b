package comfyui

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// historyStep is one scripted reply of GET /history/<id>.
type historyStep struct {
	status int
	body   any
}

// fakeComfy is a minimal ComfyUI server. Uploaded images are kept in memory
// and can be read back through /view?type=input.
type fakeComfy struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	uploads       []uploadRecord
	stored        map[string]bool
	viewCalls     []string
	viewStatus    map[string]int
	uploadStatus  int
	failAfter     int
	omitName      bool
	forgetUploads bool
	submitted     []map[string]any
	submitStatus  int
	submitBody    any
	history       []historyStep
	historyCalls  int
	uploadCounter int
}

type uploadRecord struct {
	filename    string
	contentType string
	data        []byte
}

func newFakeComfy(t *testing.T) *fakeComfy {
	t.Helper()
	f := &fakeComfy{
		t:          t,
		stored:     map[string]bool{},
		viewStatus: map[string]int{},
		submitBody: map[string]any{"prompt_id": "prompt-1", "number": 1},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/image", f.handleUpload)
	mux.HandleFunc("/view", f.handleView)
	mux.HandleFunc("/prompt", f.handlePrompt)
	mux.HandleFunc("/history/", f.handleHistory)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeComfy) client(t *testing.T, opts Options) *Client {
	t.Helper()
	opts.ServerURL = f.srv.URL
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func (f *fakeComfy) handleUpload(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadStatus != 0 && f.uploadCounter >= f.failAfter {
		w.WriteHeader(f.uploadStatus)
		_, _ = io.WriteString(w, "disk full")
		return
	}
	f.uploadCounter++
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)
	f.uploads = append(f.uploads, uploadRecord{
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		data:        data,
	})
	name := "stored_" + header.Filename
	if f.forgetUploads {
		writeJSON(w, http.StatusOK, map[string]any{"name": name})
		return
	}
	if f.omitName {
		name = header.Filename
		f.stored[name] = true
		_, _ = io.WriteString(w, "ok")
		return
	}
	f.stored[name] = true
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "subfolder": "", "type": "input"})
}

func (f *fakeComfy) handleView(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.URL.Query().Get("filename")
	f.viewCalls = append(f.viewCalls, name)
	if status, ok := f.viewStatus[name]; ok {
		w.WriteHeader(status)
		return
	}
	if r.URL.Query().Get("type") != "input" || !f.stored[name] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write([]byte("png"))
}

func (f *fakeComfy) handlePrompt(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.submitted = append(f.submitted, payload)
	status := f.submitStatus
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, f.submitBody)
}

func (f *fakeComfy) handleHistory(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.historyCalls
	f.historyCalls++
	if idx >= len(f.history) {
		f.t.Errorf("unexpected history request #%d", idx+1)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	step := f.history[idx]
	writeJSON(w, step.status, step.body)
}

func (f *fakeComfy) lastPrompt() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submitted) == 0 {
		return nil
	}
	prompt, _ := f.submitted[len(f.submitted)-1]["prompt"].(map[string]any)
	return prompt
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func historyDone(promptID string, filenames ...string) historyStep {
	images := make([]any, 0, len(filenames))
	for _, name := range filenames {
		images = append(images, map[string]any{"filename": name, "subfolder": "", "type": "output"})
	}
	return historyStep{status: http.StatusOK, body: map[string]any{
		promptID: map[string]any{
			"outputs": map[string]any{"60": map[string]any{"images": images}},
			"status":  map[string]any{"status_str": "success", "completed": true},
		},
	}}
}

func historyPending() historyStep {
	return historyStep{status: http.StatusNotFound, body: map[string]any{}}
}

func slotImage(prompt map[string]any, slot string) string {
	node, _ := prompt[slot].(map[string]any)
	inputs, _ := node["inputs"].(map[string]any)
	s, _ := inputs["image"].(string)
	return s
}

func mustContain(t *testing.T, s string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(s, p) {
			t.Fatalf("%q does not contain %q", s, p)
		}
	}
}

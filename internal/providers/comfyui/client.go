// Package comfyui drives a ComfyUI server: it uploads the caller's images,
// binds them into an API-format workflow, queues the prompt and polls the
// history endpoint until outputs appear.
package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"tryon/internal/domain"
	"tryon/internal/infra"
)

// ProviderName is the provider key used in metrics and responses.
const ProviderName = "comfyui"

// ErrMissingServerURL indicates that the client was configured without a server.
var ErrMissingServerURL = errors.New("comfyui: server url is required")

// Options configures the ComfyUI client.
type Options struct {
	ServerURL      string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Template       *Template
	RandomizeSeed  bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	Metrics        *infra.Metrics
}

// Client performs HTTP calls against one ComfyUI server.
type Client struct {
	serverURL     string
	pollInterval  time.Duration
	template      *Template
	randomizeSeed bool
	httpClient    *http.Client
	logger        *infra.Logger
	metrics       *infra.Metrics
	now           func() time.Time
	rng           *rand.Rand
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	serverURL := strings.TrimRight(strings.TrimSpace(opts.ServerURL), "/")
	if serverURL == "" {
		return nil, ErrMissingServerURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 180 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	tmpl := opts.Template
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	logger := infra.DiscardLogger(opts.Logger)
	logger.Debug().
		Str("server_url", serverURL).
		Dur("poll", interval).
		Str("template", tmpl.Version()).
		Msg("comfyui: client initialized")
	return &Client{
		serverURL:     serverURL,
		pollInterval:  interval,
		template:      tmpl,
		randomizeSeed: opts.RandomizeSeed,
		httpClient:    httpClient,
		logger:        logger,
		metrics:       opts.Metrics,
		now:           time.Now,
	}, nil
}

// ServerURL returns the configured base URL.
func (c *Client) ServerURL() string { return c.serverURL }

// Template returns the default workflow used when the caller supplies none.
func (c *Client) Template() *Template { return c.template }

// do issues req and returns status and body. Only network and read failures
// are errors here; status handling is up to the caller.
func (c *Client) do(req *http.Request, op string) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &domain.TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	return resp.StatusCode, raw, nil
}

func (c *Client) postJSON(ctx context.Context, path, op string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op)
}

func (c *Client) get(ctx context.Context, path, op string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	return c.do(req, op)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

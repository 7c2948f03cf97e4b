// Package fashn talks to the FASHN virtual try-on API: one /run call per job,
// then /status polling until the prediction settles.
package fashn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tryon/internal/asset"
	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/poll"
)

// ProviderName is the provider key used in metrics and responses.
const ProviderName = "fashn"

const (
	defaultBaseURL = "https://api.fashn.ai/v1"
	defaultModel   = "tryon-v1.6"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("fashn: api key is required")

// Options configures the FASHN client.
type Options struct {
	APIKey         string
	BaseURL        string
	ModelName      string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *infra.Logger
	Metrics        *infra.Metrics
}

// Client performs HTTP calls to the FASHN API.
type Client struct {
	apiKey       string
	baseURL      string
	modelName    string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *infra.Logger
	metrics      *infra.Metrics
}

type runRequest struct {
	ModelName string         `json:"model_name"`
	Inputs    map[string]any `json:"inputs"`
}

type runResponse struct {
	ID    string `json:"id"`
	Error any    `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.ModelName)
	if model == "" {
		model = defaultModel
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	logger := infra.DiscardLogger(opts.Logger)
	logger.Debug().
		Str("base_url", baseURL).
		Str("model_name", model).
		Dur("poll", interval).
		Msg("fashn: client initialized")
	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		modelName:    model,
		pollInterval: interval,
		httpClient:   httpClient,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

// ModelName returns the model sent with every run.
func (c *Client) ModelName() string { return c.modelName }

// TryOn submits one prediction and waits for it. Both images are sent inline
// as data URIs. extra is merged into the request inputs but can not replace
// the two images.
func (c *Client) TryOn(ctx context.Context, person, garment asset.Asset, extra map[string]any) (*domain.Job, error) {
	inputs := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		inputs[k] = v
	}
	inputs["model_image"] = asset.Encode(person)
	inputs["garment_image"] = asset.Encode(garment)

	id, err := c.Run(ctx, inputs)
	if err != nil {
		return nil, err
	}
	job := &domain.Job{ID: id, Provider: ProviderName, Status: domain.JobStatusPending}
	payload, err := c.Wait(ctx, id)
	job.Raw = payload
	if err != nil {
		job.Status = domain.JobStatusFailed
		return job, err
	}
	job.Status = domain.JobStatusSucceeded
	job.Outputs = Outputs(payload)
	c.logger.Info().
		Str("job_id", id).
		Int("outputs", len(job.Outputs)).
		Msg("fashn: prediction completed")
	return job, nil
}

// Run posts inputs to /run and returns the prediction id.
func (c *Client) Run(ctx context.Context, inputs map[string]any) (string, error) {
	const op = "fashn: run"
	body, err := json.Marshal(runRequest{ModelName: c.modelName, Inputs: inputs})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("model_name", c.modelName).Msg("fashn: submitting try-on request")
	status, raw, err := c.do(req, op)
	if err != nil {
		c.logger.Error().Err(err).Msg("fashn: run request failed")
		return "", err
	}
	if status < 200 || status >= 300 {
		c.logger.Error().Int("status", status).Str("body", domain.TrimBody(raw)).Msg("fashn: run rejected")
		return "", &domain.TransportError{Op: op, Status: status, Body: domain.TrimBody(raw)}
	}
	var decoded runResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &domain.ProtocolError{Op: op, Msg: fmt.Sprintf("decode: %v", err)}
	}
	id := strings.TrimSpace(decoded.ID)
	if id == "" {
		c.logger.Error().Str("body", domain.TrimBody(raw)).Msg("fashn: unexpected run response")
		return "", &domain.ProtocolError{Op: op, Msg: "missing id: " + domain.TrimBody(raw)}
	}
	c.logger.Info().Str("job_id", id).Msg("fashn: prediction started")
	return id, nil
}

// Wait polls /status/<id> until the prediction completes and returns the
// terminal payload.
func (c *Client) Wait(ctx context.Context, id string) (map[string]any, error) {
	st, err := poll.Until(ctx, id, c.pollInterval, func(ctx context.Context) (poll.Status, error) {
		return c.fetchStatus(ctx, id)
	})
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", id).Msg("fashn: prediction did not succeed")
	}
	return st.Raw, err
}

func (c *Client) fetchStatus(ctx context.Context, id string) (poll.Status, error) {
	c.metrics.IncPoll(ProviderName)
	const op = "fashn: poll status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+url.PathEscape(id), nil)
	if err != nil {
		return poll.Status{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	status, raw, err := c.do(req, op)
	if err != nil {
		return poll.Status{}, err
	}
	if status < 200 || status >= 300 {
		return poll.Status{}, &domain.TransportError{Op: op, Status: status, Body: domain.TrimBody(raw)}
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return poll.Status{}, &domain.ProtocolError{Op: op, Msg: fmt.Sprintf("decode: %v", err)}
	}
	st := classifyStatus(payload)
	if st.Outcome == domain.JobStatusPending {
		c.logger.Debug().Str("job_id", id).Interface("status", payload["status"]).Msg("fashn: prediction running")
	}
	return st, nil
}

func classifyStatus(payload map[string]any) poll.Status {
	s, _ := payload["status"].(string)
	switch s {
	case "completed":
		return poll.Status{Outcome: domain.JobStatusSucceeded, Raw: payload}
	case "starting", "in_queue", "processing":
		return poll.Status{Outcome: domain.JobStatusPending, Raw: payload}
	}
	return poll.Status{Outcome: domain.JobStatusFailed, Raw: payload, Reason: failureReason(payload)}
}

// failureReason renders the error field, which FASHN sends either as a
// string or as {name, message}.
func failureReason(payload map[string]any) string {
	switch e := payload["error"].(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		name, _ := e["name"].(string)
		msg, _ := e["message"].(string)
		switch {
		case name != "" && msg != "":
			return name + ": " + msg
		case msg != "":
			return msg
		case name != "":
			return name
		}
	}
	if s, _ := payload["status"].(string); s != "" {
		return "status " + s
	}
	return ""
}

// Outputs returns the URL strings of a completed payload's output list.
func Outputs(payload map[string]any) []string {
	list, _ := payload["output"].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Client) do(req *http.Request, op string) (int, []byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

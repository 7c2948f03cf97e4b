// Package tryon resolves caller images and dispatches try-on jobs to the
// configured providers.
package tryon

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tryon/internal/domain"
	"tryon/internal/infra"
)

// Request is one try-on call before image resolution.
type Request struct {
	Provider string
	Person   ImageInput
	Garment  ImageInput
	Inputs   map[string]any
	Workflow map[string]any
}

// Options configures the orchestrator.
type Options struct {
	Providers       []Provider
	Unconfigured    map[string]string
	DefaultProvider string
	HTTPClient      *http.Client
	FetchTimeout    time.Duration
	MaxWait         time.Duration
	Logger          *infra.Logger
	Metrics         *infra.Metrics
}

// ProviderInfo describes one known provider.
type ProviderInfo struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Configured bool   `json:"configured"`
	Hint       string `json:"hint,omitempty"`
	Default    bool   `json:"default,omitempty"`
}

// Orchestrator owns no per-job state and is safe for concurrent use.
type Orchestrator struct {
	providers       map[string]Provider
	unconfigured    map[string]string
	defaultProvider string
	httpClient      *http.Client
	fetchTimeout    time.Duration
	maxWait         time.Duration
	logger          *infra.Logger
	metrics         *infra.Metrics
}

// New builds an orchestrator from opts. Providers listed in Unconfigured are
// known but rejected with their hint.
func New(opts Options) *Orchestrator {
	providers := make(map[string]Provider, len(opts.Providers))
	for _, p := range opts.Providers {
		if p != nil {
			providers[normalizeName(p.Name())] = p
		}
	}
	unconfigured := make(map[string]string, len(opts.Unconfigured))
	for name, hint := range opts.Unconfigured {
		name = normalizeName(name)
		if _, ok := providers[name]; !ok {
			unconfigured[name] = hint
		}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	def := normalizeName(opts.DefaultProvider)
	if def == "" {
		def = "comfyui"
	}
	return &Orchestrator{
		providers:       providers,
		unconfigured:    unconfigured,
		defaultProvider: def,
		httpClient:      httpClient,
		fetchTimeout:    opts.FetchTimeout,
		maxWait:         opts.MaxWait,
		logger:          infra.DiscardLogger(opts.Logger),
		metrics:         opts.Metrics,
	}
}

// Run resolves both images, hands them to the selected provider and returns
// the finished job. A job that reached the provider is returned alongside a
// JobFailed error when the provider reported failure.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*domain.Job, error) {
	name := normalizeName(req.Provider)
	if name == "" {
		name = o.defaultProvider
	}
	p, err := o.provider(name)
	if err != nil {
		o.logger.Error().Err(err).Str("provider", name).Msg("tryon: provider unavailable")
		return nil, err
	}
	if err := p.Preflight(req); err != nil {
		o.logger.Error().Err(err).Str("provider", name).Msg("tryon: request rejected")
		return nil, err
	}
	for _, slot := range []struct {
		name string
		in   ImageInput
	}{{slotPerson, req.Person}, {slotGarment, req.Garment}} {
		if !slot.in.resolvable() {
			return nil, domain.Validationf("%s image is required (%s_image_url or %s_image_b64)", slot.name, slot.name, slot.name)
		}
	}

	o.logger.Debug().
		Str("provider", name).
		Bool("person_inline", req.Person.inline() != "").
		Bool("garment_inline", req.Garment.inline() != "").
		Strs("inputs", slices.Sorted(maps.Keys(req.Inputs))).
		Bool("workflow", req.Workflow != nil).
		Msg("tryon: received request")

	start := time.Now()
	person, garment, err := o.resolveBoth(ctx, req.Person, req.Garment)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if o.maxWait > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.maxWait)
		defer cancel()
	}
	job, err := p.TryOn(runCtx, Inputs{
		Person:   person,
		Garment:  garment,
		Extra:    req.Inputs,
		Workflow: req.Workflow,
	})
	elapsed := time.Since(start)
	if err != nil {
		o.metrics.ObserveJob(name, domain.ErrorCode(err), elapsed)
		o.logger.Error().Err(err).Str("provider", name).Dur("elapsed", elapsed).Msg("tryon: job failed")
		return job, err
	}
	o.metrics.ObserveJob(name, string(domain.JobStatusSucceeded), elapsed)
	o.logger.Info().
		Str("provider", name).
		Str("job_id", job.ID).
		Int("outputs", len(job.Outputs)).
		Dur("elapsed", elapsed).
		Msg("tryon: job completed")
	return job, nil
}

func (o *Orchestrator) provider(name string) (Provider, error) {
	if p, ok := o.providers[name]; ok {
		return p, nil
	}
	if hint, ok := o.unconfigured[name]; ok {
		return nil, &domain.ValidationError{Msg: hint, Err: domain.ErrProviderNotReady}
	}
	return nil, &domain.ValidationError{
		Msg: "unsupported provider '" + name + "', supported: [" + strings.Join(o.knownNames(), ", ") + "]",
		Err: domain.ErrUnsupportedProvider,
	}
}

// Providers lists configured and unconfigured providers by name.
func (o *Orchestrator) Providers() []ProviderInfo {
	title := cases.Title(language.English)
	names := o.knownNames()
	out := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		_, configured := o.providers[name]
		out = append(out, ProviderInfo{
			Name:       name,
			Title:      title.String(name),
			Configured: configured,
			Hint:       o.unconfigured[name],
			Default:    name == o.defaultProvider,
		})
	}
	return out
}

func (o *Orchestrator) knownNames() []string {
	names := slices.Collect(maps.Keys(o.providers))
	names = append(names, slices.Collect(maps.Keys(o.unconfigured))...)
	slices.Sort(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

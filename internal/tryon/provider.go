package tryon

import (
	"context"
	"fmt"

	"tryon/internal/asset"
	"tryon/internal/domain"
	"tryon/internal/providers/comfyui"
	"tryon/internal/providers/fashn"
)

// Inputs is what a provider receives once both images are inline.
type Inputs struct {
	Person   asset.Asset
	Garment  asset.Asset
	Extra    map[string]any
	Workflow map[string]any
}

// Provider runs one try-on job on a remote backend.
type Provider interface {
	Name() string
	// Preflight rejects requests the provider can not serve before any image
	// is fetched or uploaded.
	Preflight(req Request) error
	TryOn(ctx context.Context, in Inputs) (*domain.Job, error)
}

type comfyTryOner interface {
	TryOn(ctx context.Context, person, garment asset.Asset, tmpl *comfyui.Template) (*domain.Job, error)
}

// ComfyUIProvider adapts a ComfyUI client to Provider.
type ComfyUIProvider struct {
	client comfyTryOner
}

// NewComfyUIProvider wraps client.
func NewComfyUIProvider(client comfyTryOner) *ComfyUIProvider {
	return &ComfyUIProvider{client: client}
}

// Name fulfils the Provider interface.
func (p *ComfyUIProvider) Name() string { return comfyui.ProviderName }

// Preflight checks a caller-supplied workflow for the API export shape.
func (p *ComfyUIProvider) Preflight(req Request) error {
	if req.Workflow == nil {
		return nil
	}
	return comfyui.ValidateShape(req.Workflow)
}

// TryOn fulfils the Provider interface.
func (p *ComfyUIProvider) TryOn(ctx context.Context, in Inputs) (*domain.Job, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("comfyui provider: %w", domain.ErrProviderNotReady)
	}
	var tmpl *comfyui.Template
	if in.Workflow != nil {
		tmpl = comfyui.NewTemplate("request", in.Workflow)
	}
	return p.client.TryOn(ctx, in.Person, in.Garment, tmpl)
}

type fashnTryOner interface {
	TryOn(ctx context.Context, person, garment asset.Asset, extra map[string]any) (*domain.Job, error)
}

// FashnProvider adapts a FASHN client to Provider.
type FashnProvider struct {
	client fashnTryOner
}

// NewFashnProvider wraps client.
func NewFashnProvider(client fashnTryOner) *FashnProvider {
	return &FashnProvider{client: client}
}

// Name fulfils the Provider interface.
func (p *FashnProvider) Name() string { return fashn.ProviderName }

// Preflight rejects workflows, which only ComfyUI understands.
func (p *FashnProvider) Preflight(req Request) error {
	if req.Workflow != nil {
		return domain.Validationf("workflow is only supported for provider=%s", comfyui.ProviderName)
	}
	return nil
}

// TryOn fulfils the Provider interface.
func (p *FashnProvider) TryOn(ctx context.Context, in Inputs) (*domain.Job, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("fashn provider: %w", domain.ErrProviderNotReady)
	}
	return p.client.TryOn(ctx, in.Person, in.Garment, in.Extra)
}

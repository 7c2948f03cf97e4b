package tryon

import (
	"fmt"
	"net/http"

	"tryon/internal/infra"
	"tryon/internal/providers/comfyui"
	"tryon/internal/providers/fashn"
)

// NewFromConfig wires every provider cfg enables. Disabled providers stay
// known so callers get a configuration hint instead of "unsupported".
func NewFromConfig(cfg *infra.Config, logger *infra.Logger, metrics *infra.Metrics) (*Orchestrator, error) {
	logger = infra.DiscardLogger(logger)
	var providers []Provider
	unconfigured := map[string]string{}

	if cfg.ComfyUIConfigured() {
		tmpl := comfyui.DefaultTemplate()
		if cfg.ComfyUIWorkflowPath != "" {
			loaded, err := comfyui.LoadTemplateFile(cfg.ComfyUIWorkflowPath)
			if err != nil {
				return nil, fmt.Errorf("load comfyui workflow: %w", err)
			}
			tmpl = loaded
		}
		client, err := comfyui.NewClient(comfyui.Options{
			ServerURL:      cfg.ComfyUIServerURL,
			PollInterval:   cfg.ComfyUIPollInterval,
			RequestTimeout: cfg.ComfyUITimeout,
			Template:       tmpl,
			RandomizeSeed:  cfg.ComfyUIRandomizeSeed,
			Logger:         logger,
			Metrics:        metrics,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, NewComfyUIProvider(client))
		logger.Info().Str("server_url", client.ServerURL()).Str("template", tmpl.Version()).Msg("comfyui provider enabled")
	} else {
		unconfigured[comfyui.ProviderName] = "ComfyUI provider not configured: set COMFYUI_SERVER_URL"
	}

	if cfg.FashnConfigured() {
		client, err := fashn.NewClient(fashn.Options{
			APIKey:         cfg.FashnAPIKey,
			BaseURL:        cfg.FashnBaseURL,
			ModelName:      cfg.FashnModelName,
			PollInterval:   cfg.FashnPollInterval,
			RequestTimeout: cfg.FashnTimeout,
			Logger:         logger,
			Metrics:        metrics,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, NewFashnProvider(client))
		logger.Info().Str("model_name", client.ModelName()).Msg("fashn provider enabled")
	} else {
		unconfigured[fashn.ProviderName] = "FASHN provider not configured: missing FASHN_API_KEY"
	}

	return New(Options{
		Providers:       providers,
		Unconfigured:    unconfigured,
		DefaultProvider: comfyui.ProviderName,
		HTTPClient:      &http.Client{},
		FetchTimeout:    cfg.ImageFetchTimeout,
		MaxWait:         cfg.JobMaxWait,
		Logger:          logger,
		Metrics:         metrics,
	}), nil
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/tryon"
)

// maxRequestBytes bounds a try-on body; inline images are base64.
const maxRequestBytes = 64 << 20

// TryOnService is the orchestrator surface used by the handlers.
type TryOnService interface {
	Run(ctx context.Context, req tryon.Request) (*domain.Job, error)
	Providers() []tryon.ProviderInfo
}

type App struct {
	Service TryOnService
	Logger  *infra.Logger
	Metrics *infra.Metrics
}

func NewApp(svc TryOnService, logger *infra.Logger, metrics *infra.Metrics) *App {
	return &App{Service: svc, Logger: infra.DiscardLogger(logger), Metrics: metrics}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// fail classifies err and writes it. jobID is set when the remote job exists.
func (a *App) fail(w http.ResponseWriter, err error, jobID string) {
	a.json(w, domain.HTTPStatus(err), map[string]errorBody{"error": {
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
		JobID:   jobID,
	}})
}

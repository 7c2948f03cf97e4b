package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tryon/internal/domain"
	"tryon/internal/middleware"
	"tryon/internal/tryon"
)

// tryOnRequest accepts the explicit field names and their older aliases
// (model_image, model_image_b64, garment_image).
type tryOnRequest struct {
	PersonImageURL  string          `json:"person_image_url"`
	ModelImage      string          `json:"model_image"`
	PersonImageB64  string          `json:"person_image_b64"`
	ModelImageB64   string          `json:"model_image_b64"`
	GarmentImageURL string          `json:"garment_image_url"`
	GarmentImage    string          `json:"garment_image"`
	GarmentImageB64 string          `json:"garment_image_b64"`
	Inputs          map[string]any  `json:"inputs"`
	Workflow        json.RawMessage `json:"workflow"`
}

type tryOnResponse struct {
	Provider string         `json:"provider"`
	JobID    string         `json:"job_id"`
	Output   []string       `json:"output"`
	Raw      map[string]any `json:"raw"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (req tryOnRequest) toRun(provider string) (tryon.Request, error) {
	workflow, err := decodeWorkflow(req.Workflow)
	if err != nil {
		return tryon.Request{}, err
	}
	return tryon.Request{
		Provider: provider,
		Person: tryon.ImageInput{
			Inline: firstNonEmpty(req.PersonImageB64, req.ModelImageB64),
			URL:    firstNonEmpty(req.PersonImageURL, req.ModelImage),
		},
		Garment: tryon.ImageInput{
			Inline: req.GarmentImageB64,
			URL:    firstNonEmpty(req.GarmentImageURL, req.GarmentImage),
		},
		Inputs:   req.Inputs,
		Workflow: workflow,
	}, nil
}

// decodeWorkflow keeps numbers as json.Number so large seeds survive.
func decodeWorkflow(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var wf map[string]any
	if err := dec.Decode(&wf); err != nil {
		return nil, &domain.ShapeError{Defect: domain.DefectMalformedPayload, Msg: "workflow must be a JSON object: " + err.Error()}
	}
	if wf == nil {
		wf = map[string]any{}
	}
	return wf, nil
}

// TryOn handles POST /v1/tryon?provider=comfyui|fashn.
func (a *App) TryOn(w http.ResponseWriter, r *http.Request) {
	provider := strings.TrimSpace(r.URL.Query().Get("provider"))
	logger := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("provider", provider).
		Logger()

	var body tryOnRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return
		}
		a.error(w, http.StatusBadRequest, "validation_error", "invalid payload")
		return
	}
	req, err := body.toRun(provider)
	if err != nil {
		logger.Error().Err(err).Msg("tryon: invalid workflow")
		a.fail(w, err, "")
		return
	}

	job, err := a.Service.Run(r.Context(), req)
	if err != nil {
		jobID := ""
		if job != nil {
			jobID = job.ID
		}
		logger.Error().Err(err).Str("job_id", jobID).Int("status", domain.HTTPStatus(err)).Msg("tryon: request failed")
		a.fail(w, err, jobID)
		return
	}
	output := job.Outputs
	if output == nil {
		output = []string{}
	}
	a.json(w, http.StatusOK, tryOnResponse{
		Provider: job.Provider,
		JobID:    job.ID,
		Output:   output,
		Raw:      job.Raw,
	})
}

// Providers handles GET /v1/providers.
func (a *App) Providers(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"providers": a.Service.Providers()})
}

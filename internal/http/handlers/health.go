package handlers

import (
	"net/http"
)

// Health reports liveness and which providers can take jobs.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	configured := []string{}
	if a.Service != nil {
		for _, p := range a.Service.Providers() {
			if p.Configured {
				configured = append(configured, p.Name)
			}
		}
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "providers": configured})
}

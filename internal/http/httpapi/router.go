package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tryon/internal/http/handlers"
	"tryon/internal/infra"
	"tryon/internal/middleware"
)

// RouterOptions carries the cross-cutting settings of the HTTP surface.
type RouterOptions struct {
	RateLimitPerMin int
	CORSOrigins     []string
}

// OptionsFromConfig picks the router settings out of cfg.
func OptionsFromConfig(cfg *infra.Config) RouterOptions {
	if cfg == nil {
		return RouterOptions{}
	}
	return RouterOptions{RateLimitPerMin: cfg.RateLimitPerMin, CORSOrigins: cfg.CORSOrigins}
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*infra.DiscardLogger(app.Logger)),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/providers", app.Providers)
	r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/v1/tryon", app.TryOn)
	r.Handle("/metrics", app.Metrics.Handler())

	return r
}

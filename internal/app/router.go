package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/replenishment/internal/observability"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	ProcurementHandler *procurement.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the intake router. The worker passes no procurement
// handler and gets the operational routes only.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.ProcurementHandler != nil {
		tokenHash, rateLimit := "", 0
		if params.Config != nil {
			tokenHash, rateLimit = params.Config.IntakeTokenHash, params.Config.IntakeRateLimit
		}
		r.Group(func(r chi.Router) {
			r.Use(IntakeRateLimit(rateLimit))
			r.Use(BearerAuth(tokenHash, params.Logger))
			r.Route("/procurements", params.ProcurementHandler.MountRoutes)
		})
	}

	return r
}

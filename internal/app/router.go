package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pesantren-erp/pesantren-erp/internal/coop"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/journal"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/reconcile"
	"github.com/pesantren-erp/pesantren-erp/internal/inventory"
	"github.com/pesantren-erp/pesantren-erp/internal/observability"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/httpx"
	"github.com/pesantren-erp/pesantren-erp/internal/savings"
	"github.com/pesantren-erp/pesantren-erp/jobs"
)

// RouterDeps aggregates handlers mounted on the HTTP router.
type RouterDeps struct {
	Logger    *slog.Logger
	Config    *Config
	Metrics   *observability.Metrics
	Accounts  *accounts.Handler
	Reconcile *reconcile.Handler
	Journal   *journal.Handler
	Savings   *savings.Handler
	Coop      *coop.Handler
	Inventory *inventory.Handler
	Jobs      *jobs.Handler
}

// NewRouter wires the middleware stack and mounts every module's routes under
// /api/v1.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: deps.Logger, Config: deps.Config, Metrics: deps.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/finance", func(r chi.Router) {
			r.Route("/accounts", func(r chi.Router) {
				if deps.Accounts != nil {
					deps.Accounts.MountRoutes(r)
				}
				if deps.Reconcile != nil {
					deps.Reconcile.MountRoutes(r)
				}
			})
			r.Route("/journal", func(r chi.Router) {
				if deps.Journal != nil {
					deps.Journal.MountRoutes(r)
				}
			})
		})
		r.Route("/savings", func(r chi.Router) {
			if deps.Savings != nil {
				deps.Savings.MountRoutes(r)
			}
		})
		r.Route("/coop", func(r chi.Router) {
			if deps.Coop != nil {
				deps.Coop.MountRoutes(r)
			}
		})
		r.Route("/inventory", func(r chi.Router) {
			r.Route("/items", func(r chi.Router) {
				if deps.Inventory != nil {
					deps.Inventory.MountRoutes(r)
				}
			})
		})
		r.Route("/jobs", func(r chi.Router) {
			if deps.Jobs != nil {
				deps.Jobs.MountRoutes(r)
			}
		})
	})

	return r
}

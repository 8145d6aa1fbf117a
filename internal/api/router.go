package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/anacreon-labs/factledger/internal/api/handlers"
	mw "github.com/anacreon-labs/factledger/internal/api/middleware"
	"github.com/anacreon-labs/factledger/internal/buildconfig"
	"github.com/anacreon-labs/factledger/internal/cognitive"
	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Options carries the HTTP-level knobs NewApp needs.
type Options struct {
	RateLimitRPS    float64
	RateLimitBurst  int
	DefaultReviewer string
}

// Services is everything the handlers call into.
type Services struct {
	Ledger     domain.Ledger
	Facts      *service.FactService
	Conflicts  *service.ConflictService
	Validation *service.ValidationService
	Engine     *cognitive.Engine
}

// App holds the router and the pieces that need lifecycle management.
type App struct {
	Router    *chi.Mux
	Limiter   *mw.RateLimiter
	ledger    domain.Ledger
	counters  mw.Counters
	startTime time.Time
}

func NewApp(svc Services, opts Options, logger *zap.Logger) *App {
	factHandler := handlers.NewFactHandler(svc.Facts, svc.Engine, logger)
	conflictHandler := handlers.NewConflictHandler(svc.Conflicts, svc.Engine, logger)
	validationHandler := handlers.NewValidationHandler(svc.Validation, svc.Engine, logger)
	turnHandler := handlers.NewTurnHandler(svc.Engine, logger)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Limiter:   mw.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		ledger:    svc.Ledger,
		startTime: time.Now(),
	}
	metricsCollector := mw.NewMetricsCollector(&app.counters)

	// Order matters: the reviewer must be in context before Logging reads it.
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Reviewer(opts.DefaultReviewer))
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(app.Limiter.Middleware)

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())
	r.Get("/version", versionHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", turnHandler.Process)
		r.Get("/permissions", turnHandler.Permissions)

		r.Route("/facts", func(r chi.Router) {
			r.Get("/", factHandler.List)
			r.Post("/", factHandler.Create)
			r.Get("/candidates", factHandler.Candidates)
			r.Get("/trusted", factHandler.Trusted)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", factHandler.GetByID)
				r.Patch("/", factHandler.Edit)
				r.Get("/history", factHandler.History)
				r.Post("/validate", factHandler.Validate)
				r.Post("/reject", factHandler.Reject)
				r.Post("/deprecate", factHandler.Deprecate)
				r.Put("/confidence", factHandler.UpdateConfidence)
			})
		})

		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", conflictHandler.List)
			r.Post("/detect", conflictHandler.Detect)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conflictHandler.GetByID)
				r.Post("/resolve", conflictHandler.Resolve)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", validationHandler.List)
			r.Post("/", validationHandler.Start)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", validationHandler.GetByID)
				r.Post("/decisions", validationHandler.Decide)
				r.Post("/abandon", validationHandler.Abandon)
			})
		})

		r.Get("/stats", validationHandler.Stats)
	})

	return app
}

// Run keeps rate-limiter bookkeeping bounded until ctx is done.
func (app *App) Run(ctx context.Context) {
	app.Limiter.Run(ctx, 10*time.Minute)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := app.ledger.(pinger); ok {
			if err := p.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.counters.Requests.Load(),
			"client_errors":  app.counters.ClientErrors.Load(),
			"server_errors":  app.counters.ServerErrors.Load(),
			"rate_limited":   app.counters.RateLimited.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

package rest

import (
	"context"
	"net/http"
	"time"

	"commodities/application/ports"
	querybus "commodities/application/queries/bus"
	"commodities/infrastructure/config"
	"commodities/infrastructure/observability"
	"commodities/interfaces/http/rest/handlers"
	"commodities/interfaces/http/rest/middleware"
	"commodities/pkg/common"
	pkgerrors "commodities/pkg/errors"
	pkgobs "commodities/pkg/observability"
	"commodities/pkg/ratelimit"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Router creates and configures the HTTP router
type Router struct {
	queryBus  *querybus.QueryBus
	index     ports.IndexReader
	collector *observability.Collector
	tracer    *pkgobs.Tracer
	cfg       *config.Config
	logger    *zap.Logger
	limiter   ratelimit.Limiter
}

// NewRouter creates a new router instance
func NewRouter(
	queryBus *querybus.QueryBus,
	index ports.IndexReader,
	collector *observability.Collector,
	tracer *pkgobs.Tracer,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		queryBus:  queryBus,
		index:     index,
		collector: collector,
		tracer:    tracer,
		cfg:       cfg,
		logger:    logger,
	}
}

// WithRateLimiter limits every /api/v1 client. A nil limiter disables it.
func (rt *Router) WithRateLimiter(limiter ratelimit.Limiter) *Router {
	rt.limiter = limiter
	return rt
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()
	errHandler := pkgerrors.NewErrorHandler(rt.logger, rt.cfg.IsDevelopment())

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.collector))
	router.Use(errHandler.Middleware)
	router.Use(rt.tracer.Handler)

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// Probes
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.collector.GetRegistry(), promhttp.HandlerOpts{}))

	catalog := handlers.NewCatalogHandler(rt.queryBus, errHandler, rt.logger)
	router.Route("/api/v1", func(r chi.Router) {
		if rt.limiter != nil {
			r.Use(middleware.RateLimit(rt.limiter, errHandler, rt.logger))
		}
		r.Get("/production", catalog.Production)
		r.Get("/reserves", catalog.Reserves)
		r.Get("/imports", catalog.Imports)
		r.Get("/exports", catalog.Exports)
		r.Get("/balance", catalog.Balance)
		r.Get("/prices", catalog.Prices)
		r.Get("/gov_info", catalog.GovInfo)
		r.Get("/countries", catalog.Countries)
		r.Get("/commodities", catalog.Commodities)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errHandler.HandleStatus(w, r, http.StatusNotFound, "resource not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errHandler.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	common.RespondRaw(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck reports ready once an index version is being served
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	version, err := rt.index.Version(ctx)
	if err != nil {
		rt.logger.Warn("Readiness check failed", zap.Error(err))
		common.RespondRaw(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	if version == "" {
		common.RespondRaw(w, http.StatusServiceUnavailable, map[string]string{"status": "no index published"})
		return
	}
	common.RespondRaw(w, http.StatusOK, map[string]string{"status": "ready", "index_version": version})
}

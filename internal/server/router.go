package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	qlpmiddleware "github.com/quicklinkpay/admin-iam/internal/middleware"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/services/iam"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

// RouterOptions configures the shared router construction.
type RouterOptions struct {
	Service   iam.Service
	Decider   qlpmiddleware.Decider
	Evaluator *rbac.Evaluator
	Gatherer  prometheus.Gatherer
	Logger    logrus.FieldLogger

	PrincipalHeader string
	// CORSOptions enables CORS when set. Without it cross-origin requests get no CORS headers.
	CORSOptions *cors.Options
	// RateLimit is requests per minute per client IP on /v1. 0 disables it.
	RateLimit int
}

// DefaultCORSOptions returns the CORS policy for the dashboard origins.
func DefaultCORSOptions(origins []string, principalHeader string) cors.Options {
	if principalHeader == "" {
		principalHeader = qlpmiddleware.DefaultPrincipalHeader
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization", principalHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// NewRouter assembles the decision API:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /v1/me                            cached snapshot for UI gating
//	GET  /v1/authorize/{resource}/{action} authoritative decision, 204 or 403
//	ANY  /v1/resources/{resource}/...      forward-auth for gateways, 204 or 403
func NewRouter(opts RouterOptions) (chi.Router, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = rbac.NewEvaluator()
	}

	authz, err := qlpmiddleware.NewAuthzMiddleware(qlpmiddleware.AuthzDependencies{
		Decider: opts.Decider,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	h := &handlers{
		service:   opts.Service,
		decider:   opts.Decider,
		evaluator: evaluator,
		logger:    logger,
	}

	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if opts.CORSOptions != nil {
		r.Use(cors.Handler(*opts.CORSOptions))
	}

	r.Get("/healthz", healthHandler)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.Limit(opts.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Use(qlpmiddleware.NewPrincipalMiddleware(opts.PrincipalHeader))

		if opts.Service != nil {
			r.Get("/me", h.me)
		}
		r.Get("/authorize/{resource}/{action}", h.authorize)

		r.With(authz).HandleFunc("/resources/*", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r, nil
}

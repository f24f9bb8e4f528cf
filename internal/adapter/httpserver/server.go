package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/s2intelligence/ninefold-gateway/internal/config"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
	"github.com/s2intelligence/ninefold-gateway/internal/service/auth"
	"github.com/s2intelligence/ninefold-gateway/internal/service/metrics"
	"github.com/s2intelligence/ninefold-gateway/internal/service/ratelimiter"
	"github.com/s2intelligence/ninefold-gateway/internal/service/registry"
	"github.com/s2intelligence/ninefold-gateway/internal/usecase"
)

// Version reported by the service info endpoint.
const Version = "1.0.0"

// Server holds handler dependencies. It is a plain value constructed at
// startup; all fields are read-only after construction.
type Server struct {
	cfg      config.Config
	auth     *auth.Service
	limiter  *ratelimiter.Limiter
	router   *usecase.Router
	registry *registry.Registry
	agg      *metrics.Aggregator
	audit    domain.AuditPublisher

	validate  *validator.Validate
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// New wires a server. audit may be nil when no brokers are configured.
func New(cfg config.Config, authSvc *auth.Service, limiter *ratelimiter.Limiter, router *usecase.Router, reg *registry.Registry, agg *metrics.Aggregator, audit domain.AuditPublisher) *Server {
	return &Server{
		cfg:      cfg,
		auth:     authSvc,
		limiter:  limiter,
		router:   router,
		registry: reg,
		agg:      agg,
		audit:    audit,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients carry the token in the query string, not
			// cookies, so cross-origin upgrades are safe to accept.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}
}

// Mount attaches every route to the router. An optional middleware
// chain (typically an IP throttle) wraps the login endpoint only;
// CORS and Prometheus exposition belong to the caller.
func (s *Server) Mount(r chi.Router, loginMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/", s.handleServiceInfo)
	r.Get("/health", s.handleHealth)
	r.With(loginMiddleware...).Post("/auth/login", s.handleLogin)
	r.Get("/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.record)
		r.Use(s.rateLimit)

		r.Post("/v1/query", s.handleQuery)
		r.Post("/v1/analyze", s.handleAnalyze)
		r.Get("/v1/workers", s.handleWorkers)
		r.Get("/v1/workers/{name}", s.handleWorker)
		r.Get("/v1/stats", s.handleStats)
		r.With(s.requireMetricsTier).Get("/v1/metrics", s.handleMetrics)
	})
}

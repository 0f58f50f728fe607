package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobctl/jobmaster/internal/api/handlers"
	apiMiddleware "github.com/jobctl/jobmaster/internal/api/middleware"
	"github.com/jobctl/jobmaster/internal/api/websocket"
	"github.com/jobctl/jobmaster/internal/config"
	"github.com/jobctl/jobmaster/internal/events"
	"github.com/jobctl/jobmaster/internal/jobmaster"
)

// Server represents the HTTP server binding SPEC_FULL.md §6's RPCs onto chi
// routes (component N).
type Server struct {
	router        *chi.Mux
	master        *jobmaster.Master
	config        *config.Config
	planHandler   *handlers.PlanHandler
	workerHandler *handlers.WorkerHandler
	wsHub         *websocket.Hub
	wsHandler     *websocket.Handler
	publisher     *events.RedisPubSub
}

// NewServer creates a new HTTP server bound to a job master facade.
func NewServer(cfg *config.Config, m *jobmaster.Master, publisher *events.RedisPubSub) *Server {
	wsHub := websocket.NewHub(publisher)

	s := &Server{
		router:        chi.NewRouter(),
		master:        m,
		config:        cfg,
		planHandler:   handlers.NewPlanHandler(m),
		workerHandler: handlers.NewWorkerHandler(m),
		wsHub:         wsHub,
		wsHandler:     websocket.NewHandler(wsHub),
		publisher:     publisher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(apiMiddleware.RequestLogger())

	// Recoverer
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	auth := apiMiddleware.Auth(&apiMiddleware.AuthConfig{
		Enabled: s.config.Auth.Enabled,
		APIKeys: apiKeySet(s.config.Auth.APIKeys),
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(auth)

		if s.config.Server.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Server.RateLimitRPS))
		}

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", s.planHandler.Run)
			r.Get("/", s.planHandler.List)
			r.Get("/{planID}", s.planHandler.Get)
			r.Delete("/{planID}", s.planHandler.Cancel)
		})

		r.Get("/summary", s.planHandler.Summary)

		r.Route("/workers", func(r chi.Router) {
			r.Post("/register", s.workerHandler.Register)
			r.Post("/{workerID}/heartbeat", s.workerHandler.Heartbeat)
		})
	})

	s.router.Get("/health", s.workerHandler.HealthCheck)

	// WebSocket endpoint (component O)
	s.router.Get("/ws", s.wsHandler.ServeWS)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

func apiKeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// Start starts the WebSocket hub.
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher.
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mvasquez/taskpool/internal/api/handlers"
	apiMiddleware "github.com/mvasquez/taskpool/internal/api/middleware"
	"github.com/mvasquez/taskpool/internal/api/websocket"
	"github.com/mvasquez/taskpool/internal/config"
	"github.com/mvasquez/taskpool/internal/dispatch"
	"github.com/mvasquez/taskpool/internal/events"
)

// Server is the admin HTTP/WebSocket front-end to a Dispatcher.
type Server struct {
	router       *chi.Mux
	dispatcher   *dispatch.Dispatcher
	config       *config.Config
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
	publisher    *events.RedisPubSub
}

// NewServer creates a new HTTP server bound to d. publisher may be nil,
// in which case the WebSocket hub only broadcasts events handed to
// Hub.Broadcast; the Dispatcher itself never calls it.
func NewServer(cfg *config.Config, d *dispatch.Dispatcher, publisher *events.RedisPubSub) *Server {
	wsHub := websocket.NewHub(publisher)

	s := &Server{
		router:       chi.NewRouter(),
		dispatcher:   d,
		config:       cfg,
		taskHandler:  handlers.NewTaskHandler(d),
		adminHandler: handlers.NewAdminHandler(d),
		wsHub:        wsHub,
		wsHandler:    websocket.NewHandler(wsHub),
		publisher:    publisher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	authCfg := &apiMiddleware.AuthConfig{
		Enabled:   s.config.Auth.Enabled,
		JWTSecret: s.config.Auth.JWTSecret,
		APIKeys:   toAPIKeySet(s.config.Auth.APIKeys),
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.Auth(authCfg))

		if s.config.Server.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Server.RateLimitRPS))
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
		})
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.Auth(authCfg))

		r.Get("/health", s.adminHandler.HealthCheck)
		r.Get("/stats", s.adminHandler.Stats)
		r.Get("/options", s.adminHandler.GetOptions)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.RequireRole(apiMiddleware.RoleAdmin))
			r.Post("/options", s.adminHandler.PatchOptions)
			r.Post("/shutdown", s.adminHandler.Shutdown)
		})
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

func toAPIKeySet(keys []string) map[string]bool {
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

// Publisher returns the event publisher, or nil if telemetry mirroring
// is disabled.
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}

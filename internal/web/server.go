package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/blockedby/survey-portal/internal/logger"
	"github.com/blockedby/survey-portal/internal/metrics"
)

// Config holds server configuration
type Config struct {
	Port        int
	StaticDir   string
	CORSOrigins []string

	// Middlewares run after the built-in stack, before any route.
	Middlewares []func(http.Handler) http.Handler
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *Config
	listener   net.Listener
	metrics    *metrics.Metrics
	hub        *Hub // WebSocket Hub
}

// NewServer creates a new HTTP server. m and hub may be nil.
func NewServer(cfg *Config, m *metrics.Metrics, hub *Hub) *Server {
	router := chi.NewRouter()

	srv := &Server{
		router:  router,
		config:  cfg,
		metrics: m,
		hub:     hub,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(middleware.Compress(5))
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "HX-Request", "HX-Target", "HX-Current-URL"},
		ExposedHeaders:   []string{"Content-Disposition", "HX-Trigger"},
		AllowCredentials: len(origins) > 0 && origins[0] != "*",
		MaxAge:           300,
	}))

	for _, mw := range s.config.Middlewares {
		s.router.Use(mw)
	}
}

// requestLogger logs one line per request with zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Get().Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) setupRoutes() {
	if s.config.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(s.config.StaticDir))
		s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	// WebSocket
	if s.hub != nil {
		s.router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			ServeWs(s.hub, w, r)
		})
	}

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	// Health endpoint
	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok","version":"dev"}`)); err != nil {
			_ = err // Client disconnected
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s.httpServer.Serve(listener)
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// BaseURL returns the server's base URL
func (s *Server) BaseURL() string {
	if s.listener != nil {
		return fmt.Sprintf("http://%s", s.listener.Addr().String())
	}
	return fmt.Sprintf("http://localhost:%d", s.config.Port)
}

// RegisterDashboardHandler registers the dashboard page, its HTMX actions and
// the JSON state endpoint.
func (s *Server) RegisterDashboardHandler(handler interface{}) {
	type dashboardHandler interface {
		Page(w http.ResponseWriter, r *http.Request)
		SelectStudy(w http.ResponseWriter, r *http.Request)
		SelectQuestion(w http.ResponseWriter, r *http.Request)
		SelectDimension(w http.ResponseWriter, r *http.Request)
		SetFilter(w http.ResponseWriter, r *http.Request)
		SaveView(w http.ResponseWriter, r *http.Request)
		LoadView(w http.ResponseWriter, r *http.Request)
		DeleteView(w http.ResponseWriter, r *http.Request)
		Export(w http.ResponseWriter, r *http.Request)
		State(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(dashboardHandler); ok {
		s.router.Get("/", h.Page)
		s.router.Route("/dashboard", func(r chi.Router) {
			r.Post("/study", h.SelectStudy)
			r.Post("/question", h.SelectQuestion)
			r.Post("/dimension", h.SelectDimension)
			r.Post("/filter", h.SetFilter)
			r.Post("/views", h.SaveView)
			r.Post("/views/{id}/load", h.LoadView)
			r.Delete("/views/{id}", h.DeleteView)
			r.Get("/export.csv", h.Export)
		})
		s.router.Get("/api/state", h.State)
	}
}

// Router returns the underlying Chi router for external route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}

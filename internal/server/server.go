package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foliodesk/folio/internal/catalog"
	"github.com/foliodesk/folio/internal/console"
	"github.com/foliodesk/folio/internal/contact"
	"github.com/foliodesk/folio/internal/handler"
	"github.com/foliodesk/folio/internal/objectstore"
	"github.com/foliodesk/folio/internal/openapi"
	"github.com/foliodesk/folio/internal/server/middleware"
	"github.com/foliodesk/folio/internal/ui"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	EnableUI        bool
	MaxUploadBytes  int64
	// ContactRateLimit caps contact and auth submissions per client IP per
	// minute. Zero disables limiting.
	ContactRateLimit int
	// BaseURL is advertised in /openapi.json.
	BaseURL string
	Dev     bool
	// KeepAlive is the comment interval on the admin event stream.
	KeepAlive time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             8080,
		ShutdownTimeout:  30 * time.Second,
		CORSOrigins:      []string{"*"},
		EnableUI:         true,
		MaxUploadBytes:   5 << 20,
		ContactRateLimit: 5,
		BaseURL:          "http://localhost:8080",
		KeepAlive:        15 * time.Second,
	}
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the routes are wired to.
type Deps struct {
	Catalog *catalog.Catalog
	Intake  *contact.Intake
	Manager *console.Manager
	Auth    handler.Verifier
	// Files is set when images live on local disk and are served by this
	// process under /storage.
	Files *objectstore.Local
	// Checks are pinged by /readyz, keyed by name.
	Checks map[string]Pinger
}

// Server is the top-level HTTP server for folio. It owns the Chi router and
// the console manager whose sessions it closes on shutdown.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Secure(middleware.SecureOptions(s.cfg.Dev)))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Probes and metrics (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	// The event stream must not sit behind the compressor, which buffers.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(s.deps.Manager))
		r.Use(middleware.RequireAdmin())
		events := handler.NewEventsHandler(s.cfg.KeepAlive, s.logger)
		r.Get("/api/v1/admin/events", events.Stream)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Get("/openapi.json", s.handleOpenAPI)

		if s.deps.Files != nil {
			storage := handler.NewStorageHandler(s.deps.Files, s.logger)
			r.Get("/storage/{bucket}/*", storage.ServeObject)
		}

		r.Route("/api/v1", func(r chi.Router) {
			pub := handler.NewPublicHandler(s.deps.Catalog, s.deps.Intake, s.logger)
			r.Get("/projects", pub.ListProjects)
			r.With(middleware.RateLimit(s.cfg.ContactRateLimit)).Post("/contact", pub.SubmitContact)

			r.Route("/auth", func(r chi.Router) {
				authH := handler.NewAuthHandler(s.deps.Manager, s.deps.Auth, s.logger)
				limited := r.With(middleware.RateLimit(s.cfg.ContactRateLimit))
				limited.Post("/signup", authH.SignUp)
				limited.Post("/session", authH.SignIn)
				r.Post("/verify", authH.Verify)
				r.Get("/verify", authH.Verify)
				r.Delete("/session", authH.SignOut)
				r.With(middleware.Authenticate(s.deps.Manager)).Get("/session", authH.GetSession)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.Authenticate(s.deps.Manager))
				r.Use(middleware.RequireAdmin())

				admin := handler.NewAdminHandler(s.cfg.MaxUploadBytes, s.logger)
				r.Get("/console", admin.Snapshot)
				r.Put("/console/form", admin.SetForm)
				r.Get("/projects", admin.ListProjects)
				r.Post("/projects", admin.CreateProject)
				r.Delete("/projects/{id}", admin.DeleteProject)
				r.Get("/messages", admin.ListMessages)
				r.Post("/messages/{id}/read", admin.MarkRead)
				r.Delete("/messages/{id}", admin.DeleteMessage)
			})
		})

		// --- Embedded landing page ---
		if s.cfg.EnableUI {
			s.mountUI(r)
		}
	})

	s.router = r
}

func (s *Server) mountUI(r chi.Router) {
	distFS, err := fs.Sub(ui.Dist, "dist")
	if err != nil {
		s.logger.Error("failed to create sub filesystem for UI", "error", err)
		return
	}
	fileServer := http.FileServer(http.FS(distFS))
	r.Handle("/assets/*", fileServer)
	r.Get("/favicon.svg", fileServer.ServeHTTP)

	page := func(w http.ResponseWriter, r *http.Request) {
		f, err := distFS.Open("index.html")
		if err != nil {
			http.Error(w, "UI not available", http.StatusNotFound)
			return
		}
		defer f.Close()
		stat, _ := f.Stat()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "index.html", stat.ModTime(), f.(io.ReadSeeker))
	}
	r.Get("/", page)
	r.Get("/admin", page)
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when every dependency
// answers its ping, or 503 if any does not.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, p := range s.deps.Checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(openapi.Generate(s.cfg.BaseURL)); err != nil {
		s.logger.Error("encode openapi document", "error", err)
	}
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing every admin console.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	// No WriteTimeout: the admin event stream is long-lived.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// Closing consoles ends open event streams so Shutdown can drain them.
	if s.deps.Manager != nil {
		s.deps.Manager.CloseAll()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

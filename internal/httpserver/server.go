package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fixshop/internal/access"
	"fixshop/internal/domain"
	"fixshop/internal/jobs"
	"fixshop/internal/ledger"
	"fixshop/internal/metrics"
	"fixshop/internal/stats"
	"fixshop/internal/warranty"
)

const requestTimeout = 15 * time.Second

// TenantStore resolves the calling tenant.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	Ping(ctx context.Context) error
}

// Dependencies are the services the API exposes.
type Dependencies struct {
	Tenants    TenantStore
	Warranties *warranty.Service
	Jobs       *jobs.Service
	Ledger     *ledger.Service
	Stats      *stats.Service
	Gate       *access.Gate
}

// Server wraps an http.Server with the shop API mounted.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	basePath   string
}

// New creates a new HTTP server listening on addr.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		deps:     deps,
		basePath: normaliseBasePath(basePath),
	}

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}
	return server
}

// Handler builds the routed handler, mounted under the base path when set.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/public/warranties/{code}", s.lookupWarranty)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.tenantMiddleware)

		r.Route("/warranties", func(r chi.Router) {
			r.Post("/", s.createWarranty)
			r.Get("/", s.listWarranties)
			r.Get("/{id}", s.getWarranty)
			r.Put("/{id}/status", s.setWarrantyStatus)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)
			r.Get("/{id}", s.getJob)
			r.Put("/{id}", s.updateJob)
			r.Delete("/{id}", s.deleteJob)
			r.Put("/{id}/status", s.setJobStatus)
			r.Post("/{id}/payments", s.addPayment)
			r.Get("/{id}/payments", s.listPayments)
			r.Delete("/{id}/payments/{pid}", s.deletePayment)
		})

		r.Get("/stats", s.getStats)

		r.Post("/pin/verify", s.verifyPIN)
		r.Post("/pin", s.setPIN)
		r.Put("/pin", s.changePIN)
	})

	if s.basePath == "" {
		return r
	}
	root := chi.NewRouter()
	root.Mount(s.basePath, r)
	return root
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Tenants.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}

package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bossweek/internal/log"
	"bossweek/internal/middleware/ratelimit"
	"bossweek/internal/middleware/security"
	"bossweek/internal/services"
)

// Config holds server options.
type Config struct {
	Addr string

	// RefreshPerMinute caps profile refresh requests per client.
	RefreshPerMinute int

	// TrustedProxies are extra CIDRs allowed to set forwarding headers.
	TrustedProxies []string

	// MaxImportBytes bounds the import payload.
	MaxImportBytes int64

	RequestTimeout time.Duration

	// AllowedOrigins enables CORS for browser front ends. Empty disables it.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		RefreshPerMinute: 6,
		MaxImportBytes:   8 << 20,
		RequestTimeout:   30 * time.Second,
	}
}

type Server struct {
	http.Server
	svc      *services.LedgerService
	limiter  *ratelimit.Limiter
	clientIP *security.ClientIP
	log      *log.Logger
	config   Config

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run server.
func NewServer(cfg Config, svc *services.LedgerService, logger *log.Logger) (*Server, error) {
	def := DefaultConfig()
	if cfg.MaxImportBytes <= 0 {
		cfg.MaxImportBytes = def.MaxImportBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	clientIP, err := security.NewClientIP(cfg.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	rl := ratelimit.DefaultConfig()
	if cfg.RefreshPerMinute > 0 {
		rl.RequestsPerMinute = cfg.RefreshPerMinute
	}

	s := &Server{
		svc:      svc,
		limiter:  ratelimit.NewLimiter(rl),
		clientIP: clientIP,
		log:      logger.WithComponent(log.ComponentHTTP),
		config:   cfg,
	}
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Limiter exposes the refresh limiter so the caller can sweep idle clients.
func (s *Server) Limiter() *ratelimit.Limiter { return s.limiter }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(log.RequestLogger(s.log, s.clientIP.Extract))
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))

		r.Get("/status", s.handleStatus)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Post("/", s.handleCreateEntity)
			r.Route("/{entity}", func(r chi.Router) {
				r.Get("/", s.handleGetEntity)
				r.Patch("/", s.handlePatchEntity)
				r.Delete("/", s.handleDeleteEntity)
				r.With(s.limiter.Middleware(s.clientIP.Extract, s.rateLimited)).
					Post("/refresh", s.handleRefreshEntity)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleAddTask)
			r.Route("/{task}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Delete("/", s.handleDeleteTask)
				r.Post("/retire", s.handleRetireTask)
				r.Put("/price", s.handleUpdatePrice)
				r.Get("/history", s.handlePriceHistory)
			})
		})

		r.Route("/weeks", func(r chi.Router) {
			r.Get("/", s.handleListWeeks)
			r.Route("/{week}", func(r chi.Router) {
				r.Get("/", s.handleWeekSnapshot)
				r.Post("/ensure", s.handleEnsureWeek)
				r.Route("/entities/{entity}", func(r chi.Router) {
					r.Post("/", s.handleAddEntityToWeek)
					r.Route("/tasks/{task}", func(r chi.Router) {
						r.Post("/", s.handleAssign)
						r.Delete("/", s.handleUnassign)
						r.Post("/toggle", s.handleToggle)
						r.Put("/checked", s.handleSetChecked)
					})
				})
			})
		})

		r.Get("/records", s.handleListRecords)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/weekly", s.handleWeeklyTotals)
			r.Get("/entities", s.handleEntityTotals)
			r.Get("/tasks", s.handleTaskTotals)
			r.Get("/total", s.handleGrandTotal)
			r.Get("/rates", s.handleCompletionRates)
			r.Get("/series/{entity}", s.handleEntitySeries)
			r.Get("/report", s.handleReport)
		})

		r.Post("/resync", s.handleResync)
		r.Post("/import", s.handleImport)
		r.Post("/export", s.handleExport)
	})

	return r
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ledger().Ping(r.Context()); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "ledger unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clientIP.Extract(r), log.FieldPath, r.URL.Path)
	respondError(w, http.StatusTooManyRequests, "rate_limited", "too many refresh requests, try again later")
}

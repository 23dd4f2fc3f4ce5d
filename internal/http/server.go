package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"matador/internal/cache"
	"matador/internal/core"
	"matador/internal/ledger"
	"matador/internal/log"
	"matador/internal/middleware/ratelimit"
	"matador/internal/middleware/security"
	"matador/internal/middleware/trace"
	"matador/internal/services"
)

const (
	leaderboardTTL       = 30 * time.Second
	cacheCleanupInterval = 5 * time.Minute
	// DefaultLeaderboardSize applies when the limit parameter is absent.
	DefaultLeaderboardSize = 10
)

// Dependencies wires the server to the application layer.
type Dependencies struct {
	Store   ledger.Store
	Service *services.TransactionService
	// Webhook receives Twilio messages. Nil leaves the route unmounted.
	Webhook         http.Handler
	LeaderboardSize int
	Logger          *log.Logger
	// WebhookRequestsPerMinute limits webhook calls per client IP.
	WebhookRequestsPerMinute int
}

type appMetrics struct {
	uptime          time.Time
	webhookMessages int64
	deleted         int64
	cacheHits       int64
	cacheMisses     int64
}

type Server struct {
	http.Server
	store           ledger.Store
	service         *services.TransactionService
	leaderboardSize int
	logger          *log.Logger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	leaderboardCache *cache.LRUCache[[]core.User]
	cacheManager     *cache.Manager

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	size := deps.LeaderboardSize
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	if size > MaxLeaderboardSize {
		size = MaxLeaderboardSize
	}
	limits := ratelimit.DefaultConfig()
	if deps.WebhookRequestsPerMinute > 0 {
		limits.RequestsPerMinute = deps.WebhookRequestsPerMinute
	}

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		store:            deps.Store,
		service:          deps.Service,
		leaderboardSize:  size,
		logger:           logger.WithComponent(log.ComponentHTTP),
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(limits),
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
		leaderboardCache: cache.NewLRUCache[[]core.User](MaxLeaderboardSize, leaderboardTTL),
		cacheManager:     cache.NewManager(logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.cacheManager.Register(s.leaderboardCache)
	s.cacheManager.StartCleanup(cacheCleanupInterval)

	s.Handler = s.routes(deps.Webhook, logger)
	return s
}

func (s *Server) routes(webhook http.Handler, logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(log.Middleware(logger))
	r.Use(s.traceMiddleware.Middleware)
	r.Use(security.NewHeadersMiddleware(security.APIHeadersConfig()).Middleware)
	r.Use(s.securityDetector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "Ruta no encontrada")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "Método no permitido")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/user/{phone}", s.handleGetUser)
		r.Put("/user/{phone}/budget", s.handleUpdateBudget)
		r.Get("/stats/monthly/{phone}", s.handleMonthlyStats)
		r.Get("/stats/weekly/{phone}", s.handleWeeklyStats)
		r.Get("/breakdown/{phone}", s.handleBreakdown)
		r.Get("/transactions/all/{phone}", s.handleRecentTransactions)
		r.Get("/transactions/{phone}", s.handleTransactions)
		r.Delete("/transactions/{phone}/{id}", s.handleDeleteTransaction)
		r.Get("/leaderboard", s.handleLeaderboard)
	})

	if webhook != nil {
		limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)
		r.With(limited).Post("/webhooks/whatsapp", func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(&s.appMetrics.webhookMessages, 1)
			webhook.ServeHTTP(w, r)
		})
	}
	return r
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request, retry time.Duration) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r), log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", ratelimit.RetryAfterSeconds(retry))
	writeErrorMessage(w, http.StatusTooManyRequests, "Demasiadas solicitudes, intenta más tarde.")
}

// Shutdown gracefully shuts down the server and background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// handleHealth performs basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady verifies the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}
	if s.store == nil {
		checks["store"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}
	checks["cache"] = map[string]any{"leaderboard_entries": s.leaderboardCache.Size()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics exposes counters in a Prometheus-like text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMiddleware.GetMetrics()
	limitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	writeMetric(w, "http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	writeMetric(w, "http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	writeMetric(w, "http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	writeMetric(w, "webhook_messages_total", "counter", "WhatsApp messages received", atomic.LoadInt64(&s.appMetrics.webhookMessages))
	writeMetric(w, "transactions_deleted_total", "counter", "Transactions deleted through the API", atomic.LoadInt64(&s.appMetrics.deleted))
	writeMetric(w, "cache_hits_total", "counter", "Leaderboard cache hits", atomic.LoadInt64(&s.appMetrics.cacheHits))
	writeMetric(w, "cache_misses_total", "counter", "Leaderboard cache misses", atomic.LoadInt64(&s.appMetrics.cacheMisses))
	writeMetric(w, "rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", limitMetrics.TotalHits)
	writeMetric(w, "active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ClientCount)
	writeMetric(w, "suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	writeMetric(w, "uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

func writeMetric(w http.ResponseWriter, name, kind, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %d\n\n", name, v)
}

package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"carteira/internal/cache"
	applog "carteira/internal/log"
	"carteira/internal/middleware/ratelimit"
	"carteira/internal/middleware/security"
	"carteira/internal/middleware/trace"
	"carteira/internal/services"
)

// Pinger reports whether the ledger store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers call.
type Deps struct {
	Auth         Authenticator
	Accounts     *services.AccountService
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Loans        *services.LoanService
	Bills        *services.RecurringBillService
	Processor    *services.RecurringProcessor
	Dashboard    *services.DashboardService
	Ready        Pinger
}

type Options struct {
	Logger               *applog.Logger
	RateLimitPerMinute   int
	TrustedProxies       []string
	CacheCleanupInterval time.Duration
	Now                  func() time.Time
}

// Server is the carteira HTTP API.
type Server struct {
	http.Server

	deps     Deps
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	caches   *cache.Manager
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheCleanupInterval <= 0 {
		opts.CacheCleanupInterval = time.Minute
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	limitCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, applog.FieldError, err)
		}
	}

	s := &Server{
		deps:     deps,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(limitCfg),
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
		caches:   cache.NewManager(),
		now:      opts.Now,
	}

	if deps.Dashboard != nil {
		for _, c := range deps.Dashboard.Caches() {
			s.caches.Register(c)
		}
	}
	s.caches.StartCleanup(opts.CacheCleanupInterval)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc { return requireAuth(s.deps.Auth, h) }

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", auth(s.handleLogout))

	mux.HandleFunc("GET /api/me", auth(s.handleMe))
	mux.HandleFunc("PUT /api/me", auth(s.handleUpdateMe))
	mux.HandleFunc("GET /api/profile", auth(s.handleProfile))
	mux.HandleFunc("PUT /api/profile", auth(s.handleUpdateProfile))
	mux.HandleFunc("PUT /api/profile/closing-day", auth(s.handleClosingDay))

	mux.HandleFunc("GET /api/dashboard", auth(s.handleDashboard))
	mux.HandleFunc("GET /api/dashboard/categories", auth(s.handleDashboardCategories))
	mux.HandleFunc("GET /api/dashboard/recent", auth(s.handleDashboardRecent))

	mux.HandleFunc("GET /api/categories", auth(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", auth(s.handleCreateCategory))
	mux.HandleFunc("PUT /api/categories/{id}", auth(s.handleRenameCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", auth(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/transactions", auth(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", auth(s.handleCreateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", auth(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/loans", auth(s.handleListLoans))
	mux.HandleFunc("POST /api/loans", auth(s.handleCreateLoan))
	mux.HandleFunc("GET /api/loans/pending-total", auth(s.handlePendingLoans))
	mux.HandleFunc("PUT /api/loans/{id}/status", auth(s.handleLoanStatus))
	mux.HandleFunc("DELETE /api/loans/{id}", auth(s.handleDeleteLoan))

	mux.HandleFunc("GET /api/recurring", auth(s.handleListBills))
	mux.HandleFunc("POST /api/recurring", auth(s.handleCreateBill))
	mux.HandleFunc("POST /api/recurring/process", auth(s.handleProcessBills))
	mux.HandleFunc("PUT /api/recurring/{id}/active", auth(s.handleBillActive))
	mux.HandleFunc("DELETE /api/recurring/{id}", auth(s.handleDeleteBill))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.WritesOnly,
		func(w http.ResponseWriter, r *http.Request) {
			TooManyRequestsError(MsgRateLimited).Write(w)
		})

	var h http.Handler = mux
	h = limit(h)
	h = s.detector.BlockMiddleware(h)
	h = headers.Middleware(h)
	h = s.tracer.Middleware(h)
	return h
}

// Shutdown stops the background sweeps and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()

		tm, dm, lm := s.tracer.GetMetrics(), s.detector.GetMetrics(), s.limiter.GetMetrics()
		s.logger.Info("HTTP server stopping",
			"total_requests", tm.TotalRequests,
			"server_errors", tm.ServerErrors,
			"blocked_requests", dm.BlockedRequests,
			"rate_limited_clients", lm.ClientCount)

		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, MsgServiceUnavailable).Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

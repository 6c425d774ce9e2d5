// Package http provides the JSON API server and handler implementations.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/cache"
	"github.com/rroihans/dompetku-sub001/internal/ledger"
	"github.com/rroihans/dompetku-sub001/internal/middleware/ratelimit"
	"github.com/rroihans/dompetku-sub001/internal/middleware/security"
	"github.com/rroihans/dompetku-sub001/internal/middleware/trace"
	"github.com/rroihans/dompetku-sub001/internal/services"
)

const (
	paymentCacheSize = 200
	paymentCacheTTL  = 5 * time.Minute
)

// Server wires the ledger services behind the JSON API. It embeds
// http.Server so callers get ListenAndServe for free and overrides
// Shutdown to stop the background goroutines first.
type Server struct {
	http.Server

	ledger       *ledger.Service
	creditCards  *services.CreditCardService
	installments *services.InstallmentService
	automation   *services.AutomationProcessor

	detector     *security.Detector
	rateLimiter  *ratelimit.Limiter
	paymentCache *cache.LRUCache[services.PaymentCalculation]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer builds the API server listening on addr.
func NewServer(addr string, ledgerSvc *ledger.Service, creditCards *services.CreditCardService, installments *services.InstallmentService, automation *services.AutomationProcessor) *Server {
	s := &Server{
		ledger:       ledgerSvc,
		creditCards:  creditCards,
		installments: installments,
		automation:   automation,
		detector:     security.NewDetector(),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		paymentCache: cache.NewLRUCache[services.PaymentCalculation](paymentCacheSize, paymentCacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.paymentCache)
	s.cacheManager.StartCleanup(time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PUT /api/accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("GET /api/accounts/{id}/balance", s.handleRunningBalance)
	mux.HandleFunc("GET /api/accounts/{id}/audit", s.handleAuditLog)
	mux.HandleFunc("GET /api/accounts/{id}/payment", s.handleCalculatePayment)
	mux.HandleFunc("POST /api/accounts/{id}/pay", s.handlePayBill)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handlePostTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)

	mux.HandleFunc("POST /api/installments/convert", s.handleConvertInstallment)
	mux.HandleFunc("GET /api/installments", s.handleListPlans)
	mux.HandleFunc("GET /api/installments/{id}", s.handleGetPlan)
	mux.HandleFunc("POST /api/installments/{id}/pay", s.handlePayInstallment)
	mux.HandleFunc("POST /api/installments/{id}/payoff", s.handleAcceleratedPayoff)
	mux.HandleFunc("DELETE /api/installments/{id}", s.handleDeletePlan)
	mux.HandleFunc("GET /api/installments/templates/{bank}/{tenor}", s.handleGetTemplate)
	mux.HandleFunc("POST /api/installments/templates", s.handleSaveTemplate)

	mux.HandleFunc("POST /api/automation/admin-fees", s.handleAdminFees)
	mux.HandleFunc("POST /api/automation/interest", s.handleInterest)

	traceMW := trace.NewMiddleware(s.detector.ExtractClientIP)
	headersMW := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	handler := s.withRateLimit(mux)
	handler = s.withSuspicionLog(handler)
	handler = headersMW.Middleware(handler)
	handler = traceMW.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// withSuspicionLog flags requests matching known probe patterns. They
// still hit a 404 or validation error; the log line is for operators.
func (s *Server) withSuspicionLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request",
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", s.detector.ExtractClientIP(r))
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit throttles mutating requests per client IP.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			clientIP := s.detector.ExtractClientIP(r)
			if !s.rateLimiter.Allow(clientIP) {
				w.Header().Set("Retry-After", "60")
				ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the background goroutines and then drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.cacheManager.Stop()
	})
	return s.Server.Shutdown(ctx)
}

// invalidatePayment drops the cached bill calculation for an account
// after any write that can change its balance or settings.
func (s *Server) invalidatePayment(accountIDs ...int64) {
	today := time.Now()
	for _, id := range accountIDs {
		if id != 0 {
			s.paymentCache.Delete(cache.PaymentKey(id, today))
		}
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

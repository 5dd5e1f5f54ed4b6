package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/gateway"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/service"
)

// Reconciler applies verified gateway notifications.
type Reconciler interface {
	HandleNotification(ctx context.Context, gatewayName string, n gateway.Notification) (service.ReconcileResult, error)
}

// CheckoutStatus looks up a checkout by reference.
type CheckoutStatus interface {
	Status(ctx context.Context, reference string) (domain.PaymentTransaction, error)
}

// Limiter counts requests per key in fixed one minute windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Reconciler Reconciler
	Checkouts  CheckoutStatus
	// Limiter throttles checkout lookups per client IP. Nil disables it.
	Limiter Limiter
	Metrics *metrics.Metrics
	Checks  []Check
}

type Server struct {
	deps   Deps
	router *mux.Router
}

func New(deps Deps) *Server {
	s := &Server{deps: deps, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.observe)
	s.router.HandleFunc("/webhooks/{gateway}", s.webhook).Methods(http.MethodPost)
	s.router.HandleFunc("/checkout/{reference}", s.limitByIP("checkout", config.RateLimitCheckoutStatus, s.checkout)).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["gateway"]

	n, err := gateway.ParseNotification(r)
	if err != nil {
		slog.Warn("malformed gateway notification", "gateway", name, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed notification"})
		return
	}

	_, err = s.deps.Reconciler.HandleNotification(r.Context(), name, n)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, domain.ErrSignature), errors.Is(err, domain.ErrNotFound):
		// one answer for both so the endpoint is no reference oracle
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rejected"})
	case errors.Is(err, domain.ErrTransientIO):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable"})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed notification"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

type checkoutResponse struct {
	Reference string     `json:"reference"`
	Kind      string     `json:"kind"`
	Status    string     `json:"status"`
	Amount    string     `json:"amount"`
	Currency  string     `json:"currency"`
	Invoice   string     `json:"invoice,omitempty"`
	Plan      string     `json:"plan,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	SettledAt *time.Time `json:"settledAt,omitempty"`
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["reference"]

	tx, err := s.deps.Checkouts.Status(r.Context(), ref)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	case errors.Is(err, domain.ErrTransientIO):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable"})
		return
	case err != nil:
		slog.Error("checkout status failed", "reference", ref, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	resp := checkoutResponse{
		Reference: tx.ReferenceCode,
		Kind:      string(tx.Kind),
		Status:    string(tx.Status),
		Amount:    gateway.FormatAmount(tx.Amount),
		Currency:  tx.Currency,
		CreatedAt: tx.CreatedAt,
		SettledAt: tx.SettledAt,
	}
	if tx.InvoiceNumber != nil {
		resp.Invoice = *tx.InvoiceNumber
	}
	if tx.Plan != nil {
		resp.Plan = string(*tx.Plan)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for _, c := range s.deps.Checks {
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "check", c.Name, "error", err)
			checks[c.Name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "up"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

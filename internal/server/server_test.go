package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/gateway"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	err     error
	gateway string
	got     gateway.Notification
}

func (f *fakeReconciler) HandleNotification(ctx context.Context, gatewayName string, n gateway.Notification) (service.ReconcileResult, error) {
	f.gateway = gatewayName
	f.got = n
	if f.err != nil {
		return service.ReconcileResult{}, f.err
	}
	return service.ReconcileResult{Reference: n.ReferenceCode, Status: domain.TxStatusCompleted}, nil
}

type fakeCheckouts map[string]domain.PaymentTransaction

func (f fakeCheckouts) Status(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	tx, ok := f[reference]
	if !ok {
		return domain.PaymentTransaction{}, domain.ErrTransactionNotFound
	}
	return tx, nil
}

const donationBody = `{"referenceCode":"DON-123","status":"APPROVED","token":"abc","kind":"donation","amount":5000,"currency":"COP"}`

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestWebhook_Applied(t *testing.T) {
	rec := &fakeReconciler{}
	srv := New(Deps{Reconciler: rec, Checkouts: fakeCheckouts{}, Metrics: metrics.New()})

	w := post(t, srv.Handler(), "/webhooks/payu", donationBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
	assert.Equal(t, "payu", rec.gateway)
	assert.Equal(t, "DON-123", rec.got.ReferenceCode)
	assert.Equal(t, domain.TxKindDonation, rec.got.Kind)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"signature", fmt.Errorf("verify: %w", domain.ErrSignature), http.StatusBadRequest, "rejected"},
		{"unknown reference", domain.ErrTransactionNotFound, http.StatusBadRequest, "rejected"},
		{"unknown gateway", domain.ErrUnknownGateway, http.StatusBadRequest, "rejected"},
		{"transient", &domain.TransientError{Op: "lock", Err: errors.New("conn reset")}, http.StatusServiceUnavailable, "temporarily unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(Deps{Reconciler: &fakeReconciler{err: tt.err}, Checkouts: fakeCheckouts{}})
			w := post(t, srv.Handler(), "/webhooks/payu", donationBody)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.body, decodeBody(t, w)["error"])
		})
	}
}

func TestWebhook_Malformed(t *testing.T) {
	rec := &fakeReconciler{}
	srv := New(Deps{Reconciler: rec, Checkouts: fakeCheckouts{}})

	w := post(t, srv.Handler(), "/webhooks/payu", `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "malformed notification", decodeBody(t, w)["error"])
	assert.Empty(t, rec.gateway, "reconciler not called")
}

func TestWebhook_FormEncoded(t *testing.T) {
	rec := &fakeReconciler{}
	srv := New(Deps{Reconciler: rec, Checkouts: fakeCheckouts{}})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payu",
		strings.NewReader("reference_sale=DON-9&state_pol=APPROVED&signature=ff&value=1000&currency=COP"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DON-9", rec.got.ReferenceCode)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	srv := New(Deps{Reconciler: &fakeReconciler{}, Checkouts: fakeCheckouts{}})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhooks/payu", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCheckoutStatus(t *testing.T) {
	settled := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	number := "F-1"
	srv := New(Deps{Reconciler: &fakeReconciler{}, Checkouts: fakeCheckouts{
		"INV-1": {
			ReferenceCode: "INV-1", Kind: domain.TxKindInvoice, Status: domain.TxStatusCompleted,
			Amount: decimal.NewFromInt(30000), Currency: "COP", InvoiceNumber: &number, SettledAt: &settled,
		},
	}})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkout/INV-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "30000", body["amount"])
	assert.Equal(t, "F-1", body["invoice"])
	assert.NotContains(t, body, "plan")

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkout/NOPE", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type countingLimiter struct {
	hits map[string]int
	err  error
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.hits[key]++
	return l.hits[key] <= limit, nil
}

func TestCheckoutStatus_RateLimitedPerIP(t *testing.T) {
	limiter := &countingLimiter{hits: map[string]int{}}
	srv := New(Deps{Reconciler: &fakeReconciler{}, Limiter: limiter, Checkouts: fakeCheckouts{
		"DON-1": {ReferenceCode: "DON-1", Kind: domain.TxKindDonation, Status: domain.TxStatusPending,
			Amount: decimal.NewFromInt(5000), Currency: "COP"},
	}})
	get := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w
	}

	for i := range config.RateLimitCheckoutStatus {
		w := get(fmt.Sprintf("/checkout/GUESS-%d", i), "203.0.113.7:40000")
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	// misses count, so the next lookup is refused even for a real reference
	w := get("/checkout/DON-1", "203.0.113.7:40001")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, config.RateLimitCheckoutStatus+1, limiter.hits["checkout:203.0.113.7"])

	w = get("/checkout/DON-1", "198.51.100.2:5000")
	assert.Equal(t, http.StatusOK, w.Code, "other clients are unaffected")

	limiter.err = errors.New("redis down")
	w = get("/checkout/DON-1", "203.0.113.7:40002")
	assert.Equal(t, http.StatusOK, w.Code, "limiter failure lets the request through")
}

func TestHealthz(t *testing.T) {
	up := Check{Name: "postgres", Ping: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Ping: func(context.Context) error { return errors.New("refused") }}

	srv := New(Deps{Reconciler: &fakeReconciler{}, Checkouts: fakeCheckouts{}, Checks: []Check{up}})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	srv = New(Deps{Reconciler: &fakeReconciler{}, Checkouts: fakeCheckouts{}, Checks: []Check{up, down}})
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := decodeBody(t, w)["checks"].(map[string]any)
	assert.Equal(t, "up", checks["postgres"])
	assert.Equal(t, "down", checks["redis"])
}

func TestMetricsEndpointAndRouteLabels(t *testing.T) {
	m := metrics.New()
	srv := New(Deps{Reconciler: &fakeReconciler{}, Checkouts: fakeCheckouts{}, Metrics: m})

	post(t, srv.Handler(), "/webhooks/payu", donationBody)
	post(t, srv.Handler(), "/webhooks/wompi", donationBody)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(),
		`acueducto_http_requests_total{method="POST",route="/webhooks/{gateway}",status="200"} 2`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := New(Deps{Reconciler: &fakeReconciler{}, Checkouts: fakeCheckouts{}})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

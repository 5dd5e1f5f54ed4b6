package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
)

// OrderClient registers checkouts with gateways that expect a server side
// order before the customer is redirected.
type OrderClient struct {
	httpClient *http.Client
	timeout    time.Duration
}

func NewOrderClient(timeout time.Duration) *OrderClient {
	if timeout <= 0 {
		timeout = config.OrderTimeout
	}
	return &OrderClient{
		httpClient: &http.Client{Timeout: config.HTTPClientTimeout},
		timeout:    timeout,
	}
}

// CreateOrder posts form to the gateway's order URL. Any failure, including
// the deadline, is reported as transient so the transaction stays pending.
func (c *OrderClient) CreateOrder(ctx context.Context, g *Gateway, form CheckoutForm) error {
	if g.OrderURL == "" {
		return nil
	}

	payload, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.OrderURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-Id", g.MerchantID)
	req.Header.Set("X-Signature", form.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransientError{Op: "create order " + form.ReferenceCode, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.TransientError{
			Op:  "create order " + form.ReferenceCode,
			Err: fmt.Errorf("gateway responded %d", resp.StatusCode),
		}
	}
	return nil
}

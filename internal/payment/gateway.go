package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

var ErrGatewayUnavailable = errors.New("payment: gateway unavailable")

type IntentRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Gateway is the outbound side of the payment provider.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (string, error)
}

// Sandbox issues local intent handles. Used when no gateway URL is set.
type Sandbox struct{}

func (Sandbox) CreateIntent(_ context.Context, req IntentRequest) (string, error) {
	if req.AmountCents <= 0 {
		return "", errors.New("payment: amount must be positive")
	}
	return "pi_" + uuid.NewString(), nil
}

// HTTPGateway posts to {BaseURL}/intents. Transient failures are retried
// with exponential backoff; repeated failures open the breaker so checkout
// stops waiting on a dead provider.
type HTTPGateway struct {
	BaseURL  string
	Client   *http.Client
	MaxTries uint
	breaker  *gobreaker.CircuitBreaker
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:  baseURL,
		Client:   &http.Client{Timeout: timeout},
		MaxTries: 3,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "payment-gateway",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}),
	}
}

type intentResponse struct {
	Intent string `json:"intent"`
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, req IntentRequest) (string, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return backoff.Retry(ctx, func() (string, error) { return g.post(ctx, req) },
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(g.MaxTries),
		)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return out.(string), nil
}

func (g *HTTPGateway) post(ctx context.Context, req IntentRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/intents", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// the provider dedups on this key, so retries never open a second intent
	httpReq.Header.Set("Idempotency-Key", req.OrderID)

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("gateway status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return "", backoff.Permanent(fmt.Errorf("gateway status %d", resp.StatusCode))
	}
	var ir intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return "", backoff.Permanent(err)
	}
	if ir.Intent == "" {
		return "", backoff.Permanent(errors.New("gateway returned empty intent"))
	}
	return ir.Intent, nil
}

// Package payment talks to the external checkout gateway. The core's only
// contract with it is "mark the batch paid, idempotently"; everything else
// about the gateway is opaque.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"printq/internal/config"
	"printq/internal/core"
)

const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

type CheckoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	BatchID       string `json:"batch_id"`
}

type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
}

func NewClient(cfg config.PaymentConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:       cfg.GatewayURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

type createSessionRequest struct {
	BatchID     string `json:"batch_id"`
	AmountCents int    `json:"amount_cents"`
	Description string `json:"description"`
	SuccessURL  string `json:"success_url"`
	CancelURL   string `json:"cancel_url"`
}

// CreateCheckoutSession opens a hosted checkout for a batch. The call is
// never retried automatically; a failed attempt surfaces to the caller.
func (c *Client) CreateCheckoutSession(ctx context.Context, batchID string, amountCents int, description, successURL, cancelURL string) (*CheckoutSession, error) {
	if c.baseURL == "" {
		return nil, &core.ExternalServiceError{Service: "payment gateway", Err: fmt.Errorf("gateway url not configured")}
	}

	body, err := json.Marshal(createSessionRequest{
		BatchID:     batchID,
		AmountCents: amountCents,
		Description: description,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.doSession(req)
}

// GetSession fetches a session's current state for on-demand verification.
// Idempotent and safe to re-invoke.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if c.baseURL == "" {
		return nil, &core.ExternalServiceError{Service: "payment gateway", Err: fmt.Errorf("gateway url not configured")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.doSession(req)
}

func (c *Client) doSession(req *http.Request) (*CheckoutSession, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &core.ExternalServiceError{Service: "payment gateway", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &core.ExternalServiceError{
			Service: "payment gateway",
			Err:     fmt.Errorf("http error: %d", resp.StatusCode),
		}
	}

	session := &CheckoutSession{}
	if err := json.NewDecoder(resp.Body).Decode(session); err != nil {
		return nil, &core.ExternalServiceError{Service: "payment gateway", Err: fmt.Errorf("decode session: %w", err)}
	}
	return session, nil
}

// VerifySignature checks a webhook callback's HMAC-SHA256 signature.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

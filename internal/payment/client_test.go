package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printq/internal/config"
	"printq/internal/core"
	"printq/internal/events"
)

func testClient(url string) *Client {
	return NewClient(config.PaymentConfig{
		GatewayURL:    url,
		APIKey:        "sk_test",
		WebhookSecret: "whsec_test",
		Timeout:       2 * time.Second,
	})
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var req createSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b1", req.BatchID)
		assert.Equal(t, 150, req.AmountCents)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CheckoutSession{
			ID:            "sess_1",
			URL:           "https://pay.example.com/sess_1",
			PaymentStatus: StatusUnpaid,
			BatchID:       "b1",
		})
	}))
	defer srv.Close()

	session, err := testClient(srv.URL).CreateCheckoutSession(
		context.Background(), "b1", 150, "Print batch b1", "http://ok", "http://cancel")
	require.NoError(t, err)

	assert.Equal(t, "sess_1", session.ID)
	assert.Equal(t, "https://pay.example.com/sess_1", session.URL)
}

func TestCreateCheckoutSessionGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateCheckoutSession(
		context.Background(), "b1", 150, "desc", "", "")

	var external *core.ExternalServiceError
	require.ErrorAs(t, err, &external)
	assert.Equal(t, "payment gateway", external.Service)
}

func TestCreateCheckoutSessionUnconfigured(t *testing.T) {
	c := NewClient(config.PaymentConfig{})

	_, err := c.CreateCheckoutSession(context.Background(), "b1", 1, "", "", "")
	var external *core.ExternalServiceError
	assert.ErrorAs(t, err, &external)
}

func TestGetSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/sess_1", r.URL.Path)
		json.NewEncoder(w).Encode(CheckoutSession{ID: "sess_1", PaymentStatus: StatusPaid})
	}))
	defer srv.Close()

	session, err := testClient(srv.URL).GetSession(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, session.PaymentStatus)
}

func TestGetSessionUnreachable(t *testing.T) {
	c := testClient("http://127.0.0.1:1")

	_, err := c.GetSession(context.Background(), "sess_1")
	var external *core.ExternalServiceError
	require.ErrorAs(t, err, &external)
	assert.NotNil(t, external.Err)
}

func TestVerifySignature(t *testing.T) {
	c := testClient("http://unused")
	payload := []byte(`{"type":"checkout.session.completed","session_id":"sess_1"}`)

	// Signature produced with the same secret and scheme the gateway uses.
	sig := events.Sign(payload, "whsec_test")
	assert.True(t, c.VerifySignature(payload, sig))
	assert.False(t, c.VerifySignature(payload, "deadbeef"))
	assert.False(t, c.VerifySignature([]byte("tampered"), sig))
}

func TestVerifySignatureNoSecret(t *testing.T) {
	c := NewClient(config.PaymentConfig{GatewayURL: "http://unused"})
	assert.False(t, c.VerifySignature([]byte("x"), "y"))
}

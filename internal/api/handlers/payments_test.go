package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printq/internal/config"
	"printq/internal/core"
	"printq/internal/db"
	"printq/internal/events"
	"printq/internal/payment"
)

const gatewaySecret = "whsec_test"

// gatewayStub serves any session id with the configured payment status.
type gatewayStub struct {
	status string
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	json.NewEncoder(w).Encode(payment.CheckoutSession{
		ID:            parts[len(parts)-1],
		URL:           "http://gateway/checkout",
		PaymentStatus: g.status,
	})
}

type paymentEnv struct {
	router   *gin.Engine
	jobs     *db.JobStore
	sessions *db.SessionStore
	engine   *core.Engine
	gateway  *gatewayStub
}

func newPaymentEnv(t *testing.T) *paymentEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	jobs := db.NewJobStore(conn)
	printers := db.NewPrinterStore(conn)
	sessions := db.NewSessionStore(conn)
	require.NoError(t, printers.CreatePrinter(context.Background(),
		&core.Printer{ID: "p1", Name: "Library", Status: core.PrinterOnline}))

	engine := core.NewEngine(jobs, printers, events.NewHub(), core.NewTimerScheduler(),
		config.QueueConfig{SecondsPerPage: 3, ServiceDelay: time.Hour, MaxSkips: 2},
		config.PricingConfig{BWCentsPerPage: 5, ColorCentsPerPage: 20})

	gateway := &gatewayStub{status: payment.StatusPaid}
	srv := httptest.NewServer(gateway)
	t.Cleanup(srv.Close)

	client := payment.NewClient(config.PaymentConfig{
		GatewayURL:    srv.URL,
		APIKey:        "key",
		WebhookSecret: gatewaySecret,
	})

	router := gin.New()
	public := router.Group("/api")
	authed := router.Group("/api", actorFromHeader())
	NewPaymentHandler(client, sessions, jobs, engine, "http://app/ok", "http://app/cancel").
		RegisterRoutes(public, authed)

	return &paymentEnv{router: router, jobs: jobs, sessions: sessions, engine: engine, gateway: gateway}
}

// seedPendingCheckout creates an unpaid batch for the user plus its local
// session row, as CreateCheckout would have left them.
func (e *paymentEnv) seedPendingCheckout(t *testing.T, userID, batchID, sessionID string) {
	t.Helper()
	for _, ref := range []string{"a.pdf", "b.pdf"} {
		_, err := e.engine.SubmitJob(context.Background(), core.Actor{ID: userID}, core.SubmitRequest{
			PrinterID:       "p1",
			FileRef:         ref,
			BatchID:         batchID,
			PageCount:       1,
			PaymentMethod:   core.PaymentOnline,
			AwaitingPayment: true,
		})
		require.NoError(t, err)
	}
	require.NoError(t, e.sessions.CreateSession(context.Background(), &db.PaymentSession{
		ID:          sessionID,
		BatchID:     batchID,
		AmountCents: 10,
		Status:      db.SessionCreated,
	}))
}

func (e *paymentEnv) get(t *testing.T, path, userID string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	if admin {
		req.Header.Set("X-Test-Admin", "1")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *paymentEnv) batchPaid(t *testing.T, batchID string) bool {
	t.Helper()
	members, err := e.jobs.ListBatchJobs(context.Background(), batchID)
	require.NoError(t, err)
	require.NotEmpty(t, members)
	for _, m := range members {
		if !m.IsPaid {
			return false
		}
	}
	return true
}

func TestVerifyForbiddenForNonOwner(t *testing.T) {
	env := newPaymentEnv(t)
	env.seedPendingCheckout(t, "u1", "batch-1", "sess-1")

	w := env.get(t, "/api/payments/verify/sess-1", "u2", false)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.batchPaid(t, "batch-1"))

	// Admins may verify on any user's behalf.
	w = env.get(t, "/api/payments/verify/sess-1", "staff", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.batchPaid(t, "batch-1"))
}

func TestVerifyOwnerSettles(t *testing.T) {
	env := newPaymentEnv(t)
	env.seedPendingCheckout(t, "u1", "batch-1", "sess-1")

	w := env.get(t, "/api/payments/verify/sess-1", "u1", false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.batchPaid(t, "batch-1"))

	sess, err := env.sessions.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, db.SessionPaid, sess.Status)

	// A replayed verify short-circuits on the settled session.
	w = env.get(t, "/api/payments/verify/sess-1", "u1", false)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Paid bool `json:"paid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Paid)
}

func TestVerifyUnknownSession(t *testing.T) {
	env := newPaymentEnv(t)

	w := env.get(t, "/api/payments/verify/nope", "u1", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyUnpaidSessionDoesNotSettle(t *testing.T) {
	env := newPaymentEnv(t)
	env.seedPendingCheckout(t, "u1", "batch-1", "sess-1")
	env.gateway.status = payment.StatusUnpaid

	w := env.get(t, "/api/payments/verify/sess-1", "u1", false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Paid bool `json:"paid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Paid)
	assert.False(t, env.batchPaid(t, "batch-1"))
}

func TestWebhookSettlesWithValidSignature(t *testing.T) {
	env := newPaymentEnv(t)
	env.seedPendingCheckout(t, "u1", "batch-1", "sess-1")

	body, err := json.Marshal(webhookPayload{
		Type:      "checkout.session.completed",
		SessionID: "sess-1",
		BatchID:   "batch-1",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(body))
	req.Header.Set("X-Payment-Signature", events.Sign(body, gatewaySecret))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.batchPaid(t, "batch-1"))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newPaymentEnv(t)
	env.seedPendingCheckout(t, "u1", "batch-1", "sess-1")

	body := []byte(`{"type":"checkout.session.completed","session_id":"sess-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(body))
	req.Header.Set("X-Payment-Signature", "deadbeef")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.batchPaid(t, "batch-1"))
}

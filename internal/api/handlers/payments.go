package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"printq/internal/api/middleware"
	"printq/internal/core"
	"printq/internal/db"
	"printq/internal/payment"
)

type CheckoutRequest struct {
	BatchID string `json:"batch_id" binding:"required"`
}

type webhookPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	BatchID   string `json:"batch_id"`
}

// PaymentHandler bridges the external checkout gateway and the queue: a
// settled session marks the batch paid through the engine, and the local
// session row keeps the webhook and verify paths idempotent against each
// other.
type PaymentHandler struct {
	client   *payment.Client
	sessions *db.SessionStore
	jobs     core.JobStore
	engine   *core.Engine

	successURL string
	cancelURL  string
}

func NewPaymentHandler(client *payment.Client, sessions *db.SessionStore, jobs core.JobStore, engine *core.Engine, successURL, cancelURL string) *PaymentHandler {
	return &PaymentHandler{
		client:     client,
		sessions:   sessions,
		jobs:       jobs,
		engine:     engine,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	members, err := h.jobs.ListBatchJobs(ctx, req.BatchID)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	actor := middleware.ActorFrom(c)
	if !actor.Admin && members[0].UserID != actor.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to pay for this batch"})
		return
	}

	total := 0
	unpaid := 0
	for _, j := range members {
		if !j.IsPaid {
			total += j.CostCents
			unpaid++
		}
	}
	if unpaid == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch is already paid"})
		return
	}

	description := fmt.Sprintf("Print batch %s (%d documents)", req.BatchID, unpaid)
	session, err := h.client.CreateCheckoutSession(ctx, req.BatchID, total, description, h.successURL, h.cancelURL)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.sessions.CreateSession(ctx, &db.PaymentSession{
		ID:          session.ID,
		BatchID:     req.BatchID,
		AmountCents: total,
		Status:      db.SessionCreated,
	}); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
		"amount_cents": total,
	})
}

// Webhook handles the gateway's signed callback. An unknown session or a
// replayed delivery answers 200 so the gateway stops retrying.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if !h.client.VerifySignature(body, c.GetHeader("X-Payment-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if payload.Type != "checkout.session.completed" {
		c.JSON(http.StatusOK, gin.H{"message": "event ignored"})
		return
	}

	h.settle(c, payload.SessionID)
}

// Verify is the user-facing fallback for a lost webhook: it asks the gateway
// for the session's state and settles when paid. Only the batch owner or an
// admin may trigger it; the webhook path stays open to the gateway alone.
func (h *PaymentHandler) Verify(c *gin.Context) {
	sessionID := c.Param("sessionId")
	ctx := c.Request.Context()

	local, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		writeError(c, err)
		return
	}

	actor := middleware.ActorFrom(c)
	if !actor.Admin {
		members, err := h.jobs.ListBatchJobs(ctx, local.BatchID)
		if err != nil {
			writeError(c, err)
			return
		}
		if len(members) == 0 || members[0].UserID != actor.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to verify this session"})
			return
		}
	}

	session, err := h.client.GetSession(ctx, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if session.PaymentStatus != payment.StatusPaid {
		c.JSON(http.StatusOK, gin.H{"paid": false, "status": session.PaymentStatus})
		return
	}

	h.settle(c, sessionID)
}

func (h *PaymentHandler) settle(c *gin.Context, sessionID string) {
	ctx := c.Request.Context()

	local, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"message": "unknown session"})
			return
		}
		writeError(c, err)
		return
	}

	if local.Status == db.SessionPaid {
		c.JSON(http.StatusOK, gin.H{"paid": true, "batch_id": local.BatchID})
		return
	}

	n, err := h.engine.SettleBatchPayment(ctx, local.BatchID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.sessions.UpdateSessionStatus(ctx, sessionID, db.SessionPaid); err != nil {
		writeError(c, err)
		return
	}

	log.Printf("[payment] session %s settled, %d jobs marked paid in batch %s", sessionID, n, local.BatchID)
	c.JSON(http.StatusOK, gin.H{"paid": true, "batch_id": local.BatchID, "jobs_updated": n})
}

func (h *PaymentHandler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.POST("/payments/webhook", h.Webhook)

	authed.POST("/payments/checkout", h.CreateCheckout)
	authed.GET("/payments/verify/:sessionId", h.Verify)
}

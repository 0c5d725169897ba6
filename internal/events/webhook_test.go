package events

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printq/internal/config"
	"printq/internal/core"
)

func TestWebhookSenderDeliversSignedEvents(t *testing.T) {
	var mu sync.Mutex
	var received []*http.Request
	var bodies [][]byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r)
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(config.WebhooksConfig{
		Endpoints:  []config.WebhookEndpoint{{URL: srv.URL, Secret: "shh"}},
		RetryCount: 1,
		RetryDelay: time.Millisecond,
		Timeout:    2 * time.Second,
		QueueSize:  10,
	})
	sender.Start()

	sender.Deliver(Event{Type: TypeJobCreated, Job: &core.Job{ID: "j1"}})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
	sender.Stop()

	mu.Lock()
	defer mu.Unlock()
	r := received[0]
	assert.Equal(t, string(TypeJobCreated), r.Header.Get("X-Webhook-Event"))
	assert.Equal(t, Sign(bodies[0], "shh"), r.Header.Get("X-Webhook-Signature"))

	var e Event
	require.NoError(t, json.Unmarshal(bodies[0], &e))
	assert.Equal(t, "j1", e.Job.ID)
}

func TestWebhookSenderRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(config.WebhooksConfig{
		Endpoints:  []config.WebhookEndpoint{{URL: srv.URL}},
		RetryCount: 3,
		RetryDelay: time.Millisecond,
		Timeout:    2 * time.Second,
		QueueSize:  10,
	})
	sender.Start()

	sender.Deliver(Event{Type: TypeJobUpdated})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	})
	sender.Stop()
}

func TestWebhookSenderGivesUpOnClientError(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sender := NewWebhookSender(config.WebhooksConfig{
		Endpoints:  []config.WebhookEndpoint{{URL: srv.URL}},
		RetryCount: 3,
		RetryDelay: time.Millisecond,
		Timeout:    2 * time.Second,
		QueueSize:  10,
	})
	sender.Start()

	sender.Deliver(Event{Type: TypeJobUpdated})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 1
	})
	// Give a would-be retry time to happen, then confirm it did not.
	time.Sleep(50 * time.Millisecond)
	sender.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts)
}

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte(`{"type":"jobCreated"}`)

	assert.Equal(t, Sign(payload, "secret"), Sign(payload, "secret"))
	assert.NotEqual(t, Sign(payload, "secret"), Sign(payload, "other"))
	assert.Len(t, Sign(payload, "secret"), 64)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

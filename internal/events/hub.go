package events

import (
	"log"
	"sync"
	"time"

	"printq/internal/core"
)

type Type string

const (
	TypeJobCreated         Type = "jobCreated"
	TypeJobUpdated         Type = "jobUpdated"
	TypeBatchUpdated       Type = "batchUpdated"
	TypeJobDeleted         Type = "jobDeleted"
	TypeBatchDeleted       Type = "batchDeleted"
	TypeReadyToCollect     Type = "readyToCollect"
	TypeQueuePositionAlert Type = "queuePositionAlert"
	TypePrinterUpdated     Type = "printerUpdated"
)

// Event is the single wire shape for every fan-out message. A batchUpdated
// event carries the whole changed set in Jobs: consumers must treat it as
// one change of multiple records, not individual transitions.
type Event struct {
	Type      Type          `json:"type"`
	Job       *core.Job     `json:"job,omitempty"`
	Jobs      []*core.Job   `json:"jobs,omitempty"`
	JobID     string        `json:"job_id,omitempty"`
	BatchID   string        `json:"batch_id,omitempty"`
	Printer   *core.Printer `json:"printer,omitempty"`
	PrinterID string        `json:"printer_id,omitempty"`
	// UserID targets the advisory events; empty means broadcast.
	UserID    string    `json:"user_id,omitempty"`
	Position  int       `json:"position,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives every published event, e.g. the outbound webhook sender.
type Sink interface {
	Deliver(Event)
}

// Hub is the live broadcast registry. Delivery is best-effort and
// at-most-once: a subscriber that cannot keep up loses events and is
// expected to re-query current state.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	sinks       []Sink
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

func (h *Hub) AttachSink(s Sink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, s)
	h.mu.Unlock()
}

func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) publish(e Event) {
	e.Timestamp = time.Now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			log.Printf("[events] subscriber full, dropping %s event", e.Type)
		}
	}
	for _, s := range h.sinks {
		s.Deliver(e)
	}
}

func (h *Hub) JobCreated(j *core.Job) {
	h.publish(Event{Type: TypeJobCreated, Job: j})
}

func (h *Hub) JobUpdated(j *core.Job) {
	h.publish(Event{Type: TypeJobUpdated, Job: j})
}

func (h *Hub) BatchUpdated(batchID string, jobs []*core.Job) {
	h.publish(Event{Type: TypeBatchUpdated, BatchID: batchID, Jobs: jobs})
}

func (h *Hub) JobDeleted(jobID string) {
	h.publish(Event{Type: TypeJobDeleted, JobID: jobID})
}

func (h *Hub) BatchDeleted(batchID string) {
	h.publish(Event{Type: TypeBatchDeleted, BatchID: batchID})
}

func (h *Hub) ReadyToCollect(j *core.Job) {
	h.publish(Event{
		Type:    TypeReadyToCollect,
		Job:     j,
		UserID:  j.UserID,
		Message: "Your document is ready. Please collect it at the counter.",
	})
}

func (h *Hub) QueuePositionAlert(userID, jobID string, position int) {
	h.publish(Event{
		Type:     TypeQueuePositionAlert,
		UserID:   userID,
		JobID:    jobID,
		Position: position,
		Message:  "You are 5th in line! Please head to the printer.",
	})
}

// PrinterUpdated covers the printer CRUD fan-out; action is one of create,
// update, delete.
func (h *Hub) PrinterUpdated(action string, p *core.Printer, printerID string) {
	h.publish(Event{Type: TypePrinterUpdated, Message: action, Printer: p, PrinterID: printerID})
}

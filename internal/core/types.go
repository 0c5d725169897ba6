package core

import (
	"context"
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusPrinting  JobStatus = "printing"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCollected JobStatus = "collected"
	JobStatusSkipped   JobStatus = "skipped"
	JobStatusFailed    JobStatus = "failed"
)

type PaymentMethod string

const (
	PaymentOnline  PaymentMethod = "online"
	PaymentCounter PaymentMethod = "counter"
	PaymentNone    PaymentMethod = "none"
)

type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusPendingPayment PaymentStatus = "pending_payment"
	PaymentStatusPaid           PaymentStatus = "paid"
	PaymentStatusFailed         PaymentStatus = "failed"
)

const (
	SidesSingle = "single"
	SidesDouble = "double"
	ColorBW     = "bw"
	ColorFull   = "color"
)

type Job struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	PrinterID         string     `json:"printer_id"`
	FileRef           string     `json:"file_ref"`
	BatchID           string     `json:"batch_id,omitempty"`
	Status            JobStatus  `json:"status"`
	IsPaid            bool       `json:"is_paid"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	ConfirmedPresence bool       `json:"confirmed_presence"`
	ConfirmationTime  *time.Time `json:"confirmation_time,omitempty"`
	Sides             string     `json:"sides"`
	Color             string     `json:"color"`
	PageCount         int        `json:"page_count"`
	Copies            int        `json:"copies"`
	CostCents         int        `json:"cost_cents"`
	SkipCount         int        `json:"skip_count"`
	// QueueTimestamp is the queue ordering key. It defaults to CreatedAt and
	// is rewritten only by the skip operation. A nil value is a data defect
	// healed back to CreatedAt before the job participates in ordering.
	QueueTimestamp *time.Time `json:"queue_timestamp"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CollectedAt    *time.Time `json:"collected_at,omitempty"`
}

type Printer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	PrinterOnline  = "online"
	PrinterOffline = "offline"
	PrinterBusy    = "busy"
)

// JobStore is the persistence surface the engine needs. Conditional
// mutations report whether a row actually changed so guards can be
// re-checked against the state that won the race.
type JobStore interface {
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context) ([]*Job, error)
	ListJobsByStatus(ctx context.Context, statuses ...JobStatus) ([]*Job, error)
	ListUserJobs(ctx context.Context, userID string) ([]*Job, error)
	ListBatchJobs(ctx context.Context, batchID string) ([]*Job, error)

	// StartPrinting flips pending -> printing only while the job is pending,
	// paid, and no other job on the same printer is printing.
	StartPrinting(ctx context.Context, id string) (bool, error)
	// CompleteIfPrinting flips printing -> completed and stamps completedAt;
	// a no-op returning false when the job already left printing.
	CompleteIfPrinting(ctx context.Context, id string, at time.Time) (bool, error)
	SetStatus(ctx context.Context, id string, status JobStatus) error
	MarkCollected(ctx context.Context, id string, at time.Time) error

	MarkPaid(ctx context.Context, id string) error
	// MarkBatchPaid marks every pending unpaid member paid in one
	// transaction and returns how many rows changed.
	MarkBatchPaid(ctx context.Context, batchID string) (int, error)
	MarkUserPaid(ctx context.Context, userID string) (int, error)
	// SettleBatchPayment marks every still-unpaid member of a batch paid,
	// regardless of status. Idempotent: zero rows is not an error.
	SettleBatchPayment(ctx context.Context, batchID string) (int, error)

	ConfirmPresence(ctx context.Context, ids []string, at time.Time) error
	ReassignPrinter(ctx context.Context, id, printerID string) error

	// ApplySkip atomically rewrites queueTimestamp and increments skipCount
	// for every member of the batch.
	ApplySkip(ctx context.Context, batchID string, ts time.Time) error

	DeleteJob(ctx context.Context, id string) error
	DeleteBatch(ctx context.Context, batchID string) (int, error)

	HealQueueTimestamps(ctx context.Context) (int, error)
	PurgeCollectedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type PrinterStore interface {
	GetPrinter(ctx context.Context, id string) (*Printer, error)
	ListPrinters(ctx context.Context) ([]*Printer, error)
}

// Publisher fans mutation events out to subscribers. Delivery is
// best-effort; the stores remain the source of truth.
type Publisher interface {
	JobCreated(j *Job)
	JobUpdated(j *Job)
	BatchUpdated(batchID string, jobs []*Job)
	JobDeleted(jobID string)
	BatchDeleted(batchID string)
	ReadyToCollect(j *Job)
	QueuePositionAlert(userID, jobID string, position int)
}

// CompletionScheduler runs the deferred auto-completion callback for a job
// that entered printing. Scheduling again for the same job replaces the
// earlier timer.
type CompletionScheduler interface {
	Schedule(jobID string, delay time.Duration, fire func())
	Cancel(jobID string)
}

package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"printq/internal/config"
)

// Engine drives every job and batch mutation. It holds no job state of its
// own: each operation re-reads current rows, applies guards, and relies on
// the store's conditional updates to settle races.
type Engine struct {
	jobs     JobStore
	printers PrinterStore
	pub      Publisher
	sched    CompletionScheduler
	queue    config.QueueConfig
	pricing  config.PricingConfig
}

func NewEngine(jobs JobStore, printers PrinterStore, pub Publisher, sched CompletionScheduler, queue config.QueueConfig, pricing config.PricingConfig) *Engine {
	if queue.SecondsPerPage < 1 {
		queue.SecondsPerPage = 3
	}
	if queue.ServiceDelay <= 0 {
		queue.ServiceDelay = 3 * time.Second
	}
	if queue.MaxSkips <= 0 {
		queue.MaxSkips = 2
	}

	return &Engine{
		jobs:     jobs,
		printers: printers,
		pub:      pub,
		sched:    sched,
		queue:    queue,
		pricing:  pricing,
	}
}

type SubmitRequest struct {
	PrinterID     string
	FileRef       string
	BatchID       string
	Sides         string
	Color         string
	PageCount     int
	Copies        int
	PaymentMethod PaymentMethod
	// AwaitingPayment marks jobs created ahead of an online checkout; they
	// stay unpaid until the gateway settles the session.
	AwaitingPayment bool
}

// CostCents derives the immutable job cost at submission time.
func CostCents(p config.PricingConfig, color, sides string, pages, copies int) int {
	rate := p.BWCentsPerPage
	if color == ColorFull {
		rate = p.ColorCentsPerPage
	}
	cost := pages * copies * rate
	if sides == SidesDouble {
		cost = (cost*3 + 1) / 2
	}
	return cost
}

func (e *Engine) SubmitJob(ctx context.Context, actor Actor, req SubmitRequest) (*Job, error) {
	if req.PageCount < 1 {
		req.PageCount = 1
	}
	if req.Copies < 1 {
		req.Copies = 1
	}
	if req.Sides == "" {
		req.Sides = SidesSingle
	}
	if req.Color == "" {
		req.Color = ColorBW
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = PaymentNone
	}

	if _, err := e.printers.GetPrinter(ctx, req.PrinterID); err != nil {
		return nil, fmt.Errorf("printer %s: %w", req.PrinterID, err)
	}

	isPaid := req.PaymentMethod == PaymentOnline && !req.AwaitingPayment
	paymentStatus := PaymentStatusPending
	switch {
	case isPaid:
		paymentStatus = PaymentStatusPaid
	case req.AwaitingPayment:
		paymentStatus = PaymentStatusPendingPayment
	}

	now := time.Now()
	job := &Job{
		ID:            uuid.NewString(),
		UserID:        actor.ID,
		PrinterID:     req.PrinterID,
		FileRef:       req.FileRef,
		BatchID:       req.BatchID,
		Status:        JobStatusPending,
		IsPaid:        isPaid,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: paymentStatus,
		// Paying online implies the user need not be present at print time.
		ConfirmedPresence: isPaid,
		Sides:             req.Sides,
		Color:             req.Color,
		PageCount:         req.PageCount,
		Copies:            req.Copies,
		CostCents:         CostCents(e.pricing, req.Color, req.Sides, req.PageCount, req.Copies),
		QueueTimestamp:    &now,
		CreatedAt:         now,
	}

	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	e.pub.JobCreated(job)
	return job, nil
}

// ListQueue returns the pending/printing jobs in queue order with read-time
// position and wait annotations on the pending entries.
func (e *Engine) ListQueue(ctx context.Context) ([]QueueEntry, error) {
	jobs, err := e.jobs.ListJobsByStatus(ctx, JobStatusPending, JobStatusPrinting)
	if err != nil {
		return nil, err
	}
	return AnnotateQueue(SortQueue(jobs), e.queue.SecondsPerPage), nil
}

// ListUserJobs returns the user's jobs annotated with their place in the
// global queue. Jobs no longer queued carry no annotations.
func (e *Engine) ListUserJobs(ctx context.Context, actor Actor, userID string) ([]QueueEntry, error) {
	if err := authorize(actor, userID, RightView, "user's jobs"); err != nil {
		return nil, err
	}

	userJobs, err := e.jobs.ListUserJobs(ctx, userID)
	if err != nil {
		return nil, err
	}

	global, err := e.ListQueue(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]QueueEntry, len(global))
	for _, entry := range global {
		byID[entry.ID] = entry
	}

	entries := make([]QueueEntry, 0, len(userJobs))
	for _, j := range SortQueue(userJobs) {
		if queued, ok := byID[j.ID]; ok {
			entries = append(entries, queued)
			continue
		}
		entries = append(entries, QueueEntry{Job: j})
	}
	return entries, nil
}

// UserQueueStats is the coarse "people ahead / minutes to wait" summary. A
// user with no queued jobs gets zeros.
func (e *Engine) UserQueueStats(ctx context.Context, userID string) (UserStats, error) {
	jobs, err := e.jobs.ListJobsByStatus(ctx, JobStatusPending, JobStatusPrinting)
	if err != nil {
		return UserStats{}, err
	}
	return ComputeUserStats(SortQueue(jobs), userID, e.queue.SecondsPerPage), nil
}

// ListAllJobs is the admin listing. It heals any job whose queueTimestamp
// went missing before that job is allowed to influence ordering again.
func (e *Engine) ListAllJobs(ctx context.Context) ([]*Job, error) {
	if _, err := e.HealQueue(ctx); err != nil {
		return nil, err
	}
	return e.jobs.ListJobs(ctx)
}

// ListBatches projects the full job set into batch views plus loose
// individual jobs. Queued batches carry the position and wait of their
// earliest pending member, computed over the same snapshot.
func (e *Engine) ListBatches(ctx context.Context) ([]*BatchView, []*Job, error) {
	jobs, err := e.jobs.ListJobs(ctx)
	if err != nil {
		return nil, nil, err
	}
	views, individual := AggregateBatches(jobs)

	var queued []*Job
	for _, j := range jobs {
		if j.Status == JobStatusPending || j.Status == JobStatusPrinting {
			queued = append(queued, j)
		}
	}
	entries := AnnotateQueue(SortQueue(queued), e.queue.SecondsPerPage)
	for _, v := range views {
		v.PositionInQueue, v.EstimatedWaitSeconds = BatchQueueSummary(entries, v.BatchID)
	}

	return views, individual, nil
}

// HealQueue rewrites missing queueTimestamps back to createdAt. Idempotent;
// corrected transparently and only logged.
func (e *Engine) HealQueue(ctx context.Context) (int, error) {
	n, err := e.jobs.HealQueueTimestamps(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to heal queue timestamps: %w", err)
	}
	if n > 0 {
		log.Printf("[queue] healed %d jobs with missing queueTimestamp", n)
	}
	return n, nil
}

// PurgeCollected drops collected jobs older than the retention window.
func (e *Engine) PurgeCollected(ctx context.Context, retain time.Duration) (int, error) {
	return e.jobs.PurgeCollectedBefore(ctx, time.Now().Add(-retain))
}

// SetStatus is the admin status override. Only the legal transitions of the
// lifecycle are accepted.
func (e *Engine) SetStatus(ctx context.Context, jobID string, status JobStatus) (*Job, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch status {
	case JobStatusPrinting:
		if job.Status != JobStatusPending {
			return nil, policyErr(ReasonBadTransition, "job is %s, only pending jobs can start printing", job.Status)
		}
		return e.startMember(ctx, job, true)

	case JobStatusCompleted:
		ok, err := e.jobs.CompleteIfPrinting(ctx, jobID, time.Now())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, policyErr(ReasonBadTransition, "job is %s, only printing jobs can be completed", job.Status)
		}
		e.sched.Cancel(jobID)
		fresh, err := e.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		e.emitCompleted(ctx, fresh)
		return fresh, nil

	case JobStatusCollected:
		return e.MarkCollected(ctx, Actor{Admin: true}, jobID)

	case JobStatusSkipped:
		if job.Status != JobStatusPending {
			return nil, policyErr(ReasonBadTransition, "job is %s, only pending jobs can be skipped", job.Status)
		}
		if err := e.jobs.SetStatus(ctx, jobID, JobStatusSkipped); err != nil {
			return nil, err
		}
		fresh, err := e.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		e.pub.JobUpdated(fresh)
		return fresh, nil

	default:
		return nil, policyErr(ReasonBadTransition, "status %s cannot be set directly", status)
	}
}

// startMember moves one job into printing under the full guard set. The
// printer-exclusivity check happens inside the store's conditional update so
// two concurrent starts on one printer cannot both win.
func (e *Engine) startMember(ctx context.Context, job *Job, requireOrder bool) (*Job, error) {
	if !job.IsPaid {
		return nil, policyErr(ReasonUnpaid, "cannot start printing: job is unpaid")
	}
	if job.PaymentMethod == PaymentCounter && !job.ConfirmedPresence {
		return nil, policyErr(ReasonPresenceRequired, "cannot start printing: presence not confirmed")
	}

	if requireOrder {
		if err := e.checkNextInLine(ctx, job); err != nil {
			return nil, err
		}
	}

	ok, err := e.jobs.StartPrinting(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.diagnoseStartFailure(ctx, job)
	}

	e.sched.Schedule(job.ID, e.queue.ServiceDelay, func() {
		e.autoComplete(job.ID)
	})

	fresh, err := e.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	e.pub.JobUpdated(fresh)
	return fresh, nil
}

// checkNextInLine rejects starting a job that is not the earliest pending
// job for its own printer.
func (e *Engine) checkNextInLine(ctx context.Context, job *Job) error {
	pending, err := e.jobs.ListJobsByStatus(ctx, JobStatusPending)
	if err != nil {
		return err
	}
	for _, other := range SortQueue(pending) {
		if other.PrinterID != job.PrinterID {
			continue
		}
		if other.ID == job.ID {
			return nil
		}
		return policyErr(ReasonOutOfOrder, "job %s is ahead in the queue for this printer", other.ID)
	}
	return policyErr(ReasonBadTransition, "job is no longer pending")
}

// diagnoseStartFailure re-reads state after a conditional start lost, to
// name the guard that actually failed.
func (e *Engine) diagnoseStartFailure(ctx context.Context, job *Job) error {
	printing, err := e.jobs.ListJobsByStatus(ctx, JobStatusPrinting)
	if err != nil {
		return err
	}
	for _, other := range printing {
		if other.PrinterID == job.PrinterID && other.ID != job.ID {
			return policyErr(ReasonPrinterBusy, "printer is busy with job %s", other.ID)
		}
	}
	return policyErr(ReasonBadTransition, "job state changed concurrently, start rejected")
}

// autoComplete is the deferred service-delay callback. It verifies against
// fresh state before mutating: a job moved elsewhere by a concurrent action
// is left alone.
func (e *Engine) autoComplete(jobID string) {
	ctx := context.Background()

	ok, err := e.jobs.CompleteIfPrinting(ctx, jobID, time.Now())
	if err != nil {
		log.Printf("[queue] auto-complete of job %s failed: %v", jobID, err)
		return
	}
	if !ok {
		return
	}

	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("[queue] auto-complete of job %s: re-read failed: %v", jobID, err)
		return
	}

	log.Printf("[queue] job %s auto-completed", jobID)
	e.emitCompleted(ctx, job)

	if job.BatchID != "" {
		e.chainNext(ctx, job.BatchID)
	}
}

// emitCompleted fans out the completion and alerts the user whose earliest
// pending job just reached position five.
func (e *Engine) emitCompleted(ctx context.Context, job *Job) {
	e.pub.JobUpdated(job)
	e.pub.ReadyToCollect(job)

	pending, err := e.jobs.ListJobsByStatus(ctx, JobStatusPending)
	if err != nil {
		log.Printf("[queue] position alert scan failed: %v", err)
		return
	}
	seen := make(map[string]struct{})
	for i, j := range SortQueue(pending) {
		if _, ok := seen[j.UserID]; ok {
			continue
		}
		seen[j.UserID] = struct{}{}
		if i+1 == 5 {
			e.pub.QueuePositionAlert(j.UserID, j.ID, 5)
		}
	}
}

// chainNext starts the next pending, paid member of a batch after one
// member auto-completed. Guard failures stop the chain without error; the
// admin dashboard shows what is stuck.
func (e *Engine) chainNext(ctx context.Context, batchID string) {
	members, err := e.jobs.ListBatchJobs(ctx, batchID)
	if err != nil {
		log.Printf("[queue] batch %s chain: %v", batchID, err)
		return
	}

	var next *Job
	for _, j := range SortQueue(members) {
		if j.Status == JobStatusPending && j.IsPaid {
			next = j
			break
		}
	}
	if next == nil {
		return
	}

	if _, err := e.startMember(ctx, next, false); err != nil {
		log.Printf("[queue] batch %s chain stopped at job %s: %v", batchID, next.ID, err)
	}
}

// StartBatchPrinting starts the earliest pending, paid member of a batch;
// the rest follow one by one through the auto-completion chain.
func (e *Engine) StartBatchPrinting(ctx context.Context, batchID string) (*Job, error) {
	members, err := e.jobs.ListBatchJobs(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var first *Job
	for _, j := range SortQueue(members) {
		if j.Status == JobStatusPending && j.IsPaid {
			first = j
			break
		}
	}
	if first == nil {
		return nil, fmt.Errorf("no printable jobs in batch %s: %w", batchID, ErrNotFound)
	}

	return e.startMember(ctx, first, false)
}

func (e *Engine) MarkJobPaid(ctx context.Context, jobID string) (*Job, error) {
	if _, err := e.jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	if err := e.jobs.MarkPaid(ctx, jobID); err != nil {
		return nil, err
	}
	fresh, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	e.pub.JobUpdated(fresh)
	return fresh, nil
}

// MarkBatchPaid cascades payment to every pending unpaid member, all or
// nothing. An empty target set reports not-found rather than silently
// succeeding.
func (e *Engine) MarkBatchPaid(ctx context.Context, batchID string) ([]*Job, error) {
	n, err := e.jobs.MarkBatchPaid(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("no unpaid pending jobs in batch %s: %w", batchID, ErrNotFound)
	}

	updated, err := e.jobs.ListBatchJobs(ctx, batchID)
	if err != nil {
		return nil, err
	}
	e.pub.BatchUpdated(batchID, updated)
	return updated, nil
}

// MarkUserPaid settles every unpaid pending job a user has, across batches.
// The published payload carries only the jobs this call actually flipped,
// not ones that were paid already.
func (e *Engine) MarkUserPaid(ctx context.Context, userID string) ([]*Job, error) {
	before, err := e.jobs.ListUserJobs(ctx, userID)
	if err != nil {
		return nil, err
	}
	var targets []string
	for _, j := range SortQueue(before) {
		if j.Status == JobStatusPending && !j.IsPaid {
			targets = append(targets, j.ID)
		}
	}

	n, err := e.jobs.MarkUserPaid(ctx, userID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("no unpaid pending jobs for user %s: %w", userID, ErrNotFound)
	}

	updated := make([]*Job, 0, len(targets))
	for _, id := range targets {
		j, err := e.jobs.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		updated = append(updated, j)
	}
	e.pub.BatchUpdated("", updated)
	return updated, nil
}

// SettleBatchPayment is the gateway-facing payment hook: it marks exactly
// the still-unpaid members of a batch paid. Safe to invoke repeatedly.
func (e *Engine) SettleBatchPayment(ctx context.Context, batchID string) (int, error) {
	n, err := e.jobs.SettleBatchPayment(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		updated, err := e.jobs.ListBatchJobs(ctx, batchID)
		if err != nil {
			return n, err
		}
		e.pub.BatchUpdated(batchID, updated)
	}
	return n, nil
}

// ConfirmPresence records the user checking in at the counter. It cascades
// to every pending, unconfirmed job in the same batch, or just the job
// itself when it has none.
func (e *Engine) ConfirmPresence(ctx context.Context, actor Actor, jobID string) (*Job, []*Job, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(actor, job.UserID, RightView, "job"); err != nil {
		return nil, nil, err
	}

	var targets []*Job
	if job.BatchID != "" {
		members, err := e.jobs.ListBatchJobs(ctx, job.BatchID)
		if err != nil {
			return nil, nil, err
		}
		for _, m := range members {
			if m.Status == JobStatusPending && !m.ConfirmedPresence {
				targets = append(targets, m)
			}
		}
	} else if !job.ConfirmedPresence {
		targets = append(targets, job)
	}

	if len(targets) > 0 {
		ids := make([]string, 0, len(targets))
		for _, t := range targets {
			ids = append(ids, t.ID)
		}
		if err := e.jobs.ConfirmPresence(ctx, ids, time.Now()); err != nil {
			return nil, nil, err
		}

		updated := make([]*Job, 0, len(ids))
		for _, id := range ids {
			u, err := e.jobs.GetJob(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			updated = append(updated, u)
		}
		if job.BatchID != "" {
			e.pub.BatchUpdated(job.BatchID, updated)
		} else {
			e.pub.JobUpdated(updated[0])
		}

		fresh, err := e.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, nil, err
		}
		return fresh, updated, nil
	}

	return job, nil, nil
}

// SkipBatch pushes a batch to a later queue slot by rewriting its ordering
// timestamp, leaving every other batch's relative order untouched. Capped at
// MaxSkips per batch. Admin-only: demoting a batch touches other users'
// positions, so owners cannot trigger it themselves. Returns the batch's new
// 1-based position.
func (e *Engine) SkipBatch(ctx context.Context, actor Actor, batchID string) (int, error) {
	if !Allows(actor, "", RightAdmin) {
		return 0, &UnauthorizedError{Message: "only admins may reorder the queue"}
	}

	members, err := e.jobs.ListBatchJobs(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}

	pending, err := e.jobs.ListJobsByStatus(ctx, JobStatusPending)
	if err != nil {
		return 0, err
	}

	ts, pos, err := PlanSkip(SortQueue(pending), batchID, members[0].SkipCount, e.queue.MaxSkips, time.Now())
	if err != nil {
		return 0, err
	}

	if err := e.jobs.ApplySkip(ctx, batchID, ts); err != nil {
		return 0, fmt.Errorf("failed to apply skip: %w", err)
	}

	updated, err := e.jobs.ListBatchJobs(ctx, batchID)
	if err != nil {
		return 0, err
	}
	e.pub.BatchUpdated(batchID, updated)
	return pos, nil
}

func (e *Engine) MarkCollected(ctx context.Context, actor Actor, jobID string) (*Job, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, job.UserID, RightCollect, "job"); err != nil {
		return nil, err
	}
	if job.Status != JobStatusCompleted {
		return nil, policyErr(ReasonBadTransition, "job is %s, only completed jobs can be collected", job.Status)
	}

	if err := e.jobs.MarkCollected(ctx, jobID, time.Now()); err != nil {
		return nil, err
	}
	fresh, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	e.pub.JobUpdated(fresh)
	return fresh, nil
}

// DeleteJob removes a single job: owners may delete their own jobs unless
// printing, admins may delete anything.
func (e *Engine) DeleteJob(ctx context.Context, actor Actor, jobID string) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !actor.Admin {
		if err := authorize(actor, job.UserID, RightDelete, "job"); err != nil {
			return err
		}
		if job.Status == JobStatusPrinting {
			return policyErr(ReasonJobPrinting, "job is currently printing and cannot be deleted")
		}
	}

	e.sched.Cancel(jobID)
	if err := e.jobs.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	e.pub.JobDeleted(jobID)
	return nil
}

// DeleteBatch removes a whole batch, all members or none. Non-admins must
// own every member and none may be printing.
func (e *Engine) DeleteBatch(ctx context.Context, actor Actor, batchID string) error {
	members, err := e.jobs.ListBatchJobs(ctx, batchID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}

	if !actor.Admin {
		for _, m := range members {
			if err := authorize(actor, m.UserID, RightDelete, "batch"); err != nil {
				return err
			}
		}
		for _, m := range members {
			if m.Status == JobStatusPrinting {
				return policyErr(ReasonJobPrinting, "batch has a printing job and cannot be deleted")
			}
		}
	}

	for _, m := range members {
		e.sched.Cancel(m.ID)
	}
	if _, err := e.jobs.DeleteBatch(ctx, batchID); err != nil {
		return err
	}
	e.pub.BatchDeleted(batchID)
	return nil
}

// ChangePrinter reassigns a pending job to another printer.
func (e *Engine) ChangePrinter(ctx context.Context, jobID, printerID string) (*Job, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := e.printers.GetPrinter(ctx, printerID); err != nil {
		return nil, fmt.Errorf("printer %s: %w", printerID, err)
	}
	if job.Status != JobStatusPending {
		return nil, policyErr(ReasonBadTransition, "printer can only be changed while the job is pending")
	}

	if err := e.jobs.ReassignPrinter(ctx, jobID, printerID); err != nil {
		return nil, err
	}
	fresh, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	e.pub.JobUpdated(fresh)
	return fresh, nil
}

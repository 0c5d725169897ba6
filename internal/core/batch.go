package core

import (
	"sort"
	"time"
)

// BatchView is the read-side projection of the jobs sharing a batchId. It is
// recomputed from a job snapshot on every read and never persisted.
type BatchView struct {
	BatchID        string    `json:"batch_id"`
	Jobs           []*Job    `json:"jobs"`
	Status         JobStatus `json:"status"`
	AllPaid        bool      `json:"all_paid"`
	AllConfirmed   bool      `json:"all_confirmed"`
	TotalPages     int       `json:"total_pages"`
	TotalCostCents int       `json:"total_cost_cents"`
	SkipCount      int       `json:"skip_count"`

	// Read-time queue annotations from the earliest pending member; zero when
	// nothing in the batch is pending.
	PositionInQueue      int `json:"position_in_queue,omitempty"`
	EstimatedWaitSeconds int `json:"estimated_wait_seconds,omitempty"`

	orderedAt time.Time
}

// statusRank orders the mixed-status fallback: a batch that is not printing
// inherits the most queue-relevant status among its members.
var statusRank = map[JobStatus]int{
	JobStatusPrinting:  0,
	JobStatusPending:   1,
	JobStatusCompleted: 2,
	JobStatusCollected: 3,
	JobStatusSkipped:   4,
	JobStatusFailed:    5,
}

// AggregateBatches groups a flat job snapshot into batch views plus the
// individual jobs that carry no batchId. A lone job without a batchId stays
// individual; it is never dressed up as a batch of one. Batches come back in
// queue presentation order.
func AggregateBatches(jobs []*Job) ([]*BatchView, []*Job) {
	sorted := SortQueue(jobs)

	byID := make(map[string]*BatchView)
	var order []string
	var individual []*Job

	for _, j := range sorted {
		if j.BatchID == "" {
			individual = append(individual, j)
			continue
		}
		v, ok := byID[j.BatchID]
		if !ok {
			v = &BatchView{
				BatchID:      j.BatchID,
				AllPaid:      true,
				AllConfirmed: true,
				Status:       j.Status,
				SkipCount:    j.SkipCount,
				orderedAt:    orderKey(j),
			}
			byID[j.BatchID] = v
			order = append(order, j.BatchID)
		}
		v.Jobs = append(v.Jobs, j)
		v.TotalPages += j.PageCount
		v.TotalCostCents += j.CostCents
		v.AllPaid = v.AllPaid && j.IsPaid
		v.AllConfirmed = v.AllConfirmed && j.ConfirmedPresence
		if statusRank[j.Status] < statusRank[v.Status] {
			v.Status = j.Status
		}
		if j.SkipCount > v.SkipCount {
			v.SkipCount = j.SkipCount
		}
	}

	views := make([]*BatchView, 0, len(order))
	for _, id := range order {
		views = append(views, byID[id])
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].orderedAt.Before(views[j].orderedAt)
	})

	return views, individual
}

// BatchQueueSummary reports when the first item of a batch prints: the
// minimum position and wait among the batch's pending members in an
// annotated queue. Zeros mean the batch has nothing pending.
func BatchQueueSummary(entries []QueueEntry, batchID string) (position, waitSeconds int) {
	for _, e := range entries {
		if e.BatchID != batchID || e.Status != JobStatusPending {
			continue
		}
		if position == 0 || e.PositionInQueue < position {
			position = e.PositionInQueue
			waitSeconds = e.EstimatedWaitSeconds
		}
	}
	return position, waitSeconds
}

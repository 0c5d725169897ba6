package core

import (
	"sort"
	"time"
)

// orderKey is the primary queue sort key: queueTimestamp when present,
// createdAt as the fallback.
func orderKey(j *Job) time.Time {
	if j.QueueTimestamp != nil {
		return *j.QueueTimestamp
	}
	return j.CreatedAt
}

func lessInQueue(a, b *Job) bool {
	ka, kb := orderKey(a), orderKey(b)
	if !ka.Equal(kb) {
		return ka.Before(kb)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortQueue returns the jobs in queue order without mutating the input.
func SortQueue(jobs []*Job) []*Job {
	sorted := make([]*Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessInQueue(sorted[i], sorted[j])
	})
	return sorted
}

// PagesAhead sums the page counts of every job sorted strictly before idx.
func PagesAhead(sorted []*Job, idx int) int {
	pages := 0
	for _, j := range sorted[:idx] {
		pages += j.PageCount
	}
	return pages
}

// QueueEntry is a job plus its read-time queue annotations. Position and
// wait are attached only while the job is pending; they are never persisted.
type QueueEntry struct {
	*Job
	PositionInQueue      int `json:"position_in_queue,omitempty"`
	EstimatedWaitSeconds int `json:"estimated_wait_seconds,omitempty"`
}

// AnnotateQueue computes positions and wait estimates over a sorted
// pending/printing snapshot.
func AnnotateQueue(sorted []*Job, secondsPerPage int) []QueueEntry {
	entries := make([]QueueEntry, 0, len(sorted))
	for i, j := range sorted {
		e := QueueEntry{Job: j}
		if j.Status == JobStatusPending {
			e.PositionInQueue = i + 1
			e.EstimatedWaitSeconds = PagesAhead(sorted, i) * secondsPerPage
		}
		entries = append(entries, e)
	}
	return entries
}

// UserStats is the coarse per-user queue summary: how many distinct people
// sort before the user's first job, and the wait in whole minutes.
type UserStats struct {
	PeopleAhead int `json:"people_ahead"`
	WaitMinutes int `json:"wait_minutes"`
}

// ComputeUserStats derives the user summary from a sorted pending/printing
// snapshot. A user with nothing in the queue gets zeros, not an error. The
// minute figure rounds up from the same pages-ahead sum the per-job estimate
// uses.
func ComputeUserStats(sorted []*Job, userID string, secondsPerPage int) UserStats {
	first := -1
	for i, j := range sorted {
		if j.UserID == userID {
			first = i
			break
		}
	}
	if first < 0 {
		return UserStats{}
	}

	users := make(map[string]struct{})
	for _, j := range sorted[:first] {
		users[j.UserID] = struct{}{}
	}

	waitSeconds := PagesAhead(sorted, first) * secondsPerPage
	return UserStats{
		PeopleAhead: len(users),
		WaitMinutes: (waitSeconds + 59) / 60,
	}
}

type batchSlot struct {
	batchID string
	key     time.Time
}

// pendingBatches lists the distinct batches among sorted pending jobs in
// queue order. A batch's key is its earliest member's ordering key, which is
// the first seen in a sorted walk. Individual jobs take no part in
// batch-level reordering.
func pendingBatches(sortedPending []*Job) []batchSlot {
	seen := make(map[string]struct{})
	var slots []batchSlot
	for _, j := range sortedPending {
		if j.BatchID == "" {
			continue
		}
		if _, ok := seen[j.BatchID]; ok {
			continue
		}
		seen[j.BatchID] = struct{}{}
		slots = append(slots, batchSlot{batchID: j.BatchID, key: orderKey(j)})
	}
	return slots
}

// slotGap is the spacing used when a skipped batch lands before the first or
// after the last remaining batch.
const slotGap = time.Minute

// PlanSkip computes the new ordering timestamp and 1-based position for a
// batch being pushed back in the queue. pendingSorted must be the pending
// jobs in queue order. The returned timestamp is a midpoint between the
// batches adjacent to the target slot, so other batches keep their relative
// order and concurrent submissions (which enqueue at "now") still sort last.
func PlanSkip(pendingSorted []*Job, batchID string, skipCount, maxSkips int, now time.Time) (time.Time, int, error) {
	if skipCount >= maxSkips {
		return time.Time{}, 0, policyErr(ReasonSkipLimit, "maximum skip limit reached for this batch")
	}

	others := pendingBatches(pendingSorted)
	filtered := others[:0]
	for _, s := range others {
		if s.batchID != batchID {
			filtered = append(filtered, s)
		}
	}
	others = filtered

	// First skip drops the batch behind five others, the second behind ten.
	target := 5
	if skipCount > 0 {
		target = 10
	}
	if target > len(others) {
		target = len(others)
	}

	var ts time.Time
	switch {
	case len(others) == 0:
		ts = now
	case target == 0:
		ts = others[0].key.Add(-slotGap)
	case target >= len(others):
		ts = others[len(others)-1].key.Add(slotGap)
	default:
		prev, next := others[target-1].key, others[target].key
		ts = prev.Add(next.Sub(prev) / 2)
	}

	return ts, target + 1, nil
}

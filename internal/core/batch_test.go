package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateBatchesGroupsAndTotals(t *testing.T) {
	a := queuedJob("a", "u1", t0, 4)
	a.BatchID = "b1"
	a.IsPaid = true
	a.ConfirmedPresence = true
	a.CostCents = 20

	b := queuedJob("b", "u1", t0.Add(time.Second), 6)
	b.BatchID = "b1"
	b.CostCents = 30

	loose := queuedJob("c", "u2", t0.Add(time.Minute), 1)

	views, individual := AggregateBatches([]*Job{loose, b, a})
	require.Len(t, views, 1)
	require.Len(t, individual, 1)

	v := views[0]
	assert.Equal(t, "b1", v.BatchID)
	assert.Len(t, v.Jobs, 2)
	assert.Equal(t, 10, v.TotalPages)
	assert.Equal(t, 50, v.TotalCostCents)
	assert.False(t, v.AllPaid)
	assert.False(t, v.AllConfirmed)
	assert.Equal(t, "c", individual[0].ID)
}

func TestAggregateBatchesAllPaidAndConfirmed(t *testing.T) {
	a := queuedJob("a", "u1", t0, 1)
	a.BatchID = "b1"
	a.IsPaid = true
	a.ConfirmedPresence = true

	b := queuedJob("b", "u1", t0.Add(time.Second), 1)
	b.BatchID = "b1"
	b.IsPaid = true
	b.ConfirmedPresence = true

	views, _ := AggregateBatches([]*Job{a, b})
	require.Len(t, views, 1)
	assert.True(t, views[0].AllPaid)
	assert.True(t, views[0].AllConfirmed)
}

func TestAggregateBatchesStatusPrefersPrinting(t *testing.T) {
	a := queuedJob("a", "u1", t0, 1)
	a.BatchID = "b1"
	a.Status = JobStatusCompleted

	b := queuedJob("b", "u1", t0.Add(time.Second), 1)
	b.BatchID = "b1"
	b.Status = JobStatusPrinting

	c := queuedJob("c", "u1", t0.Add(2*time.Second), 1)
	c.BatchID = "b1"

	views, _ := AggregateBatches([]*Job{a, b, c})
	require.Len(t, views, 1)
	assert.Equal(t, JobStatusPrinting, views[0].Status)
}

func TestAggregateBatchesLoneJobStaysIndividual(t *testing.T) {
	a := queuedJob("a", "u1", t0, 1)

	views, individual := AggregateBatches([]*Job{a})
	assert.Empty(t, views)
	require.Len(t, individual, 1)
}

func TestAggregateBatchesOrderedByQueueKey(t *testing.T) {
	a := queuedJob("a", "u1", t0.Add(time.Minute), 1)
	a.BatchID = "late"
	b := queuedJob("b", "u2", t0, 1)
	b.BatchID = "early"

	views, _ := AggregateBatches([]*Job{a, b})
	require.Len(t, views, 2)
	assert.Equal(t, "early", views[0].BatchID)
	assert.Equal(t, "late", views[1].BatchID)
}

func TestBatchQueueSummaryUsesEarliestPendingMember(t *testing.T) {
	a := queuedJob("a", "u1", t0, 10)
	b := queuedJob("b", "u1", t0.Add(time.Minute), 2)
	b.BatchID = "b1"
	c := queuedJob("c", "u1", t0.Add(2*time.Minute), 2)
	c.BatchID = "b1"

	entries := AnnotateQueue(SortQueue([]*Job{a, b, c}), 3)

	pos, wait := BatchQueueSummary(entries, "b1")
	assert.Equal(t, 2, pos)
	assert.Equal(t, 30, wait)
}

func TestBatchQueueSummaryZeroWhenNothingPending(t *testing.T) {
	a := queuedJob("a", "u1", t0, 1)
	a.BatchID = "b1"
	a.Status = JobStatusPrinting

	entries := AnnotateQueue(SortQueue([]*Job{a}), 3)

	pos, wait := BatchQueueSummary(entries, "b1")
	assert.Zero(t, pos)
	assert.Zero(t, wait)
}

package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printq/internal/core"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testJob(id, userID, printerID string) *core.Job {
	now := time.Now().UTC().Truncate(time.Second)
	return &core.Job{
		ID:                id,
		UserID:            userID,
		PrinterID:         printerID,
		FileRef:           "file-" + id,
		Status:            core.JobStatusPending,
		IsPaid:            true,
		PaymentMethod:     core.PaymentOnline,
		PaymentStatus:     core.PaymentStatusPaid,
		ConfirmedPresence: true,
		Sides:             core.SidesSingle,
		Color:             core.ColorBW,
		PageCount:         2,
		Copies:            1,
		CostCents:         10,
		QueueTimestamp:    &now,
		CreatedAt:         now,
	}
}

func TestJobStoreRoundTrip(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	job := testJob("j1", "u1", "p1")
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.UserID, got.UserID)
	assert.Equal(t, core.JobStatusPending, got.Status)
	assert.True(t, got.IsPaid)
	assert.True(t, got.ConfirmedPresence)
	require.NotNil(t, got.QueueTimestamp)
	assert.True(t, got.QueueTimestamp.Equal(*job.QueueTimestamp))
	assert.Nil(t, got.CompletedAt)
}

func TestGetJobNotFound(t *testing.T) {
	store := NewJobStore(testDB(t))

	_, err := store.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStartPrintingGuards(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	unpaid := testJob("unpaid", "u1", "p1")
	unpaid.IsPaid = false
	unpaid.PaymentStatus = core.PaymentStatusPending
	require.NoError(t, store.CreateJob(ctx, unpaid))

	ok, err := store.StartPrinting(ctx, "unpaid")
	require.NoError(t, err)
	assert.False(t, ok)

	first := testJob("first", "u1", "p1")
	require.NoError(t, store.CreateJob(ctx, first))

	ok, err = store.StartPrinting(ctx, "first")
	require.NoError(t, err)
	assert.True(t, ok)

	// Same printer is now busy.
	second := testJob("second", "u2", "p1")
	require.NoError(t, store.CreateJob(ctx, second))
	ok, err = store.StartPrinting(ctx, "second")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different printer is unaffected.
	elsewhere := testJob("elsewhere", "u3", "p2")
	require.NoError(t, store.CreateJob(ctx, elsewhere))
	ok, err = store.StartPrinting(ctx, "elsewhere")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompleteIfPrinting(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	job := testJob("j1", "u1", "p1")
	require.NoError(t, store.CreateJob(ctx, job))

	// Not printing yet.
	ok, err := store.CompleteIfPrinting(ctx, "j1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.StartPrinting(ctx, "j1")
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Second)
	ok, err = store.CompleteIfPrinting(ctx, "j1", at)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Second completion is a no-op.
	ok, err = store.CompleteIfPrinting(ctx, "j1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkBatchPaidCountsRows(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		j := testJob(id, "u1", "p1")
		j.BatchID = "b1"
		j.IsPaid = false
		j.PaymentStatus = core.PaymentStatusPending
		require.NoError(t, store.CreateJob(ctx, j))
	}
	paid := testJob("c", "u1", "p1")
	paid.BatchID = "b1"
	require.NoError(t, store.CreateJob(ctx, paid))

	n, err := store.MarkBatchPaid(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.MarkBatchPaid(ctx, "b1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplySkipUpdatesWholeBatch(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		j := testJob(id, "u1", "p1")
		j.BatchID = "b1"
		require.NoError(t, store.CreateJob(ctx, j))
	}
	outside := testJob("c", "u2", "p1")
	require.NoError(t, store.CreateJob(ctx, outside))

	ts := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	require.NoError(t, store.ApplySkip(ctx, "b1", ts))

	for _, id := range []string{"a", "b"} {
		got, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.QueueTimestamp)
		assert.True(t, got.QueueTimestamp.Equal(ts))
		assert.Equal(t, 1, got.SkipCount)
	}

	got, err := store.GetJob(ctx, "c")
	require.NoError(t, err)
	assert.Zero(t, got.SkipCount)
}

func TestConfirmPresenceOnlyListedJobs(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	a := testJob("a", "u1", "p1")
	a.ConfirmedPresence = false
	b := testJob("b", "u1", "p1")
	b.ConfirmedPresence = false
	require.NoError(t, store.CreateJob(ctx, a))
	require.NoError(t, store.CreateJob(ctx, b))

	require.NoError(t, store.ConfirmPresence(ctx, []string{"a"}, time.Now()))

	got, err := store.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.ConfirmedPresence)
	assert.NotNil(t, got.ConfirmationTime)

	got, err = store.GetJob(ctx, "b")
	require.NoError(t, err)
	assert.False(t, got.ConfirmedPresence)
}

func TestHealQueueTimestamps(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	broken := testJob("broken", "u1", "p1")
	broken.QueueTimestamp = nil
	require.NoError(t, store.CreateJob(ctx, broken))
	require.NoError(t, store.CreateJob(ctx, testJob("fine", "u2", "p1")))

	n, err := store.HealQueueTimestamps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetJob(ctx, "broken")
	require.NoError(t, err)
	require.NotNil(t, got.QueueTimestamp)
	assert.True(t, got.QueueTimestamp.Equal(got.CreatedAt))
}

func TestPurgeCollectedBefore(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	old := testJob("old", "u1", "p1")
	require.NoError(t, store.CreateJob(ctx, old))
	require.NoError(t, store.SetStatus(ctx, "old", core.JobStatusPrinting))
	_, err := store.CompleteIfPrinting(ctx, "old", time.Now().Add(-60*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.MarkCollected(ctx, "old", time.Now().Add(-60*24*time.Hour)))

	fresh := testJob("fresh", "u1", "p1")
	require.NoError(t, store.CreateJob(ctx, fresh))

	n, err := store.PurgeCollectedBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetJob(ctx, "old")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetJob(ctx, "fresh")
	assert.NoError(t, err)
}

func TestDeleteBatch(t *testing.T) {
	store := NewJobStore(testDB(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		j := testJob(id, "u1", "p1")
		j.BatchID = "b1"
		require.NoError(t, store.CreateJob(ctx, j))
	}

	n, err := store.DeleteBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrinterStoreCRUD(t *testing.T) {
	store := NewPrinterStore(testDB(t))
	ctx := context.Background()

	p := &core.Printer{ID: "p1", Name: "Library", Location: "1F", Status: core.PrinterOnline}
	require.NoError(t, store.CreatePrinter(ctx, p))

	got, err := store.GetPrinter(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Library", got.Name)

	got.Status = core.PrinterOffline
	require.NoError(t, store.UpdatePrinter(ctx, got))

	list, err := store.ListPrinters(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, core.PrinterOffline, list[0].Status)

	require.NoError(t, store.DeletePrinter(ctx, "p1"))
	assert.ErrorIs(t, store.DeletePrinter(ctx, "p1"), core.ErrNotFound)
}

func TestSettingStoreUpsert(t *testing.T) {
	store := NewSettingStore(testDB(t))
	ctx := context.Background()

	_, err := store.GetSetting(ctx, "jwt_secret")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, store.SetSetting(ctx, "jwt_secret", "one"))
	require.NoError(t, store.SetSetting(ctx, "jwt_secret", "two"))

	got, err := store.GetSetting(ctx, "jwt_secret")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Value)
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, &PaymentSession{
		ID: "sess_1", BatchID: "b1", AmountCents: 150, Status: SessionCreated,
	}))

	got, err := store.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, SessionCreated, got.Status)

	require.NoError(t, store.UpdateSessionStatus(ctx, "sess_1", SessionPaid))
	got, err = store.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, SessionPaid, got.Status)

	_, err = store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

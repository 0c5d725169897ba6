package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"printq/internal/core"
)

// JobStore is the sqlite implementation of core.JobStore.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(conn *sql.DB) *JobStore {
	return &JobStore{db: conn}
}

func (s *JobStore) CreateJob(ctx context.Context, j *core.Job) error {
	_, err := s.db.ExecContext(ctx, insertJob,
		j.ID, j.UserID, j.PrinterID, j.FileRef, j.BatchID, j.Status,
		boolToInt(j.IsPaid), j.PaymentMethod, j.PaymentStatus,
		boolToInt(j.ConfirmedPresence), j.ConfirmationTime,
		j.Sides, j.Color, j.PageCount, j.Copies, j.CostCents,
		j.SkipCount, j.QueueTimestamp, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*core.Job, error) {
	row := s.db.QueryRowContext(ctx, getJobByID, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *JobStore) ListJobs(ctx context.Context) ([]*core.Job, error) {
	return s.queryJobs(ctx, listJobs)
}

func (s *JobStore) ListJobsByStatus(ctx context.Context, statuses ...core.JobStatus) ([]*core.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query := `SELECT` + jobColumns + `
		FROM jobs WHERE status IN (` + placeholders + `) ORDER BY created_at ASC`

	args := make([]interface{}, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return s.queryJobs(ctx, query, args...)
}

func (s *JobStore) ListUserJobs(ctx context.Context, userID string) ([]*core.Job, error) {
	return s.queryJobs(ctx, listUserJobs, userID)
}

func (s *JobStore) ListBatchJobs(ctx context.Context, batchID string) ([]*core.Job, error) {
	return s.queryJobs(ctx, listBatchJobs, batchID)
}

func (s *JobStore) StartPrinting(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, startPrinting, id)
	if err != nil {
		return false, fmt.Errorf("failed to start printing: %w", err)
	}
	return oneRowChanged(result)
}

func (s *JobStore) CompleteIfPrinting(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, completeIfPrinting, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	return oneRowChanged(result)
}

func (s *JobStore) SetStatus(ctx context.Context, id string, status core.JobStatus) error {
	_, err := s.db.ExecContext(ctx, setJobStatus, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

func (s *JobStore) MarkCollected(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, markJobCollected, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark job collected: %w", err)
	}
	return nil
}

func (s *JobStore) MarkPaid(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, markJobPaid, id)
	if err != nil {
		return fmt.Errorf("failed to mark job paid: %w", err)
	}
	return nil
}

func (s *JobStore) MarkBatchPaid(ctx context.Context, batchID string) (int, error) {
	return s.execCount(ctx, markBatchPaid, batchID)
}

func (s *JobStore) MarkUserPaid(ctx context.Context, userID string) (int, error) {
	return s.execCount(ctx, markUserPaid, userID)
}

func (s *JobStore) SettleBatchPayment(ctx context.Context, batchID string) (int, error) {
	return s.execCount(ctx, settleBatchPayment, batchID)
}

func (s *JobStore) ConfirmPresence(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `UPDATE jobs SET confirmed_presence = 1, confirmation_time = ?
		WHERE id IN (` + placeholders + `) AND confirmed_presence = 0`

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, at)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to confirm presence: %w", err)
	}
	return nil
}

func (s *JobStore) ReassignPrinter(ctx context.Context, id, printerID string) error {
	_, err := s.db.ExecContext(ctx, reassignPrinter, printerID, id)
	if err != nil {
		return fmt.Errorf("failed to reassign printer: %w", err)
	}
	return nil
}

// ApplySkip rewrites the whole batch's ordering key in one statement, so a
// batch can never end up split across two queue positions.
func (s *JobStore) ApplySkip(ctx context.Context, batchID string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, applySkip, ts, batchID)
	if err != nil {
		return fmt.Errorf("failed to apply skip: %w", err)
	}
	return nil
}

func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, deleteJob, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *JobStore) DeleteBatch(ctx context.Context, batchID string) (int, error) {
	return s.execCount(ctx, deleteBatch, batchID)
}

func (s *JobStore) HealQueueTimestamps(ctx context.Context) (int, error) {
	return s.execCount(ctx, healQueueTimestamps)
}

func (s *JobStore) PurgeCollectedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.execCount(ctx, purgeCollected, cutoff)
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*core.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*core.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *JobStore) execCount(ctx context.Context, query string, args ...interface{}) (int, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*core.Job, error) {
	j := &core.Job{}
	var isPaid, confirmed int
	var confirmationTime, queueTimestamp, completedAt, collectedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.UserID, &j.PrinterID, &j.FileRef, &j.BatchID, &j.Status,
		&isPaid, &j.PaymentMethod, &j.PaymentStatus,
		&confirmed, &confirmationTime,
		&j.Sides, &j.Color, &j.PageCount, &j.Copies, &j.CostCents,
		&j.SkipCount, &queueTimestamp, &j.CreatedAt, &completedAt, &collectedAt)
	if err != nil {
		return nil, err
	}

	j.IsPaid = isPaid == 1
	j.ConfirmedPresence = confirmed == 1
	if confirmationTime.Valid {
		j.ConfirmationTime = &confirmationTime.Time
	}
	if queueTimestamp.Valid {
		j.QueueTimestamp = &queueTimestamp.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	if collectedAt.Valid {
		j.CollectedAt = &collectedAt.Time
	}
	return j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func oneRowChanged(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// PrinterStore is the sqlite implementation of core.PrinterStore plus the
// admin CRUD surface.
type PrinterStore struct {
	db *sql.DB
}

func NewPrinterStore(conn *sql.DB) *PrinterStore {
	return &PrinterStore{db: conn}
}

func (s *PrinterStore) CreatePrinter(ctx context.Context, p *core.Printer) error {
	_, err := s.db.ExecContext(ctx, insertPrinter, p.ID, p.Name, p.Location, p.Status)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	return nil
}

func (s *PrinterStore) GetPrinter(ctx context.Context, id string) (*core.Printer, error) {
	p := &core.Printer{}
	err := s.db.QueryRowContext(ctx, getPrinterByID, id).Scan(
		&p.ID, &p.Name, &p.Location, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return p, nil
}

func (s *PrinterStore) ListPrinters(ctx context.Context) ([]*core.Printer, error) {
	rows, err := s.db.QueryContext(ctx, listPrinters)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	var printers []*core.Printer
	for rows.Next() {
		p := &core.Printer{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Location, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

func (s *PrinterStore) UpdatePrinter(ctx context.Context, p *core.Printer) error {
	result, err := s.db.ExecContext(ctx, updatePrinter, p.Name, p.Location, p.Status, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}
	changed, err := oneRowChanged(result)
	if err != nil {
		return err
	}
	if !changed {
		return core.ErrNotFound
	}
	return nil
}

func (s *PrinterStore) DeletePrinter(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, deletePrinter, id)
	if err != nil {
		return fmt.Errorf("failed to delete printer: %w", err)
	}
	changed, err := oneRowChanged(result)
	if err != nil {
		return err
	}
	if !changed {
		return core.ErrNotFound
	}
	return nil
}

type UserStore struct {
	db *sql.DB
}

func NewUserStore(conn *sql.DB) *UserStore {
	return &UserStore{db: conn}
}

func (s *UserStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, insertUser, u.ID, u.Name, u.Email, u.PasswordHash, u.Role)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx, getUserByEmail, email).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetUser(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx, getUserByID, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

type SettingStore struct {
	db *sql.DB
}

func NewSettingStore(conn *sql.DB) *SettingStore {
	return &SettingStore{db: conn}
}

func (s *SettingStore) GetSetting(ctx context.Context, key string) (*Setting, error) {
	setting := &Setting{}
	err := s.db.QueryRowContext(ctx, getSetting, key).Scan(
		&setting.Key, &setting.Value, &setting.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return setting, nil
}

func (s *SettingStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, setSetting, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(conn *sql.DB) *SessionStore {
	return &SessionStore{db: conn}
}

func (s *SessionStore) CreateSession(ctx context.Context, sess *PaymentSession) error {
	_, err := s.db.ExecContext(ctx, insertSession, sess.ID, sess.BatchID, sess.AmountCents, sess.Status)
	if err != nil {
		return fmt.Errorf("failed to create payment session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*PaymentSession, error) {
	sess := &PaymentSession{}
	err := s.db.QueryRowContext(ctx, getSessionByID, id).Scan(
		&sess.ID, &sess.BatchID, &sess.AmountCents, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) UpdateSessionStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, updateSessionStatus, status, id)
	if err != nil {
		return fmt.Errorf("failed to update payment session: %w", err)
	}
	return nil
}

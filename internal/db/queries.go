package db

const (
	insertJob = `
		INSERT INTO jobs (
			id, user_id, printer_id, file_ref, batch_id, status,
			is_paid, payment_method, payment_status,
			confirmed_presence, confirmation_time,
			sides, color, page_count, copies, cost_cents,
			skip_count, queue_timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	jobColumns = `
		id, user_id, printer_id, file_ref, batch_id, status,
		is_paid, payment_method, payment_status,
		confirmed_presence, confirmation_time,
		sides, color, page_count, copies, cost_cents,
		skip_count, queue_timestamp, created_at, completed_at, collected_at`

	getJobByID = `SELECT` + jobColumns + `
		FROM jobs WHERE id = ?`

	listJobs = `SELECT` + jobColumns + `
		FROM jobs ORDER BY created_at ASC`

	listUserJobs = `SELECT` + jobColumns + `
		FROM jobs WHERE user_id = ? ORDER BY created_at ASC`

	listBatchJobs = `SELECT` + jobColumns + `
		FROM jobs WHERE batch_id = ? ORDER BY created_at ASC`

	// The NOT EXISTS clause is the printer-exclusivity guard: the update
	// loses when any job on the same printer is already printing.
	startPrinting = `
		UPDATE jobs SET status = 'printing'
		WHERE id = ? AND status = 'pending' AND is_paid = 1
		AND NOT EXISTS (
			SELECT 1 FROM jobs p
			WHERE p.printer_id = jobs.printer_id AND p.status = 'printing'
		)`

	completeIfPrinting = `
		UPDATE jobs SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'printing'`

	setJobStatus = `UPDATE jobs SET status = ? WHERE id = ?`

	markJobCollected = `UPDATE jobs SET status = 'collected', collected_at = ? WHERE id = ?`

	markJobPaid = `UPDATE jobs SET is_paid = 1, payment_status = 'paid' WHERE id = ?`

	markBatchPaid = `
		UPDATE jobs SET is_paid = 1, payment_status = 'paid'
		WHERE batch_id = ? AND status = 'pending' AND is_paid = 0`

	markUserPaid = `
		UPDATE jobs SET is_paid = 1, payment_status = 'paid'
		WHERE user_id = ? AND status = 'pending' AND is_paid = 0`

	settleBatchPayment = `
		UPDATE jobs SET is_paid = 1, payment_status = 'paid'
		WHERE batch_id = ? AND is_paid = 0`

	reassignPrinter = `UPDATE jobs SET printer_id = ? WHERE id = ?`

	applySkip = `
		UPDATE jobs SET queue_timestamp = ?, skip_count = skip_count + 1
		WHERE batch_id = ?`

	deleteJob = `DELETE FROM jobs WHERE id = ?`

	deleteBatch = `DELETE FROM jobs WHERE batch_id = ?`

	healQueueTimestamps = `
		UPDATE jobs SET queue_timestamp = created_at
		WHERE queue_timestamp IS NULL`

	purgeCollected = `DELETE FROM jobs WHERE status = 'collected' AND collected_at < ?`

	insertPrinter = `
		INSERT INTO printers (id, name, location, status) VALUES (?, ?, ?, ?)`

	getPrinterByID = `
		SELECT id, name, location, status, created_at, updated_at
		FROM printers WHERE id = ?`

	listPrinters = `
		SELECT id, name, location, status, created_at, updated_at
		FROM printers ORDER BY name ASC`

	updatePrinter = `
		UPDATE printers SET name = ?, location = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	deletePrinter = `DELETE FROM printers WHERE id = ?`

	insertUser = `
		INSERT INTO users (id, name, email, password_hash, role) VALUES (?, ?, ?, ?, ?)`

	getUserByEmail = `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE email = ?`

	getUserByID = `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE id = ?`

	getSetting = `SELECT key, value, updated_at FROM settings WHERE key = ?`

	setSetting = `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

	insertSession = `
		INSERT INTO payment_sessions (id, batch_id, amount_cents, status) VALUES (?, ?, ?, ?)`

	getSessionByID = `
		SELECT id, batch_id, amount_cents, status, created_at, updated_at
		FROM payment_sessions WHERE id = ?`

	updateSessionStatus = `
		UPDATE payment_sessions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
)

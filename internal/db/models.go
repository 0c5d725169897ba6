package db

import "time"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentSession mirrors a checkout session at the external gateway so the
// webhook and the on-demand verify path stay idempotent against each other.
type PaymentSession struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batch_id"`
	AmountCents int       `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	SessionCreated = "created"
	SessionPaid    = "paid"
	SessionFailed  = "failed"
)

package models

import (
	"time"
)

// TopUpRequest is a pending credit to a seller. AppliedAt is the
// application state: null means pending, non-null means the request was
// applied exactly once and is terminal.
type TopUpRequest struct {
	ID             int64      `json:"id" db:"id"`
	SellerID       int64      `json:"seller_id" db:"seller_id"`
	Amount         int64      `json:"amount" db:"amount"` // minor units, > 0
	IdempotencyKey string     `json:"idempotency_key" db:"idempotency_key"`
	Approved       bool       `json:"approved" db:"approved"`
	AppliedAt      *time.Time `json:"applied_at,omitempty" db:"applied_at"`
	ApprovedBy     *string    `json:"approved_by,omitempty" db:"approved_by"`
	Notes          *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

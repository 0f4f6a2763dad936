package models

import (
	"time"
)

// PhoneNumber is the subject of a sale. Rows are created lazily on first
// charge; the number column is unique.
type PhoneNumber struct {
	ID            int64      `json:"id" db:"id"`
	Number        string     `json:"number" db:"number"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	LastChargedAt *time.Time `json:"last_charged_at,omitempty" db:"last_charged_at"`
}

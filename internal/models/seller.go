package models

import (
	"time"
)

// Seller holds a non-negative credit balance in minor currency units.
// Balance and version are mutated only by the ledger inside a row-locked
// transaction; version increments by exactly 1 per successful mutation.
type Seller struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Balance   int64     `json:"balance" db:"balance"` // minor units, >= 0
	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

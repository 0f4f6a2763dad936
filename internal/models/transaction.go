package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type TransactionType string

const (
	TxTopUp  TransactionType = "TOPUP"
	TxSale   TransactionType = "SALE"
	TxAdjust TransactionType = "ADJUST"
)

// Metadata is free-form JSON stored in a JSONB column.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("metadata: cannot scan %T", src)
	}
	return json.Unmarshal(b, m)
}

// Transaction is an append-only ledger entry. Amount is signed: positive
// for credits, negative for debits. BalanceAfter snapshots the seller
// balance immediately after the entry so auditors can reconcile without
// replaying prior history.
type Transaction struct {
	ID           int64           `json:"id" db:"id"`
	SellerID     int64           `json:"seller_id" db:"seller_id"`
	Type         TransactionType `json:"tx_type" db:"tx_type"`
	Amount       int64           `json:"amount" db:"amount"`
	BalanceAfter int64           `json:"balance_after" db:"balance_after"`
	PhoneID      *int64          `json:"phone_id,omitempty" db:"phone_id"`
	Reference    *string         `json:"reference,omitempty" db:"reference"`
	Metadata     Metadata        `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

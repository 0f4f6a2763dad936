package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chargebox/backend/internal/models"
)

// lockSeller loads a seller row under an exclusive row lock. The lock is
// held until the surrounding transaction commits or rolls back and is the
// sole serialization point for balance mutations on that seller.
func lockSeller(ctx context.Context, tx *sql.Tx, sellerID int64) (*models.Seller, error) {
	var s models.Seller
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, balance, version, created_at
		  FROM sellers
		 WHERE id = $1
		 FOR UPDATE`, sellerID).
		Scan(&s.ID, &s.Name, &s.Balance, &s.Version, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSellerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// creditSeller adds amount to a seller the caller has already locked with
// lockSeller in the same transaction. The struct is updated in place so the
// new balance can be recorded as balance_after by the log append.
func creditSeller(ctx context.Context, tx *sql.Tx, s *models.Seller, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return writeBalance(ctx, tx, s, s.Balance+amount)
}

// debitSeller subtracts amount from a locked seller, refusing to take the
// balance negative. Same locking requirement as creditSeller.
func debitSeller(ctx context.Context, tx *sql.Tx, s *models.Seller, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if s.Balance-amount < 0 {
		return ErrInsufficientBalance
	}
	return writeBalance(ctx, tx, s, s.Balance-amount)
}

func writeBalance(ctx context.Context, tx *sql.Tx, s *models.Seller, newBalance int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE sellers
		   SET balance = $1, version = version + 1
		 WHERE id = $2 AND version = $3`,
		newBalance, s.ID, s.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// The row lock makes a version mismatch impossible unless a caller
	// skipped lockSeller; treat it as a hard failure rather than retrying.
	if n != 1 {
		return fmt.Errorf("seller %d: version check failed (version %d)", s.ID, s.Version)
	}
	s.Balance = newBalance
	s.Version++
	return nil
}

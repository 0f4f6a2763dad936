// Package ledger is the balance-mutation core: two operations (top-up
// apply, sale charge) that each run as a single atomic unit of work against
// Postgres, serialized per seller by a row-level exclusive lock.
//
// Lock ordering is always "specific resource row first, then its owning
// seller row": ApplyTopUp locks the top-up request before the seller, and
// SellCharge locks only the seller, so no cycle between the two exists. No
// operation ever holds two seller locks.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/chargebox/backend/internal/models"
)

// Service exposes the balance engine. All methods are safe for unbounded
// concurrent use; operations on different sellers proceed in parallel while
// operations on the same seller are strictly ordered by the row lock.
type Service struct {
	db *sql.DB
}

func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateTopUpRequest registers a pending top-up, idempotent on the
// idempotency key. A reused key returns the existing request with
// created=false and changes nothing.
func (s *Service) CreateTopUpRequest(ctx context.Context, sellerID, amount int64, idempotencyKey, notes string) (requestID int64, created bool, err error) {
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	var notesArg *string
	if notes != "" {
		notesArg = &notes
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO topup_requests (seller_id, amount, idempotency_key, notes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		sellerID, amount, idempotencyKey, notesArg).Scan(&requestID)
	if err == nil {
		return requestID, true, nil
	}
	if isForeignKeyViolation(err) {
		return 0, false, ErrSellerNotFound
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	// Conflict path: another caller already created this key; hand back its
	// request instead of failing.
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM topup_requests WHERE idempotency_key = $1`,
		idempotencyKey).Scan(&requestID)
	if err != nil {
		return 0, false, err
	}
	return requestID, false, nil
}

// ApplyTopUp credits a seller by the amount of a pending top-up request,
// exactly once. Concurrent appliers of the same request serialize on the
// request row lock: one wins, the rest observe applied_at set and fail with
// ErrAlreadyApplied leaving no trace.
func (s *Service) ApplyTopUp(ctx context.Context, requestID int64, approver string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	req, err := lockTopUpRequest(ctx, tx, requestID)
	if err != nil {
		return 0, err
	}

	newBalance, err := ensureOnce(FailOnDuplicate,
		func() (bool, error) { return req.AppliedAt != nil, nil },
		nil,
		func() (int64, error) {
			seller, err := lockSeller(ctx, tx, req.SellerID)
			if err != nil {
				return 0, err
			}
			if err := creditSeller(ctx, tx, seller, req.Amount); err != nil {
				return 0, err
			}

			ref := "topup:" + req.IdempotencyKey
			var meta models.Metadata
			if approver != "" {
				meta = models.Metadata{"applied_by": approver}
			}
			entry := &models.Transaction{
				SellerID:     seller.ID,
				Type:         models.TxTopUp,
				Amount:       req.Amount,
				BalanceAfter: seller.Balance,
				Reference:    &ref,
				Metadata:     meta,
			}
			if err := appendEntry(ctx, tx, entry); err != nil {
				return 0, err
			}

			if err := markApplied(ctx, tx, req.ID, approver); err != nil {
				return 0, err
			}
			return seller.Balance, nil
		})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// SellCharge debits a seller for a charge sold to a phone number and
// appends a SALE entry. A reference that already exists in the log
// short-circuits before any mutation and returns the current balance, so
// retries with the same reference never double-debit.
func (s *Service) SellCharge(ctx context.Context, sellerID int64, phoneNumber string, amount int64, reference string, metadata models.Metadata) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	seller, err := lockSeller(ctx, tx, sellerID)
	if err != nil {
		return 0, err
	}

	seen := func() (bool, error) {
		if reference == "" {
			return false, nil
		}
		return referenceExists(ctx, tx, reference)
	}
	newBalance, err := ensureOnce(ReturnPriorOnDuplicate, seen,
		func() (int64, error) { return seller.Balance, nil },
		func() (int64, error) {
			if err := debitSeller(ctx, tx, seller, amount); err != nil {
				return 0, err
			}

			phone, err := getOrCreatePhone(ctx, tx, phoneNumber)
			if err != nil {
				return 0, err
			}

			ref := reference
			if ref == "" {
				ref = fmt.Sprintf("sale:%s:%s", phoneNumber, uuid.NewString())
			}
			meta := models.Metadata{"phone_number": phoneNumber}
			for k, v := range metadata {
				meta[k] = v
			}
			entry := &models.Transaction{
				SellerID:     seller.ID,
				Type:         models.TxSale,
				Amount:       -amount,
				BalanceAfter: seller.Balance,
				PhoneID:      &phone.ID,
				Reference:    &ref,
				Metadata:     meta,
			}
			if err := appendEntry(ctx, tx, entry); err != nil {
				return 0, err
			}

			if err := touchPhone(ctx, tx, phone.ID); err != nil {
				return 0, err
			}
			return seller.Balance, nil
		})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// GetBalance reads a seller's current balance without taking the row lock.
func (s *Service) GetBalance(ctx context.Context, sellerID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM sellers WHERE id = $1`, sellerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSellerNotFound
	}
	return balance, err
}

func lockTopUpRequest(ctx context.Context, tx *sql.Tx, requestID int64) (*models.TopUpRequest, error) {
	var req models.TopUpRequest
	err := tx.QueryRowContext(ctx, `
		SELECT id, seller_id, amount, idempotency_key, approved, applied_at, approved_by, notes, created_at
		  FROM topup_requests
		 WHERE id = $1
		 FOR UPDATE`, requestID).
		Scan(&req.ID, &req.SellerID, &req.Amount, &req.IdempotencyKey, &req.Approved,
			&req.AppliedAt, &req.ApprovedBy, &req.Notes, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTopUpNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func markApplied(ctx context.Context, tx *sql.Tx, requestID int64, approver string) error {
	var approverArg *string
	if approver != "" {
		approverArg = &approver
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE topup_requests
		   SET applied_at = now(), approved = TRUE, approved_by = COALESCE($1, approved_by)
		 WHERE id = $2`,
		approverArg, requestID)
	return err
}

// getOrCreatePhone resolves the phone row for a number, creating it on
// first sale. Two concurrent first-creators resolve to one row: the loser's
// insert hits the unique constraint (no row returned) and re-reads the
// winner's row.
func getOrCreatePhone(ctx context.Context, tx *sql.Tx, number string) (*models.PhoneNumber, error) {
	var p models.PhoneNumber
	p.Number = number
	err := tx.QueryRowContext(ctx, `
		INSERT INTO phone_numbers (number)
		VALUES ($1)
		ON CONFLICT (number) DO NOTHING
		RETURNING id`, number).Scan(&p.ID)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM phone_numbers WHERE number = $1`, number).Scan(&p.ID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func touchPhone(ctx context.Context, tx *sql.Tx, phoneID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE phone_numbers SET last_charged_at = now() WHERE id = $1`, phoneID)
	return err
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

package ledger

import (
	"context"
	"database/sql"

	"github.com/chargebox/backend/internal/models"
)

// appendEntry writes one immutable ledger row. It runs only inside the
// transaction that performed the balance mutation it records, so the entry
// and the mutation commit or roll back together. Nothing in this package
// updates or deletes transactions rows.
func appendEntry(ctx context.Context, tx *sql.Tx, e *models.Transaction) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO transactions (seller_id, tx_type, amount, balance_after, phone_id, reference, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		e.SellerID, e.Type, e.Amount, e.BalanceAfter, e.PhoneID, e.Reference, e.Metadata).
		Scan(&e.ID, &e.CreatedAt)
}

// referenceExists reports whether a ledger entry already carries the given
// idempotency reference. Evaluated under the seller row lock so a
// concurrent duplicate blocks until the first writer commits.
func referenceExists(ctx context.Context, tx *sql.Tx, reference string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE reference = $1)`,
		reference).Scan(&exists)
	return exists, err
}

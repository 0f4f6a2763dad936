package services

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chargebox/backend/internal/models"
)

// TransactionService serves the read-only audit view over the ledger. The
// transactions table is append-only; nothing here mutates it.
type TransactionService struct {
	db *sql.DB
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{db: db}
}

// ListTransactions returns ledger entries, newest first
// @Summary List ledger entries
// @Tags transactions
// @Produce json
// @Param seller_id query int false "Filter by seller"
// @Param type query string false "Filter by type (TOPUP, SALE, ADJUST)"
// @Router /transactions [get]
func (s *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	query := `
		SELECT id, seller_id, tx_type, amount, balance_after, phone_id, reference, metadata, created_at
		  FROM transactions`
	args := []any{}

	where := ""
	if v := r.URL.Query().Get("seller_id"); v != "" {
		sellerID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			SendErrorResponse(w, "Invalid seller_id", http.StatusBadRequest, nil)
			return
		}
		args = append(args, sellerID)
		where = fmt.Sprintf(" WHERE seller_id = $%d", len(args))
	}
	if v := r.URL.Query().Get("type"); v != "" {
		t := models.TransactionType(v)
		if t != models.TxTopUp && t != models.TxSale && t != models.TxAdjust {
			SendErrorResponse(w, "Invalid type", http.StatusBadRequest, nil)
			return
		}
		args = append(args, v)
		if where == "" {
			where = fmt.Sprintf(" WHERE tx_type = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND tx_type = $%d", len(args))
		}
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query += where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		slog.Error("transaction list failed", "error", err)
		SendErrorResponse(w, "Failed to list transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.SellerID, &tx.Type, &tx.Amount, &tx.BalanceAfter,
			&tx.PhoneID, &tx.Reference, &tx.Metadata, &tx.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to list transactions", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list transactions", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"page":      page,
		"page_size": pageSize,
		"results":   transactions,
	})
}

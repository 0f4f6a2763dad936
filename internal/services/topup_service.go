package services

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chargebox/backend/internal/ledger"
	"github.com/chargebox/backend/internal/metrics"
	"github.com/chargebox/backend/internal/middleware"
	"github.com/chargebox/backend/internal/models"
)

// TopUpService serves top-up request creation and application.
type TopUpService struct {
	db        *sql.DB
	ledger    *ledger.Service
	validator *ValidationHelper
}

func NewTopUpService(db *sql.DB, l *ledger.Service) *TopUpService {
	return &TopUpService{db: db, ledger: l, validator: NewValidationHelper()}
}

type createTopUpRequest struct {
	SellerID       int64  `json:"seller_id" validate:"required,gt=0"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=255"`
	Notes          string `json:"notes"`
}

// CreateTopUp registers a pending top-up request, idempotent on the key
// @Summary Create a top-up request
// @Tags topups
// @Accept json
// @Produce json
// @Router /topups [post]
func (s *TopUpService) CreateTopUp(w http.ResponseWriter, r *http.Request) {
	var req createTopUpRequest
	if err := DecodeJSON(r, w, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	requestID, created, err := s.ledger.CreateTopUpRequest(r.Context(), req.SellerID, req.Amount, req.IdempotencyKey, req.Notes)
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		SendErrorResponse(w, "Amount must be positive", http.StatusBadRequest, nil)
		return
	case errors.Is(err, ledger.ErrSellerNotFound):
		SendErrorResponse(w, "Seller not found", http.StatusNotFound, nil)
		return
	case err != nil:
		slog.Error("top-up create failed", "seller_id", req.SellerID, "error", err)
		SendErrorResponse(w, "Failed to create top-up request", http.StatusInternalServerError, nil)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	metrics.OperationsTotal.WithLabelValues("topup_create").Inc()
	WriteJSON(w, status, map[string]any{
		"request_id": requestID,
		"created":    created,
	})
}

// ApplyTopUp applies a pending request exactly once (admin only)
// @Summary Apply a top-up request
// @Tags topups
// @Produce json
// @Router /topups/{topupId}/apply [post]
func (s *TopUpService) ApplyTopUp(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "topupId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid top-up id", http.StatusBadRequest, nil)
		return
	}

	approver := middleware.Approver(r.Context())
	newBalance, err := s.ledger.ApplyTopUp(r.Context(), id, approver)
	switch {
	case errors.Is(err, ledger.ErrAlreadyApplied):
		metrics.OperationsFailed.WithLabelValues("topup_apply", "already_applied").Inc()
		SendErrorResponse(w, "Already applied", http.StatusBadRequest, nil)
		return
	case errors.Is(err, ledger.ErrTopUpNotFound), errors.Is(err, ledger.ErrSellerNotFound):
		SendErrorResponse(w, "Top-up request not found", http.StatusNotFound, nil)
		return
	case err != nil:
		slog.Error("top-up apply failed", "topup_id", id, "error", err)
		SendErrorResponse(w, "Failed to apply top-up", http.StatusInternalServerError, nil)
		return
	}

	var sellerID int64
	if err := s.db.QueryRowContext(r.Context(),
		`SELECT seller_id FROM topup_requests WHERE id = $1`, id).Scan(&sellerID); err != nil {
		slog.Error("top-up seller lookup failed", "topup_id", id, "error", err)
	}

	metrics.OperationsTotal.WithLabelValues("topup_apply").Inc()
	slog.Info("top-up applied", "topup_id", id, "seller_id", sellerID, "approver", approver, "new_balance", newBalance)
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "applied",
		"seller_id":   sellerID,
		"new_balance": newBalance,
	})
}

// GetTopUp returns one top-up request
// @Summary Get a top-up request
// @Tags topups
// @Produce json
// @Router /topups/{topupId} [get]
func (s *TopUpService) GetTopUp(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "topupId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid top-up id", http.StatusBadRequest, nil)
		return
	}

	req, err := s.scanTopUp(r, `
		SELECT id, seller_id, amount, idempotency_key, approved, applied_at, approved_by, notes, created_at
		  FROM topup_requests
		 WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		SendErrorResponse(w, "Top-up request not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch top-up request", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, req)
}

// ListTopUps returns top-up requests, newest first
// @Summary List top-up requests
// @Tags topups
// @Produce json
// @Router /topups [get]
func (s *TopUpService) ListTopUps(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, seller_id, amount, idempotency_key, approved, applied_at, approved_by, notes, created_at
		  FROM topup_requests
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, pageSize, (page-1)*pageSize)
	if err != nil {
		slog.Error("top-up list failed", "error", err)
		SendErrorResponse(w, "Failed to list top-up requests", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	requests := []models.TopUpRequest{}
	for rows.Next() {
		var req models.TopUpRequest
		if err := rows.Scan(&req.ID, &req.SellerID, &req.Amount, &req.IdempotencyKey, &req.Approved,
			&req.AppliedAt, &req.ApprovedBy, &req.Notes, &req.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to list top-up requests", http.StatusInternalServerError, nil)
			return
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list top-up requests", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"page":      page,
		"page_size": pageSize,
		"results":   requests,
	})
}

func (s *TopUpService) scanTopUp(r *http.Request, query string, args ...any) (models.TopUpRequest, error) {
	var req models.TopUpRequest
	err := s.db.QueryRowContext(r.Context(), query, args...).
		Scan(&req.ID, &req.SellerID, &req.Amount, &req.IdempotencyKey, &req.Approved,
			&req.AppliedAt, &req.ApprovedBy, &req.Notes, &req.CreatedAt)
	return req, err
}

package services

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/chargebox/backend/internal/ledger"
	"github.com/chargebox/backend/internal/metrics"
	"github.com/chargebox/backend/internal/models"
	"github.com/chargebox/backend/internal/queue"
)

// SaleService serves charge sales: a synchronous endpoint calling the core
// directly, and a fire-and-forget endpoint handing the job to the queue.
type SaleService struct {
	ledger    *ledger.Service
	producer  *queue.Producer
	validator *ValidationHelper
}

// NewSaleService wires the sale endpoints. producer may be nil when Redis
// is unavailable; the async endpoint then responds 503.
func NewSaleService(l *ledger.Service, producer *queue.Producer) *SaleService {
	return &SaleService{ledger: l, producer: producer, validator: NewValidationHelper()}
}

type sellChargeRequest struct {
	SellerID    int64           `json:"seller_id" validate:"required,gt=0"`
	PhoneNumber string          `json:"phone_number" validate:"required,max=32"`
	Amount      int64           `json:"amount" validate:"required,gt=0"`
	Reference   string          `json:"reference" validate:"max=255"`
	Metadata    models.Metadata `json:"metadata"`
}

// SellCharge debits a seller for a charge sold to a phone number
// @Summary Sell a charge
// @Tags sales
// @Accept json
// @Produce json
// @Router /sales [post]
func (s *SaleService) SellCharge(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	newBalance, err := s.ledger.SellCharge(r.Context(), req.SellerID, req.PhoneNumber, req.Amount, req.Reference, req.Metadata)
	if !s.writeSaleError(w, req, err) {
		return
	}

	metrics.OperationsTotal.WithLabelValues("sell_charge").Inc()
	WriteJSON(w, http.StatusOK, map[string]any{
		"seller_id":   req.SellerID,
		"new_balance": newBalance,
	})
}

// SellChargeAsync queues a charge sale for background application
// @Summary Queue a charge sale
// @Tags sales
// @Accept json
// @Produce json
// @Router /sales/async [post]
func (s *SaleService) SellChargeAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	if s.producer == nil {
		SendErrorResponse(w, "Queue unavailable", http.StatusServiceUnavailable, nil)
		return
	}

	// Read-only pre-check so obviously doomed jobs are rejected at the
	// door; the authoritative check still runs under the row lock when the
	// worker applies the job.
	balance, err := s.ledger.GetBalance(r.Context(), req.SellerID)
	if !s.writeSaleError(w, req, err) {
		return
	}
	if balance < req.Amount {
		metrics.OperationsFailed.WithLabelValues("sell_charge", "insufficient_balance").Inc()
		SendErrorResponse(w, "Insufficient balance", http.StatusPaymentRequired, nil)
		return
	}

	jobID, err := s.producer.Enqueue(r.Context(), queue.SaleJob{
		SellerID:    req.SellerID,
		PhoneNumber: req.PhoneNumber,
		Amount:      req.Amount,
		Reference:   req.Reference,
		Metadata:    req.Metadata,
	})
	if err != nil {
		slog.Error("sale enqueue failed", "seller_id", req.SellerID, "error", err)
		SendErrorResponse(w, "Failed to queue sale", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]any{
		"status": "queued",
		"job_id": jobID,
	})
}

func (s *SaleService) decode(w http.ResponseWriter, r *http.Request) (sellChargeRequest, bool) {
	var req sellChargeRequest
	if err := DecodeJSON(r, w, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return req, false
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}

// writeSaleError maps core error kinds to HTTP responses. Returns true when
// err was nil and the caller should continue.
func (s *SaleService) writeSaleError(w http.ResponseWriter, req sellChargeRequest, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ledger.ErrInvalidAmount):
		metrics.OperationsFailed.WithLabelValues("sell_charge", "invalid_amount").Inc()
		SendErrorResponse(w, "Amount must be positive", http.StatusBadRequest, nil)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		metrics.OperationsFailed.WithLabelValues("sell_charge", "insufficient_balance").Inc()
		SendErrorResponse(w, "Insufficient balance", http.StatusPaymentRequired, nil)
	case errors.Is(err, ledger.ErrSellerNotFound):
		SendErrorResponse(w, "Seller not found", http.StatusNotFound, nil)
	default:
		slog.Error("sell charge failed", "seller_id", req.SellerID, "error", err)
		SendErrorResponse(w, "Failed to process sale", http.StatusInternalServerError, nil)
	}
	return false
}

package services

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chargebox/backend/internal/models"
)

// SellerService serves seller CRUD. Sellers are created externally to the
// ledger core; balance and version are read-only here and only ever change
// through the two ledger operations.
type SellerService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewSellerService(db *sql.DB) *SellerService {
	return &SellerService{db: db, validator: NewValidationHelper()}
}

type createSellerRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// CreateSeller handles seller registration
// @Summary Create a seller
// @Tags sellers
// @Accept json
// @Produce json
// @Router /sellers [post]
func (s *SellerService) CreateSeller(w http.ResponseWriter, r *http.Request) {
	var req createSellerRequest
	if err := DecodeJSON(r, w, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var seller models.Seller
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO sellers (name)
		VALUES ($1)
		RETURNING id, name, balance, version, created_at`, req.Name).
		Scan(&seller.ID, &seller.Name, &seller.Balance, &seller.Version, &seller.CreatedAt)
	if err != nil {
		slog.Error("seller create failed", "error", err)
		SendErrorResponse(w, "Failed to create seller", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusCreated, seller)
}

// GetSeller returns one seller with its current balance and version
// @Summary Get a seller
// @Tags sellers
// @Produce json
// @Router /sellers/{sellerId} [get]
func (s *SellerService) GetSeller(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sellerId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid seller id", http.StatusBadRequest, nil)
		return
	}

	var seller models.Seller
	err = s.db.QueryRowContext(r.Context(), `
		SELECT id, name, balance, version, created_at
		  FROM sellers
		 WHERE id = $1`, id).
		Scan(&seller.ID, &seller.Name, &seller.Balance, &seller.Version, &seller.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		SendErrorResponse(w, "Seller not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		slog.Error("seller fetch failed", "seller_id", id, "error", err)
		SendErrorResponse(w, "Failed to fetch seller", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, seller)
}

// ListSellers returns sellers ordered by id
// @Summary List sellers
// @Tags sellers
// @Produce json
// @Router /sellers [get]
func (s *SellerService) ListSellers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, name, balance, version, created_at
		  FROM sellers
		 ORDER BY id
		 LIMIT $1 OFFSET $2`, pageSize, (page-1)*pageSize)
	if err != nil {
		slog.Error("seller list failed", "error", err)
		SendErrorResponse(w, "Failed to list sellers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	sellers := []models.Seller{}
	for rows.Next() {
		var seller models.Seller
		if err := rows.Scan(&seller.ID, &seller.Name, &seller.Balance, &seller.Version, &seller.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to list sellers", http.StatusInternalServerError, nil)
			return
		}
		sellers = append(sellers, seller)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list sellers", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"page":      page,
		"page_size": pageSize,
		"results":   sellers,
	})
}

// pagination parses page/page_size query params: page_size defaults to 5,
// capped at 100.
func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 5
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

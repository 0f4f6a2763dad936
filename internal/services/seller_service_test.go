package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestSellerService_CreateSeller(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewSellerService(db)

	t.Run("creates with zero balance", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO sellers").
			WithArgs("Seller1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "balance", "version", "created_at"}).
				AddRow(1, "Seller1", 0, 0, time.Now()))

		w := postJSON(t, service.CreateSeller, "/api/v1/sellers", map[string]any{"name": "Seller1"})

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, float64(0), resp["balance"])
		assert.Equal(t, float64(0), resp["version"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing name rejected", func(t *testing.T) {
		w := postJSON(t, service.CreateSeller, "/api/v1/sellers", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSellerService_GetSeller(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewSellerService(db)

	router := chi.NewRouter()
	router.Get("/sellers/{sellerId}", service.GetSeller)

	t.Run("returns current balance and version", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "balance", "version", "created_at"}).
				AddRow(1, "Seller1", 95, 7, time.Now()))

		r := httptest.NewRequest("GET", "/sellers/1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, float64(95), resp["balance"])
		assert.Equal(t, float64(7), resp["version"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing seller maps to 404", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "balance", "version", "created_at"}))

		r := httptest.NewRequest("GET", "/sellers/99", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

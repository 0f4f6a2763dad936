package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/chargebox/backend/internal/models"
)

func TestService_SellCharge(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := New(db)
	ctx := context.Background()

	t.Run("successful charge", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()).
				AddRow(1, "Seller1", 100, 2, time.Now()))

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("sale:abc").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectExec("UPDATE sellers").
			WithArgs(int64(95), int64(1), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("INSERT INTO phone_numbers").
			WithArgs("09120000001").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "SALE", int64(-5), int64(95), int64(5), "sale:abc", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(21, time.Now()))

		mock.ExpectExec("UPDATE phone_numbers").
			WithArgs(int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		balance, err := service.SellCharge(ctx, 1, "09120000001", 5, "sale:abc", nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(95), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate reference returns current balance without debiting", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()).
				AddRow(1, "Seller1", 95, 3, time.Now()))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("sale:abc").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectCommit()

		balance, err := service.SellCharge(ctx, 1, "09120000001", 5, "sale:abc", nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(95), balance)
		// No UPDATE sellers, no second transactions row
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance leaves no writes", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()).
				AddRow(1, "Seller1", 3, 3, time.Now()))
		mock.ExpectRollback()

		_, err := service.SellCharge(ctx, 1, "09120000001", 5, "", nil)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount rejected before any lock", func(t *testing.T) {
		_, err := service.SellCharge(ctx, 1, "09120000001", 0, "", nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = service.SellCharge(ctx, 1, "09120000001", -20, "", nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("seller not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()))
		mock.ExpectRollback()

		_, err := service.SellCharge(ctx, 99, "09120000001", 5, "", nil)
		assert.ErrorIs(t, err, ErrSellerNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("phone creation race loser re-reads the winner row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()).
				AddRow(1, "Seller1", 100, 2, time.Now()))
		mock.ExpectExec("UPDATE sellers").
			WithArgs(int64(95), int64(1), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		// ON CONFLICT DO NOTHING returns no row once the winner's insert
		// committed; the loser falls back to a plain read.
		mock.ExpectQuery("INSERT INTO phone_numbers").
			WithArgs("09120000002").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery("SELECT id FROM phone_numbers").
			WithArgs("09120000002").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))

		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "SALE", int64(-5), int64(95), int64(6), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(22, time.Now()))
		mock.ExpectExec("UPDATE phone_numbers").
			WithArgs(int64(6)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		balance, err := service.SellCharge(ctx, 1, "09120000002", 5, "", nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(95), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("caller metadata is merged into the entry", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()).
				AddRow(1, "Seller1", 50, 9, time.Now()))
		mock.ExpectExec("UPDATE sellers").
			WithArgs(int64(30), int64(1), int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO phone_numbers").
			WithArgs("09120000003").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "SALE", int64(-20), int64(30), int64(7), sqlmock.AnyArg(),
				[]byte(`{"channel":"pos","phone_number":"09120000003"}`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(23, time.Now()))
		mock.ExpectExec("UPDATE phone_numbers").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		balance, err := service.SellCharge(ctx, 1, "09120000003", 20, "", models.Metadata{"channel": "pos"})
		assert.NoError(t, err)
		assert.Equal(t, int64(30), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// Sequential charges must chain balance_after exactly: final balance equals
// the starting balance plus the sum of signed amounts.
func TestService_SellCharge_BalanceChaining(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := New(db)
	ctx := context.Background()

	start := int64(100)
	for i, want := range []int64{95, 90} {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()).
				AddRow(1, "Seller1", start-int64(i)*5, int64(i), time.Now()))
		mock.ExpectExec("UPDATE sellers").
			WithArgs(want, int64(1), int64(i)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO phone_numbers").
			WithArgs("09120000009").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "SALE", int64(-5), want, int64(9), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(30+i), time.Now()))
		mock.ExpectExec("UPDATE phone_numbers").
			WithArgs(int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	b1, err := service.SellCharge(ctx, 1, "09120000009", 5, "", nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(95), b1)

	b2, err := service.SellCharge(ctx, 1, "09120000009", 5, "", nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(90), b2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

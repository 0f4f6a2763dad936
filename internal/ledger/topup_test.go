package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func topUpRequestColumns() []string {
	return []string{"id", "seller_id", "amount", "idempotency_key", "approved", "applied_at", "approved_by", "notes", "created_at"}
}

func sellerColumns() []string {
	return []string{"id", "name", "balance", "version", "created_at"}
}

func TestService_ApplyTopUp(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := New(db)
	ctx := context.Background()

	t.Run("successful apply", func(t *testing.T) {
		mock.ExpectBegin()

		// Lock request row first, then its seller (documented lock order)
		mock.ExpectQuery("SELECT id, seller_id, amount, idempotency_key").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(topUpRequestColumns()).
				AddRow(7, 1, 100, "key-1", false, nil, nil, nil, time.Now()))

		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()).
				AddRow(1, "Seller1", 0, 4, time.Now()))

		mock.ExpectExec("UPDATE sellers").
			WithArgs(int64(100), int64(1), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "TOPUP", int64(100), int64(100), nil, "topup:key-1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, time.Now()))

		mock.ExpectExec("UPDATE topup_requests").
			WithArgs("admin", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		balance, err := service.ApplyTopUp(ctx, 7, "admin")
		assert.NoError(t, err)
		assert.Equal(t, int64(100), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already applied fails without side effects", func(t *testing.T) {
		applied := time.Now().Add(-time.Hour)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, seller_id, amount, idempotency_key").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(topUpRequestColumns()).
				AddRow(7, 1, 100, "key-1", true, applied, "admin", nil, time.Now()))
		mock.ExpectRollback()

		_, err := service.ApplyTopUp(ctx, 7, "admin")
		assert.ErrorIs(t, err, ErrAlreadyApplied)
		// No seller lock, no balance update, no log entry
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("race loser observes applied_at set by the winner", func(t *testing.T) {
		// The loser blocks on the request row lock until the winner commits,
		// then loads the applied row.
		winnerCommit := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, seller_id, amount, idempotency_key").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(topUpRequestColumns()).
				AddRow(7, 1, 100, "key-1", true, winnerCommit, "thread-0", nil, time.Now()))
		mock.ExpectRollback()

		_, err := service.ApplyTopUp(ctx, 7, "thread-1")
		assert.ErrorIs(t, err, ErrAlreadyApplied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("request not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, seller_id, amount, idempotency_key").
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.ApplyTopUp(ctx, 99, "admin")
		assert.ErrorIs(t, err, ErrTopUpNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed credit rolls back whole unit of work", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, seller_id, amount, idempotency_key").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(topUpRequestColumns()).
				AddRow(7, 1, 100, "key-1", false, nil, nil, nil, time.Now()))
		mock.ExpectQuery("SELECT id, name, balance, version, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(sellerColumns()).
				AddRow(1, "Seller1", 0, 4, time.Now()))
		mock.ExpectExec("UPDATE sellers").
			WithArgs(int64(100), int64(1), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 0)) // version check misses
		mock.ExpectRollback()

		_, err := service.ApplyTopUp(ctx, 7, "admin")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestService_CreateTopUpRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := New(db)
	ctx := context.Background()

	t.Run("creates a pending request", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO topup_requests").
			WithArgs(int64(1), int64(500), "key-7", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		id, created, err := service.CreateTopUpRequest(ctx, 1, 500, "key-7", "")
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(42), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reused idempotency key returns existing request", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO topup_requests").
			WithArgs(int64(1), int64(500), "key-7", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"})) // ON CONFLICT DO NOTHING

		mock.ExpectQuery("SELECT id FROM topup_requests").
			WithArgs("key-7").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		id, created, err := service.CreateTopUpRequest(ctx, 1, 500, "key-7", "")
		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, int64(42), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("generates a key when absent", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO topup_requests").
			WithArgs(int64(1), int64(500), sqlmock.AnyArg(), nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(43))

		_, created, err := service.CreateTopUpRequest(ctx, 1, 500, "", "")
		assert.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount rejected before touching the store", func(t *testing.T) {
		_, _, err := service.CreateTopUpRequest(ctx, 1, 0, "key-8", "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

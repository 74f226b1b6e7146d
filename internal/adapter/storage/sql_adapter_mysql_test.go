package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

func newMySQLMock(t *testing.T) (*SQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adapter := NewSQLAdapter(sqlx.NewDb(db, "mysql"))
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	adapter.now = func() time.Time { return fixed }
	return adapter, mock
}

func TestSQLAdapter_MySQL_CreateRequestUsesLastInsertID(t *testing.T) {
	adapter, mock := newMySQLMock(t)

	mock.ExpectExec(`INSERT INTO blood_requests`).
		WithArgs(int64(7), domain.BloodTypeAPos, 2, domain.RequestStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))

	req, err := adapter.CreateRequest(context.Background(), 7, domain.BloodTypeAPos, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), req.ID)
	assert.Equal(t, domain.RequestStatusPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAdapter_MySQL_CommitFulfillmentRollsBackOnShortage(t *testing.T) {
	adapter, mock := newMySQLMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM blood_requests WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "blood_type", "units_requested", "status", "request_date", "updated_at"}).
			AddRow(1, 7, "A+", 5, "Pending", now, now))
	mock.ExpectExec(`UPDATE blood_requests SET status = \?`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE blood_inventory`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blood_inventory`).
		WithArgs(domain.BloodTypeAPos).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, _, err := adapter.CommitFulfillment(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientUnits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAdapter_MySQL_DuplicateUsername(t *testing.T) {
	adapter, mock := newMySQLMock(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := adapter.CreateUser(context.Background(), domain.User{Username: "alice", PasswordHash: "x"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

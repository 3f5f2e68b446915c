package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) (LedgerTx, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	ledger, err := NewBorrowRepo(db).BeginLedger(context.Background())
	require.NoError(t, err)
	return ledger, mock
}

func Test_Ledger_LockAvailableBook_MissingRowIsUnavailable(t *testing.T) {
	// arrange
	ledger, mock := newLedger(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM books WHERE id = ? AND available > 0 FOR UPDATE`)).
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	// act
	err := ledger.LockAvailableBook(context.Background(), 42)

	// assert
	assert.ErrorIs(t, err, ErrBookUnavailable)
	require.NoError(t, ledger.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Ledger_CheckoutSequence(t *testing.T) {
	// arrange
	ledger, mock := newLedger(t)
	ctx := context.Background()
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	at := due.Add(-14 * 24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM books WHERE id = ? AND available > 0 FOR UPDATE`)).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE books SET available = available + ? WHERE id = ? AND available + ? >= 0 AND available + ? <= quantity`)).
		WithArgs(-1, 7, -1, -1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO transactions (book_id, borrower_id, created_at) VALUES (?, ?, ?)`)).
		WithArgs(7, 3, at).
		WillReturnResult(sqlmock.NewResult(99, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO borrows (transaction_id, return_date, actual_return_date) VALUES (?, ?, NULL)`)).
		WithArgs(99, due).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// act
	require.NoError(t, ledger.LockAvailableBook(ctx, 7))
	require.NoError(t, ledger.AdjustAvailable(ctx, 7, -1))
	txID, err := ledger.CreateTransaction(ctx, 7, 3, at)
	require.NoError(t, err)
	require.NoError(t, ledger.CreateBorrow(ctx, txID, &due))
	require.NoError(t, ledger.Commit())

	// assert
	assert.Equal(t, uint64(99), txID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Ledger_AdjustAvailable_OutOfBoundsIsConflict(t *testing.T) {
	ledger, mock := newLedger(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE books SET available = available + ?`)).
		WithArgs(1, 7, 1, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ledger.AdjustAvailable(context.Background(), 7, 1)

	assert.ErrorIs(t, err, ErrInventoryConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Ledger_CreateTransaction_UnknownBorrower(t *testing.T) {
	ledger, mock := newLedger(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO transactions`)).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})

	_, err := ledger.CreateTransaction(context.Background(), 7, 404, time.Now())

	assert.ErrorIs(t, err, ErrBorrowerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Ledger_LockOpenBorrow(t *testing.T) {
	t.Run("open_borrow_returns_book", func(t *testing.T) {
		ledger, mock := newLedger(t)
		mock.ExpectQuery(`SELECT t.book_id FROM borrows br JOIN transactions t ON t.id = br.transaction_id WHERE br.transaction_id = \? AND br.actual_return_date IS NULL FOR UPDATE`).
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"book_id"}).AddRow(7))

		bookID, err := ledger.LockOpenBorrow(context.Background(), 99)

		require.NoError(t, err)
		assert.Equal(t, uint64(7), bookID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returned_or_missing_is_not_found", func(t *testing.T) {
		ledger, mock := newLedger(t)
		mock.ExpectQuery(`FOR UPDATE`).WithArgs(99).WillReturnError(sql.ErrNoRows)

		_, err := ledger.LockOpenBorrow(context.Background(), 99)

		assert.ErrorIs(t, err, ErrBorrowNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func Test_Ledger_SetActualReturnDate_AlreadyClosed(t *testing.T) {
	ledger, mock := newLedger(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE borrows SET actual_return_date = ? WHERE transaction_id = ? AND actual_return_date IS NULL`)).
		WithArgs(sqlmock.AnyArg(), 99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ledger.SetActualReturnDate(context.Background(), 99, time.Now())

	assert.ErrorIs(t, err, ErrBorrowNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Ledger_DeleteBorrow(t *testing.T) {
	ledger, mock := newLedger(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM borrows WHERE transaction_id = ?`)).
		WithArgs(99).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.DeleteBorrow(context.Background(), 99))
	assert.NoError(t, mock.ExpectationsWereMet())
}

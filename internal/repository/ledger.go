package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LedgerTx is a single database transaction of the borrow lifecycle.  Every
// method runs on the same *sql.Tx, so a row locked by one call stays locked
// until Commit or Rollback.  Other transactions that try to lock the same
// row block until then; there is no retry.
type LedgerTx interface {
	// LockAvailableBook takes an exclusive lock on the book row, but only
	// when it still has a copy on the shelf.  A missing book and a fully
	// checked out book both yield ErrBookUnavailable.
	LockAvailableBook(ctx context.Context, bookID uint64) error
	// AdjustAvailable moves the available counter by delta.  It returns
	// ErrInventoryConflict instead of leaving available outside
	// [0, quantity].
	AdjustAvailable(ctx context.Context, bookID uint64, delta int) error
	// CreateTransaction records the checkout and returns its id.
	CreateTransaction(ctx context.Context, bookID, borrowerID uint64, at time.Time) (uint64, error)
	// CreateBorrow inserts the open borrow keyed by the transaction id.
	CreateBorrow(ctx context.Context, transactionID uint64, returnDate *time.Time) error
	// LockOpenBorrow locks a borrow that has not been returned yet along
	// with its transaction and returns the borrowed book id.  Unknown and
	// already returned borrows yield ErrBorrowNotFound.
	LockOpenBorrow(ctx context.Context, transactionID uint64) (uint64, error)
	// SetActualReturnDate closes an open borrow.
	SetActualReturnDate(ctx context.Context, transactionID uint64, at time.Time) error
	// DeleteBorrow removes the borrow row.  The transaction row is kept.
	DeleteBorrow(ctx context.Context, transactionID uint64) error
	Commit() error
	Rollback() error
}

// sqlLedgerTx implements LedgerTx on top of InnoDB row locks.
type sqlLedgerTx struct {
	tx *sql.Tx
}

// BeginLedger opens a read-committed transaction for one lifecycle
// operation.  Locking reads always see the latest committed row, so a
// checkout that waited on a lock re-evaluates `available > 0` against
// the winner's write.
func (r *BorrowRepo) BeginLedger(ctx context.Context) (LedgerTx, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &sqlLedgerTx{tx: tx}, nil
}

func (l *sqlLedgerTx) LockAvailableBook(ctx context.Context, bookID uint64) error {
	const q = `SELECT id FROM books WHERE id = ? AND available > 0 FOR UPDATE`
	var id uint64
	if err := l.tx.QueryRowContext(ctx, q, bookID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookUnavailable
		}
		return err
	}
	return nil
}

func (l *sqlLedgerTx) AdjustAvailable(ctx context.Context, bookID uint64, delta int) error {
	const q = `UPDATE books SET available = available + ?
	           WHERE id = ? AND available + ? >= 0 AND available + ? <= quantity`
	res, err := l.tx.ExecContext(ctx, q, delta, bookID, delta, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInventoryConflict
	}
	return nil
}

func (l *sqlLedgerTx) CreateTransaction(ctx context.Context, bookID, borrowerID uint64, at time.Time) (uint64, error) {
	const q = `INSERT INTO transactions (book_id, borrower_id, created_at) VALUES (?, ?, ?)`
	res, err := l.tx.ExecContext(ctx, q, bookID, borrowerID, at)
	if err != nil {
		if isMissingParent(err) {
			return 0, ErrBorrowerNotFound
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (l *sqlLedgerTx) CreateBorrow(ctx context.Context, transactionID uint64, returnDate *time.Time) error {
	const q = `INSERT INTO borrows (transaction_id, return_date, actual_return_date) VALUES (?, ?, NULL)`
	_, err := l.tx.ExecContext(ctx, q, transactionID, nullTime(returnDate))
	return err
}

func (l *sqlLedgerTx) LockOpenBorrow(ctx context.Context, transactionID uint64) (uint64, error) {
	const q = `SELECT t.book_id
	           FROM borrows br
	           JOIN transactions t ON t.id = br.transaction_id
	           WHERE br.transaction_id = ? AND br.actual_return_date IS NULL
	           FOR UPDATE`
	var bookID uint64
	if err := l.tx.QueryRowContext(ctx, q, transactionID).Scan(&bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrBorrowNotFound
		}
		return 0, err
	}
	return bookID, nil
}

func (l *sqlLedgerTx) SetActualReturnDate(ctx context.Context, transactionID uint64, at time.Time) error {
	const q = `UPDATE borrows SET actual_return_date = ? WHERE transaction_id = ? AND actual_return_date IS NULL`
	res, err := l.tx.ExecContext(ctx, q, at, transactionID)
	if err != nil {
		return err
	}
	return requireOneRow(res, ErrBorrowNotFound)
}

func (l *sqlLedgerTx) DeleteBorrow(ctx context.Context, transactionID uint64) error {
	const q = `DELETE FROM borrows WHERE transaction_id = ?`
	res, err := l.tx.ExecContext(ctx, q, transactionID)
	if err != nil {
		return err
	}
	return requireOneRow(res, ErrBorrowNotFound)
}

func (l *sqlLedgerTx) Commit() error   { return l.tx.Commit() }
func (l *sqlLedgerTx) Rollback() error { return l.tx.Rollback() }

// requireOneRow maps a statement that touched nothing to notFound.
func requireOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// nullTime converts an optional timestamp into a driver value.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

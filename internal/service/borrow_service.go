// Package service holds the borrow lifecycle engine.  It orchestrates the
// inventory ledger, the transaction record and the borrow record inside
// one database transaction per operation and relies on row locks taken
// through repository.LedgerTx for every concurrency guarantee.  No
// in-process lock is held.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/queue"
	"github.com/iliyamo/library-management/internal/repository"
)

// ErrInvalidBorrow is returned for checkout requests with a zero book or
// borrower id.
var ErrInvalidBorrow = errors.New("invalid borrow request")

// Ledger opens one locked database transaction per lifecycle operation.
type Ledger interface {
	BeginLedger(ctx context.Context) (repository.LedgerTx, error)
}

// BorrowReader is the read and correction side of the borrow store.
type BorrowReader interface {
	GetDetail(ctx context.Context, transactionID uint64, now time.Time) (*model.BorrowDetail, error)
	Search(ctx context.Context, f model.BorrowFilter, now time.Time) (model.BorrowPage, error)
	Update(ctx context.Context, transactionID uint64, p model.BorrowPatch) error
}

// EventPublisher delivers lifecycle notifications.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BorrowEvent) error
}

// BorrowService is the borrow lifecycle engine.
type BorrowService struct {
	ledger         Ledger
	borrows        BorrowReader
	events         EventPublisher
	logger         *slog.Logger
	now            func() time.Time
	publishTimeout time.Duration
}

// Option configures a BorrowService.
type Option func(*BorrowService)

// WithPublisher enables lifecycle notifications.
func WithPublisher(p EventPublisher) Option {
	return func(s *BorrowService) { s.events = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *BorrowService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for checkout timestamps,
// return timestamps and status derivation.
func WithClock(now func() time.Time) Option {
	return func(s *BorrowService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublishTimeout bounds how long a notification may take.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *BorrowService) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// NewBorrowService wires the engine to its stores.
func NewBorrowService(ledger Ledger, borrows BorrowReader, opts ...Option) *BorrowService {
	s := &BorrowService{
		ledger:         ledger,
		borrows:        borrows,
		logger:         slog.Default(),
		now:            time.Now,
		publishTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBorrow checks out one copy of a book.  The book row is locked
// with an `available > 0` filter, so concurrent checkouts of the last
// copy serialize and the losers see ErrBookUnavailable.  The counter
// decrement and both inserts commit together or not at all.  It returns
// the new transaction id.
func (s *BorrowService) CreateBorrow(ctx context.Context, in model.CreateBorrowInput) (uint64, error) {
	if in.BookID == 0 || in.BorrowerID == 0 {
		return 0, ErrInvalidBorrow
	}
	now := s.now().UTC()

	var txID uint64
	err := s.inLedgerTx(ctx, func(tx repository.LedgerTx) error {
		if err := tx.LockAvailableBook(ctx, in.BookID); err != nil {
			return err
		}
		if err := tx.AdjustAvailable(ctx, in.BookID, -1); err != nil {
			return err
		}
		id, err := tx.CreateTransaction(ctx, in.BookID, in.BorrowerID, now)
		if err != nil {
			return err
		}
		txID = id
		return tx.CreateBorrow(ctx, id, in.ReturnDate)
	})
	if err != nil {
		s.logger.Info("checkout rejected", "book_id", in.BookID, "borrower_id", in.BorrowerID, "error", err)
		return 0, err
	}

	s.logger.Info("book checked out", "transaction_id", txID, "book_id", in.BookID, "borrower_id", in.BorrowerID)
	s.publish(ctx, queue.BorrowEvent{
		Type:          queue.EventBorrowCreated,
		TransactionID: txID,
		BookID:        in.BookID,
		BorrowerID:    in.BorrowerID,
		ReturnDate:    in.ReturnDate,
		OccurredAt:    now,
	})
	return txID, nil
}

// ReturnBook closes an open borrow and puts the copy back on the shelf.
// Unknown and already returned borrows yield ErrBorrowNotFound; of two
// concurrent returns only the first to take the lock succeeds.
func (s *BorrowService) ReturnBook(ctx context.Context, transactionID uint64) error {
	now := s.now().UTC()
	bookID, err := s.releaseCopy(ctx, transactionID, func(tx repository.LedgerTx) error {
		return tx.SetActualReturnDate(ctx, transactionID, now)
	})
	if err != nil {
		return err
	}
	s.logger.Info("book returned", "transaction_id", transactionID, "book_id", bookID)
	s.publish(ctx, queue.BorrowEvent{
		Type:          queue.EventBorrowReturned,
		TransactionID: transactionID,
		BookID:        bookID,
		OccurredAt:    now,
	})
	return nil
}

// DeleteBorrow reverses an open borrow: the copy goes back on the shelf
// and the borrow row is removed.  The transaction row stays as history.
// A returned borrow is history too and yields ErrBorrowNotFound.
func (s *BorrowService) DeleteBorrow(ctx context.Context, transactionID uint64) error {
	bookID, err := s.releaseCopy(ctx, transactionID, func(tx repository.LedgerTx) error {
		return tx.DeleteBorrow(ctx, transactionID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("borrow deleted", "transaction_id", transactionID, "book_id", bookID)
	s.publish(ctx, queue.BorrowEvent{
		Type:          queue.EventBorrowDeleted,
		TransactionID: transactionID,
		BookID:        bookID,
		OccurredAt:    s.now().UTC(),
	})
	return nil
}

// releaseCopy locks an open borrow, credits its book and then runs
// finish, all in one transaction.  It returns the book id.
func (s *BorrowService) releaseCopy(ctx context.Context, transactionID uint64, finish func(repository.LedgerTx) error) (uint64, error) {
	var bookID uint64
	err := s.inLedgerTx(ctx, func(tx repository.LedgerTx) error {
		id, err := tx.LockOpenBorrow(ctx, transactionID)
		if err != nil {
			return err
		}
		bookID = id
		if err := tx.AdjustAvailable(ctx, id, 1); err != nil {
			return err
		}
		return finish(tx)
	})
	return bookID, err
}

// UpdateBorrow corrects the expected or actual return date.  It never
// touches the available counter; a return must go through ReturnBook.
func (s *BorrowService) UpdateBorrow(ctx context.Context, transactionID uint64, p model.BorrowPatch) (*model.BorrowDetail, error) {
	if err := s.borrows.Update(ctx, transactionID, p); err != nil {
		return nil, err
	}
	s.logger.Info("borrow corrected", "transaction_id", transactionID)
	return s.GetBorrow(ctx, transactionID)
}

// GetBorrow returns one borrow with its derived status.
func (s *BorrowService) GetBorrow(ctx context.Context, transactionID uint64) (*model.BorrowDetail, error) {
	return s.borrows.GetDetail(ctx, transactionID, s.now().UTC())
}

// ListBorrows returns a filtered page of borrows.  The filter is trusted:
// callers narrow it to what the requester may see.
func (s *BorrowService) ListBorrows(ctx context.Context, f model.BorrowFilter) (model.BorrowPage, error) {
	return s.borrows.Search(ctx, f, s.now().UTC())
}

// OverdueBorrows lists open borrows past their return date, earliest due
// first.
func (s *BorrowService) OverdueBorrows(ctx context.Context, page, limit int) (model.BorrowPage, error) {
	st := model.StatusOverdue
	return s.ListBorrows(ctx, model.BorrowFilter{Status: &st, Sort: model.SortDueDate, Page: page, Limit: limit})
}

// BorrowsByBorrower lists the history of one borrower.
func (s *BorrowService) BorrowsByBorrower(ctx context.Context, borrowerID uint64, page, limit int) (model.BorrowPage, error) {
	return s.ListBorrows(ctx, model.BorrowFilter{BorrowerID: &borrowerID, Page: page, Limit: limit})
}

// BorrowsByBook lists the history of one book.
func (s *BorrowService) BorrowsByBook(ctx context.Context, bookID uint64, page, limit int) (model.BorrowPage, error) {
	return s.ListBorrows(ctx, model.BorrowFilter{BookID: &bookID, Page: page, Limit: limit})
}

// inLedgerTx runs fn in a ledger transaction and commits when fn
// succeeds.  Any error, including a cancelled context, rolls everything
// back.
func (s *BorrowService) inLedgerTx(ctx context.Context, fn func(repository.LedgerTx) error) error {
	tx, err := s.ledger.BeginLedger(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// publish sends ev after commit.  A broker failure is logged and never
// reaches the caller.
func (s *BorrowService) publish(ctx context.Context, ev queue.BorrowEvent) {
	if s.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, ev); err != nil {
		s.logger.Warn("borrow event not published", "type", ev.Type, "transaction_id", ev.TransactionID, "error", err)
	}
}

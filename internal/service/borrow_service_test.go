package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/queue"
	"github.com/iliyamo/library-management/internal/repository"
	"github.com/iliyamo/library-management/internal/service"
)

const (
	bookID     = uint64(7)
	borrowerID = uint64(3)
)

var fixedNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BorrowEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.BorrowEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []queue.BorrowEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.BorrowEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newService(m *memLedger, opts ...service.Option) *service.BorrowService {
	base := []service.Option{
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithClock(func() time.Time { return fixedNow }),
	}
	return service.NewBorrowService(m, m, append(base, opts...)...)
}

func dueIn(d time.Duration) *time.Time {
	t := fixedNow.Add(d)
	return &t
}

func Test_BorrowService_Scenario_CheckoutThenReturn(t *testing.T) {
	// arrange
	m := newMemLedger()
	m.addBook(bookID, 5, 5)
	m.addBorrower(borrowerID)
	pub := &recordingPublisher{}
	svc := newService(m, service.WithPublisher(pub))
	ctx := context.Background()

	// act: checkout
	txID, err := svc.CreateBorrow(ctx, model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID, ReturnDate: dueIn(14 * 24 * time.Hour)})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 4, m.available(bookID))
	txs, borrows := m.counts()
	assert.Equal(t, 1, txs)
	assert.Equal(t, 1, borrows)
	b, ok := m.borrow(txID)
	require.True(t, ok)
	assert.Nil(t, b.ActualReturnDate)

	detail, err := svc.GetBorrow(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBorrowed, detail.Status)
	assert.Equal(t, fixedNow, detail.BorrowedAt)

	// act: return
	require.NoError(t, svc.ReturnBook(ctx, txID))

	// assert
	assert.Equal(t, 5, m.available(bookID))
	detail, err = svc.GetBorrow(ctx, txID)
	require.NoError(t, err)
	require.NotNil(t, detail.ActualReturnDate)
	assert.Equal(t, fixedNow, *detail.ActualReturnDate)
	assert.Equal(t, model.StatusReturned, detail.Status)
	assert.Equal(t, []queue.BorrowEventType{queue.EventBorrowCreated, queue.EventBorrowReturned}, pub.types())
}

func Test_BorrowService_Scenario_NoCopyLeft(t *testing.T) {
	// arrange
	m := newMemLedger()
	m.addBook(bookID, 2, 0)
	m.addBorrower(borrowerID)
	pub := &recordingPublisher{}
	svc := newService(m, service.WithPublisher(pub))

	// act
	_, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})

	// assert
	assert.ErrorIs(t, err, repository.ErrBookUnavailable)
	assert.Equal(t, 0, m.available(bookID))
	txs, borrows := m.counts()
	assert.Zero(t, txs)
	assert.Zero(t, borrows)
	assert.Empty(t, pub.types())
}

func Test_BorrowService_UnknownBookLooksUnavailable(t *testing.T) {
	m := newMemLedger()
	m.addBorrower(borrowerID)
	svc := newService(m)

	_, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: 404, BorrowerID: borrowerID})

	assert.ErrorIs(t, err, repository.ErrBookUnavailable)
}

func Test_BorrowService_CreateBorrow_RejectsZeroIDs(t *testing.T) {
	svc := newService(newMemLedger())

	_, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: 0, BorrowerID: borrowerID})
	assert.ErrorIs(t, err, service.ErrInvalidBorrow)

	_, err = svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID})
	assert.ErrorIs(t, err, service.ErrInvalidBorrow)
}

func Test_BorrowService_CreateBorrow_RollsBackOnLateFailure(t *testing.T) {
	// arrange
	m := newMemLedger()
	m.addBook(bookID, 3, 3)
	m.addBorrower(borrowerID)
	boom := errors.New("insert failed")
	m.failCreateBorrow = boom
	svc := newService(m)

	// act
	_, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})

	// assert
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, m.available(bookID))
	txs, borrows := m.counts()
	assert.Zero(t, txs)
	assert.Zero(t, borrows)

	// the lock was released: a later checkout goes through
	m.failCreateBorrow = nil
	_, err = svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})
	assert.NoError(t, err)
	assert.Equal(t, 2, m.available(bookID))
}

func Test_BorrowService_CreateBorrow_UnknownBorrowerRollsBack(t *testing.T) {
	m := newMemLedger()
	m.addBook(bookID, 1, 1)
	svc := newService(m)

	_, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: 99})

	assert.ErrorIs(t, err, repository.ErrBorrowerNotFound)
	assert.Equal(t, 1, m.available(bookID))
}

func Test_BorrowService_ConcurrentCheckoutOfLastCopy(t *testing.T) {
	// arrange
	const workers = 16
	m := newMemLedger()
	m.addBook(bookID, 3, 1)
	m.addBorrower(borrowerID)
	m.lockHold = time.Millisecond
	svc := newService(m)

	var (
		wg          sync.WaitGroup
		start       = make(chan struct{})
		mu          sync.Mutex
		successes   int
		unavailable int
		others      []error
	)

	// act
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, repository.ErrBookUnavailable):
				unavailable++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	// assert
	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, unavailable)
	assert.Equal(t, 0, m.available(bookID))
	_, borrows := m.counts()
	assert.Equal(t, 1, borrows)
}

func Test_BorrowService_ConcurrentDoubleReturn(t *testing.T) {
	// arrange
	m := newMemLedger()
	m.addBook(bookID, 5, 5)
	m.addBorrower(borrowerID)
	svc := newService(m)
	txID, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})
	require.NoError(t, err)
	require.Equal(t, 4, m.available(bookID))
	m.lockHold = 2 * time.Millisecond

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)

	// act
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = svc.ReturnBook(context.Background(), txID)
		}(i)
	}
	close(start)
	wg.Wait()

	// assert
	var ok, notFound int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrBorrowNotFound):
			notFound++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, notFound)
	assert.Equal(t, 5, m.available(bookID))
}

func Test_BorrowService_InventoryInvariantUnderMixedLoad(t *testing.T) {
	// arrange
	const quantity = 3
	m := newMemLedger()
	m.addBook(bookID, quantity, quantity)
	m.addBorrower(borrowerID)
	svc := newService(m)
	ctx := context.Background()

	var wg sync.WaitGroup
	var violations int32
	var vmu sync.Mutex

	// act: each worker checks out and hands the copy back
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				txID, err := svc.CreateBorrow(ctx, model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})
				if err != nil {
					continue
				}
				if (i+j)%2 == 0 {
					_ = svc.ReturnBook(ctx, txID)
				} else {
					_ = svc.DeleteBorrow(ctx, txID)
				}
				if a := m.available(bookID); a < 0 || a > quantity {
					vmu.Lock()
					violations++
					vmu.Unlock()
				}
			}
		}(i)
	}
	wg.Wait()

	// assert
	assert.Zero(t, violations)
	assert.Equal(t, quantity, m.available(bookID))
}

func Test_BorrowService_DeleteBorrow(t *testing.T) {
	t.Run("open_borrow_restores_copy_and_keeps_transaction", func(t *testing.T) {
		m := newMemLedger()
		m.addBook(bookID, 2, 2)
		m.addBorrower(borrowerID)
		pub := &recordingPublisher{}
		svc := newService(m, service.WithPublisher(pub))
		txID, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})
		require.NoError(t, err)

		require.NoError(t, svc.DeleteBorrow(context.Background(), txID))

		assert.Equal(t, 2, m.available(bookID))
		txs, borrows := m.counts()
		assert.Equal(t, 1, txs)
		assert.Zero(t, borrows)
		assert.Equal(t, []queue.BorrowEventType{queue.EventBorrowCreated, queue.EventBorrowDeleted}, pub.types())
	})

	t.Run("returned_borrow_is_not_found", func(t *testing.T) {
		m := newMemLedger()
		m.addBook(bookID, 2, 2)
		m.addBorrower(borrowerID)
		svc := newService(m)
		txID, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})
		require.NoError(t, err)
		require.NoError(t, svc.ReturnBook(context.Background(), txID))

		err = svc.DeleteBorrow(context.Background(), txID)

		assert.ErrorIs(t, err, repository.ErrBorrowNotFound)
		assert.Equal(t, 2, m.available(bookID))
		_, stillThere := m.borrow(txID)
		assert.True(t, stillThere)
	})

	t.Run("unknown_borrow_is_not_found", func(t *testing.T) {
		svc := newService(newMemLedger())
		assert.ErrorIs(t, svc.DeleteBorrow(context.Background(), 12345), repository.ErrBorrowNotFound)
	})
}

func Test_BorrowService_ReturnBook_Twice(t *testing.T) {
	m := newMemLedger()
	m.addBook(bookID, 1, 1)
	m.addBorrower(borrowerID)
	svc := newService(m)
	txID, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})
	require.NoError(t, err)

	require.NoError(t, svc.ReturnBook(context.Background(), txID))
	assert.ErrorIs(t, svc.ReturnBook(context.Background(), txID), repository.ErrBorrowNotFound)
	assert.Equal(t, 1, m.available(bookID))
}

func Test_BorrowService_StatusFollowsClock(t *testing.T) {
	m := newMemLedger()
	m.addBook(bookID, 1, 1)
	m.addBorrower(borrowerID)
	svc := newService(m)
	txID, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID, ReturnDate: dueIn(-24 * time.Hour)})
	require.NoError(t, err)

	detail, err := svc.GetBorrow(context.Background(), txID)

	require.NoError(t, err)
	assert.Equal(t, model.StatusOverdue, detail.Status)
}

func Test_BorrowService_UpdateBorrow_BypassesInventory(t *testing.T) {
	// arrange
	m := newMemLedger()
	m.addBook(bookID, 1, 1)
	m.addBorrower(borrowerID)
	svc := newService(m)
	txID, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})
	require.NoError(t, err)
	returned := fixedNow

	// act
	detail, err := svc.UpdateBorrow(context.Background(), txID, model.BorrowPatch{ActualReturnDate: &returned})

	// assert
	require.NoError(t, err)
	assert.Equal(t, model.StatusReturned, detail.Status)
	assert.Equal(t, 0, m.available(bookID))

	_, err = svc.UpdateBorrow(context.Background(), txID, model.BorrowPatch{})
	assert.ErrorIs(t, err, repository.ErrNoChange)
	_, err = svc.UpdateBorrow(context.Background(), 999, model.BorrowPatch{ReturnDate: &returned})
	assert.ErrorIs(t, err, repository.ErrBorrowNotFound)
}

func Test_BorrowService_PublishFailureDoesNotFailCheckout(t *testing.T) {
	m := newMemLedger()
	m.addBook(bookID, 1, 1)
	m.addBorrower(borrowerID)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(m, service.WithPublisher(pub))

	_, err := svc.CreateBorrow(context.Background(), model.CreateBorrowInput{BookID: bookID, BorrowerID: borrowerID})

	assert.NoError(t, err)
	assert.Equal(t, 0, m.available(bookID))
	assert.Len(t, pub.types(), 1)
}

func Test_BorrowService_QueryHelpersComposeFilters(t *testing.T) {
	// arrange
	m := newMemLedger()
	svc := newService(m)
	ctx := context.Background()

	// act
	_, err := svc.OverdueBorrows(ctx, 2, 20)
	require.NoError(t, err)
	_, err = svc.BorrowsByBorrower(ctx, borrowerID, 0, 0)
	require.NoError(t, err)
	_, err = svc.BorrowsByBook(ctx, bookID, 1, 5)
	require.NoError(t, err)

	// assert
	require.Len(t, m.searches, 3)
	overdue := m.searches[0]
	require.NotNil(t, overdue.Status)
	assert.Equal(t, model.StatusOverdue, *overdue.Status)
	assert.Equal(t, model.SortDueDate, overdue.Sort)
	assert.Equal(t, 2, overdue.Page)

	require.NotNil(t, m.searches[1].BorrowerID)
	assert.Equal(t, borrowerID, *m.searches[1].BorrowerID)
	assert.Nil(t, m.searches[1].Status)

	require.NotNil(t, m.searches[2].BookID)
	assert.Equal(t, bookID, *m.searches[2].BookID)
}

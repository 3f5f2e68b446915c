package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/repository"
)

// memLedger is an in-memory store with InnoDB-like row locks: a lock is
// exclusive, blocks other transactions and is released on commit or
// rollback.  Writes are staged per transaction and applied on commit.
type memLedger struct {
	mu        sync.Mutex
	rowLocks  map[string]*sync.Mutex
	books     map[uint64]*memBook
	borrowers map[uint64]bool
	txs       map[uint64]model.Transaction
	borrows   map[uint64]*model.Borrow
	nextTxID  uint64

	// failCreateBorrow makes CreateBorrow fail after the earlier steps
	// of a checkout were staged.
	failCreateBorrow error
	// lockHold delays every lock owner, widening race windows.
	lockHold time.Duration

	searches []model.BorrowFilter
}

type memBook struct {
	quantity  int
	available int
}

func newMemLedger() *memLedger {
	return &memLedger{
		rowLocks:  map[string]*sync.Mutex{},
		books:     map[uint64]*memBook{},
		borrowers: map[uint64]bool{},
		txs:       map[uint64]model.Transaction{},
		borrows:   map[uint64]*model.Borrow{},
	}
}

func (m *memLedger) addBook(id uint64, quantity, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[id] = &memBook{quantity: quantity, available: available}
}

func (m *memLedger) addBorrower(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.borrowers[id] = true
}

func (m *memLedger) available(id uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[id].available
}

func (m *memLedger) counts() (txs, borrows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs), len(m.borrows)
}

func (m *memLedger) borrow(id uint64) (model.Borrow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrows[id]
	if !ok {
		return model.Borrow{}, false
	}
	return *b, true
}

func (m *memLedger) rowLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[key] = l
	}
	return l
}

func (m *memLedger) BeginLedger(ctx context.Context) (repository.LedgerTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{m: m, held: map[string]*sync.Mutex{}, deltas: map[uint64]int{}}, nil
}

// GetDetail, Search and Update make memLedger usable as the read side.

func (m *memLedger) GetDetail(_ context.Context, id uint64, now time.Time) (*model.BorrowDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrows[id]
	if !ok {
		return nil, repository.ErrBorrowNotFound
	}
	t := m.txs[id]
	return &model.BorrowDetail{
		TransactionID:    id,
		BookID:           t.BookID,
		BorrowerID:       t.BorrowerID,
		BorrowedAt:       t.CreatedAt,
		ReturnDate:       b.ReturnDate,
		ActualReturnDate: b.ActualReturnDate,
		Status:           b.Status(now),
	}, nil
}

func (m *memLedger) Search(_ context.Context, f model.BorrowFilter, _ time.Time) (model.BorrowPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, f)
	return model.BorrowPage{Items: []model.BorrowDetail{}, Page: f.Page, Limit: f.Limit}, nil
}

func (m *memLedger) Update(_ context.Context, id uint64, p model.BorrowPatch) error {
	if p.IsEmpty() {
		return repository.ErrNoChange
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrows[id]
	if !ok {
		return repository.ErrBorrowNotFound
	}
	if p.ReturnDate != nil {
		b.ReturnDate = p.ReturnDate
	}
	if p.ActualReturnDate != nil {
		b.ActualReturnDate = p.ActualReturnDate
	}
	return nil
}

type memTx struct {
	m      *memLedger
	held   map[string]*sync.Mutex
	deltas map[uint64]int
	staged []func()
	done   bool
}

func (t *memTx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	l := t.m.rowLock(key)
	l.Lock()
	t.held[key] = l
	if t.m.lockHold > 0 {
		time.Sleep(t.m.lockHold)
	}
}

func (t *memTx) release() {
	for _, l := range t.held {
		l.Unlock()
	}
	t.held = map[string]*sync.Mutex{}
	t.done = true
}

func bookKey(id uint64) string   { return fmt.Sprintf("book:%d", id) }
func borrowKey(id uint64) string { return fmt.Sprintf("borrow:%d", id) }

func (t *memTx) LockAvailableBook(_ context.Context, bookID uint64) error {
	t.lock(bookKey(bookID))
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	b, ok := t.m.books[bookID]
	if !ok || b.available+t.deltas[bookID] <= 0 {
		return repository.ErrBookUnavailable
	}
	return nil
}

func (t *memTx) AdjustAvailable(_ context.Context, bookID uint64, delta int) error {
	t.lock(bookKey(bookID))
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	b, ok := t.m.books[bookID]
	if !ok {
		return repository.ErrInventoryConflict
	}
	next := b.available + t.deltas[bookID] + delta
	if next < 0 || next > b.quantity {
		return repository.ErrInventoryConflict
	}
	t.deltas[bookID] += delta
	t.staged = append(t.staged, func() { t.m.books[bookID].available += delta })
	return nil
}

func (t *memTx) CreateTransaction(_ context.Context, bookID, borrowerID uint64, at time.Time) (uint64, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if !t.m.borrowers[borrowerID] {
		return 0, repository.ErrBorrowerNotFound
	}
	t.m.nextTxID++
	id := t.m.nextTxID
	tr := model.Transaction{ID: id, BookID: bookID, BorrowerID: borrowerID, CreatedAt: at}
	t.staged = append(t.staged, func() { t.m.txs[id] = tr })
	return id, nil
}

func (t *memTx) CreateBorrow(_ context.Context, transactionID uint64, returnDate *time.Time) error {
	if t.m.failCreateBorrow != nil {
		return t.m.failCreateBorrow
	}
	t.lock(borrowKey(transactionID))
	b := &model.Borrow{TransactionID: transactionID, ReturnDate: returnDate}
	t.staged = append(t.staged, func() { t.m.borrows[transactionID] = b })
	return nil
}

func (t *memTx) LockOpenBorrow(_ context.Context, transactionID uint64) (uint64, error) {
	t.lock(borrowKey(transactionID))
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	b, ok := t.m.borrows[transactionID]
	if !ok || b.ActualReturnDate != nil {
		return 0, repository.ErrBorrowNotFound
	}
	return t.m.txs[transactionID].BookID, nil
}

func (t *memTx) SetActualReturnDate(_ context.Context, transactionID uint64, at time.Time) error {
	if _, ok := t.held[borrowKey(transactionID)]; !ok {
		return errors.New("borrow row not locked")
	}
	t.staged = append(t.staged, func() {
		ts := at
		t.m.borrows[transactionID].ActualReturnDate = &ts
	})
	return nil
}

func (t *memTx) DeleteBorrow(_ context.Context, transactionID uint64) error {
	if _, ok := t.held[borrowKey(transactionID)]; !ok {
		return errors.New("borrow row not locked")
	}
	t.staged = append(t.staged, func() { delete(t.m.borrows, transactionID) })
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.m.mu.Lock()
	for _, apply := range t.staged {
		apply()
	}
	t.m.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.staged = nil
	t.release()
	return nil
}

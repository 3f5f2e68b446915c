package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BorrowStatus is the derived state of a borrow.  It is never stored; it
// is computed from the expected and actual return dates.
type BorrowStatus string

const (
	StatusBorrowed BorrowStatus = "borrowed"
	StatusOverdue  BorrowStatus = "overdue"
	StatusReturned BorrowStatus = "returned"
)

// ErrInvalidStatus is returned when a status string is not one of the
// known values.
var ErrInvalidStatus = errors.New("invalid borrow status")

// ParseBorrowStatus converts user input into a BorrowStatus.  Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseBorrowStatus(s string) (BorrowStatus, error) {
	switch st := BorrowStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusBorrowed, StatusOverdue, StatusReturned:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// DeriveStatus computes the status of a borrow at instant now.  A borrow
// with an actual return date is returned; otherwise it is overdue once the
// expected return date lies strictly before now.
func DeriveStatus(returnDate, actualReturnDate *time.Time, now time.Time) BorrowStatus {
	if actualReturnDate != nil {
		return StatusReturned
	}
	if returnDate != nil && returnDate.Before(now) {
		return StatusOverdue
	}
	return StatusBorrowed
}

// Borrow mirrors a row of the `borrows` table.  TransactionID is both the
// primary key and the foreign key to the owning Transaction.
type Borrow struct {
	TransactionID    uint64     `json:"transaction_id" db:"transaction_id"`
	ReturnDate       *time.Time `json:"return_date" db:"return_date"`
	ActualReturnDate *time.Time `json:"actual_return_date" db:"actual_return_date"`
}

// Status returns the derived status at instant now.
func (b Borrow) Status(now time.Time) BorrowStatus {
	return DeriveStatus(b.ReturnDate, b.ActualReturnDate, now)
}

// BookSummary is the slice of a book embedded in borrow listings.
type BookSummary struct {
	ID     uint64 `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
}

// BorrowerSummary is the slice of a borrower embedded in borrow listings.
type BorrowerSummary struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BorrowDetail is a borrow joined with its transaction, book and borrower.
// Status is filled in when the row is read.
type BorrowDetail struct {
	TransactionID    uint64          `json:"transaction_id"`
	BookID           uint64          `json:"book_id"`
	BorrowerID       uint64          `json:"borrower_id"`
	BorrowedAt       time.Time       `json:"borrowed_at"`
	ReturnDate       *time.Time      `json:"return_date"`
	ActualReturnDate *time.Time      `json:"actual_return_date"`
	Status           BorrowStatus    `json:"status"`
	Book             BookSummary     `json:"book"`
	Borrower         BorrowerSummary `json:"borrower"`
}

// CreateBorrowInput is the checkout request handed to the lifecycle engine.
// Callers validate that both IDs are positive before invoking it.
type CreateBorrowInput struct {
	BookID     uint64
	BorrowerID uint64
	ReturnDate *time.Time
}

// BorrowPatch is an administrative correction of the two date columns.
// It bypasses the inventory ledger.
type BorrowPatch struct {
	ReturnDate       *time.Time `json:"return_date"`
	ActualReturnDate *time.Time `json:"actual_return_date"`
}

// IsEmpty reports whether the patch changes nothing.
func (p BorrowPatch) IsEmpty() bool { return p.ReturnDate == nil && p.ActualReturnDate == nil }

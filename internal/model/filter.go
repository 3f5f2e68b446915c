package model

import (
	"errors"
	"fmt"
	"time"
)

// Pagination defaults shared by every list endpoint.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrInvalidFilter is returned for filter combinations that cannot be
// translated into a query.
var ErrInvalidFilter = errors.New("invalid filter")

// BorrowSort selects the ordering of a borrow listing.
type BorrowSort int

const (
	// SortNewest orders by checkout time, most recent first.
	SortNewest BorrowSort = iota
	// SortDueDate orders by expected return date, earliest first.
	SortDueDate
)

// BorrowFilter is the closed set of criteria accepted by the borrow query
// layer.  Every field is optional.  Authorization narrowing is expected to
// have been applied by the caller through BorrowerID.
type BorrowFilter struct {
	Status           *BorrowStatus
	ReturnDateBefore *time.Time
	ReturnDateAfter  *time.Time
	BookID           *uint64
	BorrowerID       *uint64
	Page             int
	Limit            int
	Sort             BorrowSort
}

// Normalize fills pagination defaults and caps the page size.
func (f *BorrowFilter) Normalize() {
	f.Page, f.Limit = NormalizePage(f.Page, f.Limit)
}

// Validate rejects filters that cannot match anything meaningful.
func (f BorrowFilter) Validate() error {
	if f.Status != nil {
		switch *f.Status {
		case StatusBorrowed, StatusOverdue, StatusReturned:
		default:
			// callers parse user input with ParseBorrowStatus first
			return fmt.Errorf("%w: %v %q", ErrInvalidFilter, ErrInvalidStatus, string(*f.Status))
		}
	}
	if f.ReturnDateBefore != nil && f.ReturnDateAfter != nil && f.ReturnDateBefore.Before(*f.ReturnDateAfter) {
		return fmt.Errorf("%w: returnDateBefore precedes returnDateAfter", ErrInvalidFilter)
	}
	if f.BookID != nil && *f.BookID == 0 {
		return fmt.Errorf("%w: bookId must be positive", ErrInvalidFilter)
	}
	if f.BorrowerID != nil && *f.BorrowerID == 0 {
		return fmt.Errorf("%w: borrowerId must be positive", ErrInvalidFilter)
	}
	if f.Page < 0 || f.Limit < 0 {
		return fmt.Errorf("%w: page and limit must not be negative", ErrInvalidFilter)
	}
	return nil
}

// HasReturnDateRange reports whether either range bound is set.
func (f BorrowFilter) HasReturnDateRange() bool {
	return f.ReturnDateBefore != nil || f.ReturnDateAfter != nil
}

// Offset returns the row offset of the requested page.
func (f BorrowFilter) Offset() int { return (f.Page - 1) * f.Limit }

// NormalizePage applies the default page and limit and caps the limit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// BorrowPage is one page of a borrow listing plus the total match count.
type BorrowPage struct {
	Items []BorrowDetail `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

package repository

import (
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/iliyamo/library-management/internal/model"
)

const dialectMySQL = "mysql"

// Column identifiers of the joined borrow read model.
var (
	colReturnDate       = goqu.I("br.return_date")
	colActualReturnDate = goqu.I("br.actual_return_date")
	colBookID           = goqu.I("t.book_id")
	colBorrowerID       = goqu.I("t.borrower_id")
	colBorrowedAt       = goqu.I("t.created_at")
	colTransactionID    = goqu.I("br.transaction_id")
)

// borrowFrom joins a borrow with its transaction, book and borrower.
func borrowFrom() *goqu.SelectDataset {
	return goqu.Dialect(dialectMySQL).
		From(goqu.T("borrows").As("br")).
		Join(goqu.T("transactions").As("t"), goqu.On(goqu.I("t.id").Eq(colTransactionID))).
		Join(goqu.T("books").As("bk"), goqu.On(goqu.I("bk.id").Eq(colBookID))).
		Join(goqu.T("borrowers").As("bw"), goqu.On(goqu.I("bw.id").Eq(colBorrowerID))).
		Prepared(true)
}

// borrowColumns are the aliased columns scanned into borrowRow.
func borrowColumns() []interface{} {
	return []interface{}{
		colTransactionID.As("transaction_id"),
		colBookID.As("book_id"),
		colBorrowerID.As("borrower_id"),
		colBorrowedAt.As("borrowed_at"),
		colReturnDate.As("return_date"),
		colActualReturnDate.As("actual_return_date"),
		goqu.I("bk.title").As("book_title"),
		goqu.I("bk.author").As("book_author"),
		goqu.I("bk.isbn").As("book_isbn"),
		goqu.I("bw.name").As("borrower_name"),
		goqu.I("bw.email").As("borrower_email"),
	}
}

// borrowConditions translates a validated filter into WHERE predicates.
// now anchors the overdue cut-off so that it agrees with DeriveStatus.
//
// Status and the return date range share the return_date column.  When
// an overdue filter is combined with a range, the range replaces the
// `return_date < now` bound and only the open-borrow predicate of the
// status survives.
func borrowConditions(f model.BorrowFilter, now time.Time) ([]exp.Expression, error) {
	conds := make([]exp.Expression, 0, 6)

	var returnDateCond []exp.Expression
	if f.Status != nil {
		switch *f.Status {
		case model.StatusBorrowed:
			conds = append(conds, colActualReturnDate.IsNull())
		case model.StatusReturned:
			conds = append(conds, colActualReturnDate.IsNotNull())
		case model.StatusOverdue:
			conds = append(conds, colActualReturnDate.IsNull())
			returnDateCond = []exp.Expression{colReturnDate.Lt(now)}
		default:
			return nil, fmt.Errorf("%w: unsupported status %q", model.ErrInvalidFilter, string(*f.Status))
		}
	}
	if f.HasReturnDateRange() {
		returnDateCond = returnDateCond[:0]
		if f.ReturnDateAfter != nil {
			returnDateCond = append(returnDateCond, colReturnDate.Gte(*f.ReturnDateAfter))
		}
		if f.ReturnDateBefore != nil {
			returnDateCond = append(returnDateCond, colReturnDate.Lte(*f.ReturnDateBefore))
		}
	}
	conds = append(conds, returnDateCond...)

	if f.BookID != nil {
		conds = append(conds, colBookID.Eq(*f.BookID))
	}
	if f.BorrowerID != nil {
		conds = append(conds, colBorrowerID.Eq(*f.BorrowerID))
	}
	return conds, nil
}

// buildBorrowSearch returns the page query and the count query for f.
// f must be normalized and validated.
func buildBorrowSearch(f model.BorrowFilter, now time.Time) (pageSQL string, pageArgs []interface{}, countSQL string, countArgs []interface{}, err error) {
	conds, err := borrowConditions(f, now)
	if err != nil {
		return "", nil, "", nil, err
	}

	countSQL, countArgs, err = borrowFrom().
		Select(goqu.COUNT(goqu.Star()).As("total")).
		Where(conds...).
		ToSQL()
	if err != nil {
		return "", nil, "", nil, err
	}

	order := []exp.OrderedExpression{colBorrowedAt.Desc(), goqu.I("t.id").Desc()}
	if f.Sort == model.SortDueDate {
		order = []exp.OrderedExpression{colReturnDate.Asc(), colTransactionID.Asc()}
	}

	pageSQL, pageArgs, err = borrowFrom().
		Select(borrowColumns()...).
		Where(conds...).
		Order(order...).
		Limit(uint(f.Limit)).
		Offset(uint(f.Offset())).
		ToSQL()
	if err != nil {
		return "", nil, "", nil, err
	}
	return pageSQL, pageArgs, countSQL, countArgs, nil
}

// buildBorrowGet returns the point lookup of one borrow.
func buildBorrowGet(transactionID uint64) (string, []interface{}, error) {
	return borrowFrom().
		Select(borrowColumns()...).
		Where(colTransactionID.Eq(transactionID)).
		Limit(1).
		ToSQL()
}

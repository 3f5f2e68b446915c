package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/library-management/internal/model"
)

// BorrowRepo reads borrows joined with their transaction, book and
// borrower, applies administrative patches and opens ledger
// transactions for the lifecycle engine.
type BorrowRepo struct {
	db  *sql.DB
	dbx *sqlx.DB
}

// NewBorrowRepo returns a BorrowRepo bound to the given pool.
func NewBorrowRepo(db *sql.DB) *BorrowRepo {
	return &BorrowRepo{db: db, dbx: sqlx.NewDb(db, "mysql")}
}

// borrowRow is the flat shape of the joined borrow read model.
type borrowRow struct {
	TransactionID    uint64       `db:"transaction_id"`
	BookID           uint64       `db:"book_id"`
	BorrowerID       uint64       `db:"borrower_id"`
	BorrowedAt       time.Time    `db:"borrowed_at"`
	ReturnDate       sql.NullTime `db:"return_date"`
	ActualReturnDate sql.NullTime `db:"actual_return_date"`
	BookTitle        string       `db:"book_title"`
	BookAuthor       string       `db:"book_author"`
	BookISBN         string       `db:"book_isbn"`
	BorrowerName     string       `db:"borrower_name"`
	BorrowerEmail    string       `db:"borrower_email"`
}

func (r borrowRow) detail(now time.Time) model.BorrowDetail {
	d := model.BorrowDetail{
		TransactionID: r.TransactionID,
		BookID:        r.BookID,
		BorrowerID:    r.BorrowerID,
		BorrowedAt:    r.BorrowedAt.UTC(),
		Book:          model.BookSummary{ID: r.BookID, Title: r.BookTitle, Author: r.BookAuthor, ISBN: r.BookISBN},
		Borrower:      model.BorrowerSummary{ID: r.BorrowerID, Name: r.BorrowerName, Email: r.BorrowerEmail},
	}
	if r.ReturnDate.Valid {
		t := r.ReturnDate.Time.UTC()
		d.ReturnDate = &t
	}
	if r.ActualReturnDate.Valid {
		t := r.ActualReturnDate.Time.UTC()
		d.ActualReturnDate = &t
	}
	d.Status = model.DeriveStatus(d.ReturnDate, d.ActualReturnDate, now)
	return d
}

// GetDetail returns one borrow with its derived status at now.  It
// returns ErrBorrowNotFound when no borrow has that transaction id.
func (r *BorrowRepo) GetDetail(ctx context.Context, transactionID uint64, now time.Time) (*model.BorrowDetail, error) {
	q, args, err := buildBorrowGet(transactionID)
	if err != nil {
		return nil, err
	}
	var row borrowRow
	if err := r.dbx.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBorrowNotFound
		}
		return nil, err
	}
	d := row.detail(now)
	return &d, nil
}

// Search returns one page of borrows matching f and the total number of
// matches.  f is normalized and validated here; an invalid filter wraps
// model.ErrInvalidFilter.  The filter is trusted as given: callers narrow
// it to the borrower they are allowed to see.
func (r *BorrowRepo) Search(ctx context.Context, f model.BorrowFilter, now time.Time) (model.BorrowPage, error) {
	if err := f.Validate(); err != nil {
		return model.BorrowPage{}, err
	}
	f.Normalize()

	pageSQL, pageArgs, countSQL, countArgs, err := buildBorrowSearch(f, now)
	if err != nil {
		return model.BorrowPage{}, err
	}

	var total int64
	if err := r.dbx.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return model.BorrowPage{}, err
	}

	out := model.BorrowPage{Items: []model.BorrowDetail{}, Total: total, Page: f.Page, Limit: f.Limit}
	if total == 0 {
		return out, nil
	}

	var rows []borrowRow
	if err := r.dbx.SelectContext(ctx, &rows, pageSQL, pageArgs...); err != nil {
		return model.BorrowPage{}, err
	}
	for _, row := range rows {
		out.Items = append(out.Items, row.detail(now))
	}
	return out, nil
}

// Update applies an administrative correction of the two date columns.
// It does not touch the available counter.  An empty patch yields
// ErrNoChange and an unknown transaction id ErrBorrowNotFound.
func (r *BorrowRepo) Update(ctx context.Context, transactionID uint64, p model.BorrowPatch) error {
	if p.IsEmpty() {
		return ErrNoChange
	}
	rec := goqu.Record{}
	if p.ReturnDate != nil {
		rec["return_date"] = p.ReturnDate.UTC()
	}
	if p.ActualReturnDate != nil {
		rec["actual_return_date"] = p.ActualReturnDate.UTC()
	}
	q, args, err := goqu.Dialect(dialectMySQL).
		Update("borrows").
		Prepared(true).
		Set(rec).
		Where(goqu.C("transaction_id").Eq(transactionID)).
		ToSQL()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the values did not change.
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM borrows WHERE transaction_id = ?`, transactionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBorrowNotFound
	}
	return err
}

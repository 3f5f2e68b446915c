// This file defines the book repository.  Books carry the inventory
// counters of the library: quantity is the number of copies owned and
// available the number on the shelf.  The borrow ledger moves available
// under a row lock; the only other writer is Update, which takes the same
// lock before changing quantity.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"github.com/iliyamo/library-management/internal/model"
)

// BookRepo encapsulates all database queries related to books.
type BookRepo struct {
	db *sql.DB
}

// NewBookRepo constructs a BookRepo with the provided DB handle.
func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{db: db} }

const bookColumns = "id, title, author, isbn, quantity, available, shelf_location, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(s rowScanner) (*model.Book, error) {
	var b model.Book
	if err := s.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Quantity, &b.Available,
		&b.ShelfLocation, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a new book with every copy on the shelf.  On success the
// book's ID, Available and timestamps are populated.  A duplicate ISBN
// yields ErrISBNExists.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	const q = `INSERT INTO books (title, author, isbn, quantity, available, shelf_location) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, b.Title, b.Author, b.ISBN, b.Quantity, b.Quantity, b.ShelfLocation)
	if err != nil {
		if isDuplicate(err) {
			return ErrISBNExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*b = *created
	return nil
}

// GetByID returns ErrBookNotFound when no row matches.
func (r *BookRepo) GetByID(ctx context.Context, id uint64) (*model.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	return b, err
}

// GetByISBN looks a book up by its unique ISBN.
func (r *BookRepo) GetByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE isbn = ?", strings.TrimSpace(isbn)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	return b, err
}

// List returns a page of books whose title and author contain the given
// substrings, ordered by title, plus the total number of matches.
func (r *BookRepo) List(ctx context.Context, f model.BookQuery) ([]model.Book, int64, error) {
	page, limit := model.NormalizePage(f.Page, f.Limit)
	base := goqu.Dialect(dialectMySQL).From("books").Prepared(true)
	if s := strings.TrimSpace(f.Title); s != "" {
		base = base.Where(goqu.C("title").ILike("%" + escapeLike(s) + "%"))
	}
	if s := strings.TrimSpace(f.Author); s != "" {
		base = base.Where(goqu.C("author").ILike("%" + escapeLike(s) + "%"))
	}

	countSQL, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageSQL, pageArgs, err := base.
		Select(goqu.L(bookColumns)).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc()).
		Limit(uint(limit)).
		Offset(uint((page - 1) * limit)).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	books := []model.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		books = append(books, *b)
	}
	return books, total, rows.Err()
}

// Update applies a partial update.  A quantity change locks the book row
// and keeps the number of checked out copies: available becomes
// newQuantity - checkedOut.  Shrinking quantity below the copies that are
// currently out yields ErrInventoryConflict.
func (r *BookRepo) Update(ctx context.Context, id uint64, p model.BookPatch) (*model.Book, error) {
	if p.IsEmpty() {
		return nil, ErrNoChange
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var quantity, available uint32
	err = tx.QueryRowContext(ctx, `SELECT quantity, available FROM books WHERE id = ? FOR UPDATE`, id).Scan(&quantity, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	rec := goqu.Record{}
	if p.Title != nil {
		rec["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Author != nil {
		rec["author"] = strings.TrimSpace(*p.Author)
	}
	if p.ISBN != nil {
		rec["isbn"] = strings.TrimSpace(*p.ISBN)
	}
	if p.ShelfLocation != nil {
		rec["shelf_location"] = strings.TrimSpace(*p.ShelfLocation)
	}
	if p.Quantity != nil {
		checkedOut := model.Book{Quantity: quantity, Available: available}.CheckedOut()
		if *p.Quantity < checkedOut {
			return nil, ErrInventoryConflict
		}
		rec["quantity"] = *p.Quantity
		rec["available"] = *p.Quantity - checkedOut
	}

	q, args, err := goqu.Dialect(dialectMySQL).Update("books").Prepared(true).
		Set(rec).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		if isDuplicate(err) {
			return nil, ErrISBNExists
		}
		return nil, err
	}
	b, err := scanBook(tx.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return b, nil
}

// Delete removes a book.  Its transactions and borrows go with it through
// the foreign key cascade.
func (r *BookRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res, ErrBookNotFound)
}

// escapeLike neutralizes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

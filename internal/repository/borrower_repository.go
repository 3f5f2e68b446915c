package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"github.com/iliyamo/library-management/internal/model"
)

// BorrowerRepo provides CRUD operations for library members.
type BorrowerRepo struct {
	db *sql.DB
}

// NewBorrowerRepo returns a BorrowerRepo bound to the given database.
func NewBorrowerRepo(db *sql.DB) *BorrowerRepo { return &BorrowerRepo{db: db} }

const borrowerColumns = "id, name, email, created_at, updated_at"

func scanBorrower(s rowScanner) (*model.Borrower, error) {
	var b model.Borrower
	if err := s.Scan(&b.ID, &b.Name, &b.Email, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a borrower.  Emails are stored trimmed and lower-cased; a
// duplicate yields ErrEmailExists.
func (r *BorrowerRepo) Create(ctx context.Context, b *model.Borrower) error {
	b.Name = strings.TrimSpace(b.Name)
	b.Email = normalizeEmail(b.Email)
	res, err := r.db.ExecContext(ctx, `INSERT INTO borrowers (name, email) VALUES (?, ?)`, b.Name, b.Email)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
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

// GetByID returns ErrBorrowerNotFound when no row matches.
func (r *BorrowerRepo) GetByID(ctx context.Context, id uint64) (*model.Borrower, error) {
	b, err := scanBorrower(r.db.QueryRowContext(ctx, "SELECT "+borrowerColumns+" FROM borrowers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	return b, err
}

// GetByEmail returns ErrBorrowerNotFound when no row matches.
func (r *BorrowerRepo) GetByEmail(ctx context.Context, email string) (*model.Borrower, error) {
	b, err := scanBorrower(r.db.QueryRowContext(ctx, "SELECT "+borrowerColumns+" FROM borrowers WHERE email = ?", normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	return b, err
}

// List returns borrowers whose name and email start with the given
// prefixes, ordered by name, together with the total match count.
func (r *BorrowerRepo) List(ctx context.Context, f model.BorrowerQuery) ([]model.Borrower, int64, error) {
	page, limit := model.NormalizePage(f.Page, f.Limit)
	base := goqu.Dialect(dialectMySQL).From("borrowers").Prepared(true)
	if s := strings.TrimSpace(f.Name); s != "" {
		base = base.Where(goqu.C("name").ILike(escapeLike(s) + "%"))
	}
	if s := strings.TrimSpace(f.Email); s != "" {
		base = base.Where(goqu.C("email").ILike(escapeLike(strings.ToLower(s)) + "%"))
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
		Select(goqu.L(borrowerColumns)).
		Order(goqu.C("name").Asc(), goqu.C("id").Asc()).
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
	out := []model.Borrower{}
	for rows.Next() {
		b, err := scanBorrower(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

// Update changes name and/or email.
func (r *BorrowerRepo) Update(ctx context.Context, id uint64, p model.BorrowerPatch) (*model.Borrower, error) {
	if p.IsEmpty() {
		return nil, ErrNoChange
	}
	rec := goqu.Record{}
	if p.Name != nil {
		rec["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		rec["email"] = normalizeEmail(*p.Email)
	}
	q, args, err := goqu.Dialect(dialectMySQL).Update("borrowers").Prepared(true).
		Set(rec).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		if isDuplicate(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a borrower and, through the cascade, their returned
// history.  A borrower who still holds copies yields ErrConflict: the
// cascade would drop the open borrows without putting the copies back.
// The borrower row is locked first, which blocks concurrent checkouts
// on the foreign key check.
func (r *BorrowerRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked uint64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM borrowers WHERE id = ? FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBorrowerNotFound
		}
		return err
	}
	const openQ = `SELECT COUNT(*) FROM borrows br
	               JOIN transactions t ON t.id = br.transaction_id
	               WHERE t.borrower_id = ? AND br.actual_return_date IS NULL`
	var open int
	if err := tx.QueryRowContext(ctx, openQ, id).Scan(&open); err != nil {
		return err
	}
	if open > 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM borrowers WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,name,email,password_hash,role,borrower_id,created_at,updated_at"

func scanUser(s rowScanner) (*model.User, error) {
	var u model.User
	var bid sql.NullInt64
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &bid, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if bid.Valid {
		v := uint64(bid.Int64)
		u.BorrowerID = &v
	}
	return &u, nil
}

// Create hashes the password and inserts the user, optionally linked to a
// borrower record.  It returns the new ID.
func (r *UserRepo) Create(ctx context.Context, name, email, password, role string, cost int, borrowerID *uint64) (uint64, error) {
	email = normalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	var bid sql.NullInt64
	if borrowerID != nil {
		bid = sql.NullInt64{Int64: int64(*borrowerID), Valid: true}
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role, borrower_id) VALUES (?,?,?,?,?)",
		strings.TrimSpace(name), email, hash, role, bid)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetRole changes the role of the user with the given email.
func (r *UserRepo) SetRole(ctx context.Context, email, role string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET role=? WHERE email=?", role, normalizeEmail(email))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByEmail(ctx, email); err != nil {
			return err
		}
	}
	return nil
}

package model

import "time"

// Borrower is a library patron that can check out books.  Rows live in
// the `borrowers` table; the email is unique.
type Borrower struct {
	ID        uint64    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BorrowerPatch carries the optional fields of a borrower update.
type BorrowerPatch struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
}

// IsEmpty reports whether the patch changes nothing.
func (p BorrowerPatch) IsEmpty() bool { return p.Name == nil && p.Email == nil }

// BorrowerQuery filters the borrower listing by name/email prefix.
type BorrowerQuery struct {
	Name  string
	Email string
	Page  int
	Limit int
}

package model

import "time"

// Book represents a title held by the library as stored in the `books`
// table.  Quantity is the number of physical copies owned; Available is
// the number of copies currently on the shelf.  The pair always satisfies
// 0 <= Available <= Quantity.  Available is only changed inside a
// transaction that holds the row lock on the book.
//
// Fields:
//  ID            – primary key identifier.
//  Title         – book title.
//  Author        – author name.
//  ISBN          – unique ISBN-10 or ISBN-13.
//  Quantity      – total copies owned.
//  Available     – copies not checked out.
//  ShelfLocation – where the copies are shelved.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Book struct {
	ID            uint64    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Author        string    `json:"author" db:"author"`
	ISBN          string    `json:"isbn" db:"isbn"`
	Quantity      uint32    `json:"quantity" db:"quantity"`
	Available     uint32    `json:"available" db:"available"`
	ShelfLocation string    `json:"shelf_location" db:"shelf_location"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// CheckedOut returns the number of copies currently lent out.
func (b Book) CheckedOut() uint32 {
	if b.Available > b.Quantity {
		return 0
	}
	return b.Quantity - b.Available
}

// BookPatch carries the optional fields of a book update.  Nil fields are
// left untouched.
type BookPatch struct {
	Title         *string `json:"title" validate:"omitempty,min=1,max=255"`
	Author        *string `json:"author" validate:"omitempty,min=1,max=255"`
	ISBN          *string `json:"isbn" validate:"omitempty,isbn"`
	Quantity      *uint32 `json:"quantity" validate:"omitempty,min=1"`
	ShelfLocation *string `json:"shelf_location" validate:"omitempty,min=1,max=64"`
}

// IsEmpty reports whether the patch changes nothing.
func (p BookPatch) IsEmpty() bool {
	return p.Title == nil && p.Author == nil && p.ISBN == nil && p.Quantity == nil && p.ShelfLocation == nil
}

// BookQuery filters the book listing.  Title and Author match as
// case-insensitive substrings.
type BookQuery struct {
	Title  string
	Author string
	Page   int
	Limit  int
}

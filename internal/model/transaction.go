package model

import "time"

// Transaction records that a borrower checked out a copy of a book at a
// point in time.  Rows in `transactions` are never updated by the borrow
// lifecycle; they disappear only through a cascade when the book or the
// borrower is deleted.
//
// Fields:
//  ID         – primary key identifier, also the key of the paired Borrow.
//  BookID     – book that was checked out.
//  BorrowerID – borrower who checked it out.
//  CreatedAt  – checkout time.
type Transaction struct {
	ID         uint64    `json:"id" db:"id"`
	BookID     uint64    `json:"book_id" db:"book_id"`
	BorrowerID uint64    `json:"borrower_id" db:"borrower_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

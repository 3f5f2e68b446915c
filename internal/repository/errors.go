// Package repository contains the MySQL data access code.  Sentinel errors
// defined here let higher layers such as the borrow service and the HTTP
// handlers tell failure scenarios apart with errors.Is.  For example
// ErrBookUnavailable means a checkout found no copy on the shelf, while
// ErrInventoryConflict signals that an update would break the
// 0 <= available <= quantity rule on a book.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrBookNotFound is returned when no book has the requested id.
	ErrBookNotFound = errors.New("book not found")
	// ErrBookUnavailable is returned when a checkout finds no available
	// copy.  A book id that does not exist reports the same error.
	ErrBookUnavailable = errors.New("book unavailable")
	// ErrBorrowNotFound is returned when no open (or, for reads, any)
	// borrow exists for a transaction id.
	ErrBorrowNotFound = errors.New("borrow not found")
	// ErrBorrowerNotFound is returned when the borrower id is unknown.
	ErrBorrowerNotFound = errors.New("borrower not found")
	// ErrUserNotFound is returned when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrISBNExists is returned when a book with the same ISBN exists.
	ErrISBNExists = errors.New("isbn already exists")
	// ErrEmailExists is returned when the email is already registered.
	ErrEmailExists = errors.New("email already exists")
	// ErrInventoryConflict is returned when an update to a book's counters
	// would leave available outside [0, quantity].
	ErrInventoryConflict = errors.New("inventory conflict")
	// ErrNoChange is returned for an update that carries no fields.
	ErrNoChange = errors.New("nothing to update")
)

// ErrForbidden is returned when the caller attempts an operation on a
// record owned by someone else.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete cannot be performed because of
// dependent state, such as removing a book that still has copies out.
// Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// MySQL server error numbers the repositories react to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlNoReferencedRow = 1452
	mysqlRowIsReferenced = 1451
)

// mysqlErrNumber extracts the server error number from err, or 0.
func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool     { return mysqlErrNumber(err) == mysqlDuplicateEntry }
func isMissingParent(err error) bool { return mysqlErrNumber(err) == mysqlNoReferencedRow }
func isReferenced(err error) bool    { return mysqlErrNumber(err) == mysqlRowIsReferenced }

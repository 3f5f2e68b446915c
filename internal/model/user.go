package model

import "time"

// Roles recognised by the API.
const (
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// User represents an account able to call the API, stored in the `users`
// table.  BorrowerID links the account to a library patron; members
// without a linked borrower cannot borrow or list borrows.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Name         – display name.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN or MEMBER.
//  BorrowerID   – linked borrower (nullable).
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Name         string    // users.name
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	BorrowerID   *uint64   // users.borrower_id (nullable)
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

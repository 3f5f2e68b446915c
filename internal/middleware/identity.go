package middleware

// identity.go holds the context keys written by JWTAuth and the accessors
// handlers and other middleware use to read them.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/utils"
)

const (
	ctxUserID     = "user_id"
	ctxRole       = "role"
	ctxBorrowerID = "borrower_id"
)

// SetIdentity stores an authenticated identity on the context.
func SetIdentity(c echo.Context, id utils.Identity) {
	c.Set(ctxUserID, id.UserID)
	c.Set(ctxRole, id.Role)
	if id.BorrowerID != nil {
		c.Set(ctxBorrowerID, *id.BorrowerID)
	}
}

// UserID returns the authenticated user id, or false for anonymous
// requests.
func UserID(c echo.Context) (uint64, bool) {
	v, ok := c.Get(ctxUserID).(uint64)
	return v, ok && v != 0
}

// Role returns the caller's role or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// IsAdmin reports whether the caller holds the ADMIN role.
func IsAdmin(c echo.Context) bool { return Role(c) == model.RoleAdmin }

// BorrowerID returns the library member record linked to the caller.
func BorrowerID(c echo.Context) (uint64, bool) {
	v, ok := c.Get(ctxBorrowerID).(uint64)
	return v, ok && v != 0
}

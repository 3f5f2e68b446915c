package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-management/internal/handler"
	"github.com/iliyamo/library-management/internal/middleware"
	"github.com/iliyamo/library-management/internal/model"
)

// Library groups the handlers and per-route middleware of the library API.
// BorrowLimit and ReportLimit may be nil, in which case the routes are not
// rate limited.
type Library struct {
	Books       *handler.BookHandler
	Borrowers   *handler.BorrowerHandler
	Borrows     *handler.BorrowHandler
	Reports     *handler.ReportHandler
	BorrowLimit echo.MiddlewareFunc
	ReportLimit echo.MiddlewareFunc
}

// RegisterLibrary registers the catalogue, borrower and borrow endpoints
// under /v1.  Every route needs a valid JWT; writes to the catalogue and
// administrative borrow corrections need ADMIN.
func RegisterLibrary(e *echo.Echo, l Library, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleMember),
	)
	admin := middleware.RequireRole(model.RoleAdmin)

	// ---- Books ----
	g.GET("/books", l.Books.List)
	g.GET("/books/isbn/:isbn", l.Books.GetByISBN)
	g.GET("/books/:id", l.Books.Get)
	g.POST("/books", l.Books.Create, admin)
	g.PATCH("/books/:id", l.Books.Update, admin)
	g.PUT("/books/:id", l.Books.Update, admin)
	g.DELETE("/books/:id", l.Books.Delete, admin)
	g.GET("/books/:id/borrows", l.Borrows.ByBook, admin)

	// ---- Borrowers ----
	g.GET("/borrowers", l.Borrowers.List, admin)
	g.POST("/borrowers", l.Borrowers.Create, admin)
	g.GET("/borrowers/:id", l.Borrowers.Get)
	g.PATCH("/borrowers/:id", l.Borrowers.Update, admin)
	g.DELETE("/borrowers/:id", l.Borrowers.Delete, admin)
	g.GET("/borrowers/:id/borrows", l.Borrows.ByBorrower)

	// ---- Borrows ----
	g.POST("/borrows", l.Borrows.Create, optional(l.BorrowLimit)...)
	g.GET("/borrows", l.Borrows.List)
	g.GET("/borrows/overdue", l.Borrows.Overdue, admin)
	g.GET("/borrows/:transactionId", l.Borrows.Get)
	g.POST("/borrows/:transactionId/return", l.Borrows.Return)
	g.PATCH("/borrows/:transactionId", l.Borrows.Update, admin)
	g.DELETE("/borrows/:transactionId", l.Borrows.Delete, admin)

	// ---- Reports ----
	g.GET("/reports/borrows", l.Reports.Borrows, optional(l.ReportLimit)...)
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}

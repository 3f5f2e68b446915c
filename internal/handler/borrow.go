package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-management/internal/middleware"
	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/repository"
)

// BorrowEngine is the part of the borrow lifecycle engine the HTTP layer
// drives.  *service.BorrowService implements it.
type BorrowEngine interface {
	CreateBorrow(ctx context.Context, in model.CreateBorrowInput) (uint64, error)
	ReturnBook(ctx context.Context, transactionID uint64) error
	DeleteBorrow(ctx context.Context, transactionID uint64) error
	UpdateBorrow(ctx context.Context, transactionID uint64, p model.BorrowPatch) (*model.BorrowDetail, error)
	GetBorrow(ctx context.Context, transactionID uint64) (*model.BorrowDetail, error)
	ListBorrows(ctx context.Context, f model.BorrowFilter) (model.BorrowPage, error)
	OverdueBorrows(ctx context.Context, page, limit int) (model.BorrowPage, error)
	BorrowsByBorrower(ctx context.Context, borrowerID uint64, page, limit int) (model.BorrowPage, error)
	BorrowsByBook(ctx context.Context, bookID uint64, page, limit int) (model.BorrowPage, error)
}

// BorrowHandler exposes checkout, return and the borrow listings.  It is
// where non-admin callers get narrowed to their own borrower record.
type BorrowHandler struct {
	Borrows BorrowEngine
	now     func() time.Time
}

func NewBorrowHandler(engine BorrowEngine) *BorrowHandler {
	return &BorrowHandler{Borrows: engine, now: time.Now}
}

type createBorrowReq struct {
	BookID     uint64 `json:"bookId" validate:"required,min=1"`
	BorrowerID uint64 `json:"borrowerId"`
	ReturnDate string `json:"returnDate" validate:"required"`
}

type updateBorrowReq struct {
	ReturnDate       *string `json:"returnDate"`
	ActualReturnDate *string `json:"actualReturnDate"`
}

// Create checks out a book.  Members borrow for themselves: borrowerId
// may be omitted and must match their own record when given.
func (h *BorrowHandler) Create(c echo.Context) error {
	var req createBorrowReq
	if done, err := bindAndValidate(c, &req); done {
		return err
	}
	due, err := parseDate(req.ReturnDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "returnDate must be a valid date"})
	}
	if due.Before(h.now().UTC().Truncate(24 * time.Hour)) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "returnDate must not be in the past"})
	}

	borrowerID := req.BorrowerID
	if !middleware.IsAdmin(c) {
		own, ok := middleware.BorrowerID(c)
		if !ok {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account is not linked to a borrower"})
		}
		if borrowerID != 0 && borrowerID != own {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "members may only borrow for themselves"})
		}
		borrowerID = own
	}
	if borrowerID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "borrowerId is required"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	txID, err := h.Borrows.CreateBorrow(ctx, model.CreateBorrowInput{BookID: req.BookID, BorrowerID: borrowerID, ReturnDate: &due})
	if err != nil {
		return writeError(c, err)
	}
	item, err := h.Borrows.GetBorrow(ctx, txID)
	if err != nil {
		// the checkout is committed; report it even if the read-back failed
		return c.JSON(http.StatusCreated, echo.Map{"item": echo.Map{"transaction_id": txID}})
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": item})
}

// List answers GET /v1/borrows.
func (h *BorrowHandler) List(c echo.Context) error {
	f, err := borrowFilterFromQuery(c)
	if err != nil {
		return writeError(c, err)
	}
	if !middleware.IsAdmin(c) {
		own, ok := middleware.BorrowerID(c)
		if !ok {
			return pageResponse(c, []model.BorrowDetail{}, 0, f.Page, f.Limit)
		}
		f.BorrowerID = &own
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	page, err := h.Borrows.ListBorrows(ctx, f)
	if err != nil {
		return writeError(c, err)
	}
	return pageResponse(c, page.Items, page.Total, page.Page, page.Limit)
}

// Overdue answers GET /v1/borrows/overdue, earliest due date first.
func (h *BorrowHandler) Overdue(c echo.Context) error {
	p, l, err := pageParams(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	page, err := h.Borrows.OverdueBorrows(ctx, p, l)
	if err != nil {
		return writeError(c, err)
	}
	return pageResponse(c, page.Items, page.Total, page.Page, page.Limit)
}

// Get answers GET /v1/borrows/:transactionId.
func (h *BorrowHandler) Get(c echo.Context) error {
	id, err := parseID(c, "transactionId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	item, err := h.visibleBorrow(ctx, c, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": item})
}

// Return answers POST /v1/borrows/:transactionId/return.
func (h *BorrowHandler) Return(c echo.Context) error {
	id, err := parseID(c, "transactionId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if !middleware.IsAdmin(c) {
		if _, err := h.visibleBorrow(ctx, c, id); err != nil {
			return writeError(c, err)
		}
	}
	if err := h.Borrows.ReturnBook(ctx, id); err != nil {
		return writeError(c, err)
	}
	item, err := h.Borrows.GetBorrow(ctx, id)
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"message": "book returned"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "book returned", "item": item})
}

// Update answers PATCH /v1/borrows/:transactionId (admin).  It corrects
// dates only and never moves inventory.
func (h *BorrowHandler) Update(c echo.Context) error {
	id, err := parseID(c, "transactionId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var req updateBorrowReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	var patch model.BorrowPatch
	if req.ReturnDate != nil {
		t, err := parseDate(*req.ReturnDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "returnDate must be a valid date"})
		}
		patch.ReturnDate = &t
	}
	if req.ActualReturnDate != nil {
		t, err := parseDate(*req.ActualReturnDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "actualReturnDate must be a valid date"})
		}
		patch.ActualReturnDate = &t
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	item, err := h.Borrows.UpdateBorrow(ctx, id, patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": item})
}

// Delete answers DELETE /v1/borrows/:transactionId (admin).
func (h *BorrowHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "transactionId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Borrows.DeleteBorrow(ctx, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ByBook answers GET /v1/books/:id/borrows (admin).
func (h *BorrowHandler) ByBook(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	p, l, err := pageParams(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	page, err := h.Borrows.BorrowsByBook(ctx, id, p, l)
	if err != nil {
		return writeError(c, err)
	}
	return pageResponse(c, page.Items, page.Total, page.Page, page.Limit)
}

// ByBorrower answers GET /v1/borrowers/:id/borrows for admins and for the
// borrower themself.
func (h *BorrowHandler) ByBorrower(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if !middleware.IsAdmin(c) {
		if own, ok := middleware.BorrowerID(c); !ok || own != id {
			return writeError(c, repository.ErrBorrowerNotFound)
		}
	}
	p, l, err := pageParams(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	page, err := h.Borrows.BorrowsByBorrower(ctx, id, p, l)
	if err != nil {
		return writeError(c, err)
	}
	return pageResponse(c, page.Items, page.Total, page.Page, page.Limit)
}

// visibleBorrow loads a borrow and hides it from members who do not own
// it.  Hidden records look exactly like missing ones.
func (h *BorrowHandler) visibleBorrow(ctx context.Context, c echo.Context, id uint64) (*model.BorrowDetail, error) {
	item, err := h.Borrows.GetBorrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if middleware.IsAdmin(c) {
		return item, nil
	}
	if own, ok := middleware.BorrowerID(c); !ok || own != item.BorrowerID {
		return nil, repository.ErrBorrowNotFound
	}
	return item, nil
}

// borrowFilterFromQuery parses the listing query string.  userId is an
// alias of borrowerId.
func borrowFilterFromQuery(c echo.Context) (model.BorrowFilter, error) {
	var f model.BorrowFilter
	var err error

	if s := strings.TrimSpace(c.QueryParam("status")); s != "" {
		st, err := model.ParseBorrowStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	if f.ReturnDateBefore, err = queryDate(c, "returnDateBefore"); err != nil {
		return f, err
	}
	if f.ReturnDateAfter, err = queryDate(c, "returnDateAfter"); err != nil {
		return f, err
	}
	if f.BookID, err = queryID(c, "bookId"); err != nil {
		return f, err
	}
	if f.BorrowerID, err = queryID(c, "borrowerId", "userId"); err != nil {
		return f, err
	}
	if f.Page, f.Limit, err = pageParams(c); err != nil {
		return f, err
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

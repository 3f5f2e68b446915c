package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-management/internal/middleware"
	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/repository"
)

// BorrowerStore is implemented by *repository.BorrowerRepo.
type BorrowerStore interface {
	Create(ctx context.Context, b *model.Borrower) error
	GetByID(ctx context.Context, id uint64) (*model.Borrower, error)
	List(ctx context.Context, q model.BorrowerQuery) ([]model.Borrower, int64, error)
	Update(ctx context.Context, id uint64, p model.BorrowerPatch) (*model.Borrower, error)
	Delete(ctx context.Context, id uint64) error
}

type BorrowerHandler struct {
	Borrowers BorrowerStore
}

func NewBorrowerHandler(s BorrowerStore) *BorrowerHandler { return &BorrowerHandler{Borrowers: s} }

type createBorrowerReq struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
}

func (h *BorrowerHandler) Create(c echo.Context) error {
	var req createBorrowerReq
	if done, err := bindAndValidate(c, &req); done {
		return err
	}
	b := &model.Borrower{Name: req.Name, Email: req.Email}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Borrowers.Create(ctx, b); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": b})
}

// Get is open to admins and to the borrower themself.
func (h *BorrowerHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if !middleware.IsAdmin(c) {
		if own, ok := middleware.BorrowerID(c); !ok || own != id {
			return writeError(c, repository.ErrBorrowerNotFound)
		}
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Borrowers.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": b})
}

// List matches name and email prefixes.
func (h *BorrowerHandler) List(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, total, err := h.Borrowers.List(ctx, model.BorrowerQuery{
		Name:  c.QueryParam("name"),
		Email: c.QueryParam("email"),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	return pageResponse(c, items, total, page, limit)
}

func (h *BorrowerHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var p model.BorrowerPatch
	if done, err := bindAndValidate(c, &p); done {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Borrowers.Update(ctx, id, p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": b})
}

// Delete refuses with 409 while the borrower still holds copies.
func (h *BorrowerHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Borrowers.Delete(ctx, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-management/internal/model"
)

// BookStore is implemented by *repository.BookRepo.
type BookStore interface {
	Create(ctx context.Context, b *model.Book) error
	GetByID(ctx context.Context, id uint64) (*model.Book, error)
	GetByISBN(ctx context.Context, isbn string) (*model.Book, error)
	List(ctx context.Context, q model.BookQuery) ([]model.Book, int64, error)
	Update(ctx context.Context, id uint64, p model.BookPatch) (*model.Book, error)
	Delete(ctx context.Context, id uint64) error
}

// BookHandler serves the catalogue.  Reads are open to every signed-in
// user; writes are admin only (enforced by the router).
type BookHandler struct {
	Books BookStore
}

func NewBookHandler(books BookStore) *BookHandler { return &BookHandler{Books: books} }

type createBookReq struct {
	Title         string `json:"title" validate:"required,max=255"`
	Author        string `json:"author" validate:"required,max=255"`
	ISBN          string `json:"isbn" validate:"required,isbn"`
	Quantity      uint32 `json:"quantity" validate:"required,min=1"`
	ShelfLocation string `json:"shelf_location" validate:"required,max=64"`
}

func (h *BookHandler) Create(c echo.Context) error {
	var req createBookReq
	if done, err := bindAndValidate(c, &req); done {
		return err
	}
	b := &model.Book{
		Title:         strings.TrimSpace(req.Title),
		Author:        strings.TrimSpace(req.Author),
		ISBN:          strings.TrimSpace(req.ISBN),
		Quantity:      req.Quantity,
		ShelfLocation: strings.TrimSpace(req.ShelfLocation),
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Books.Create(ctx, b); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": b})
}

func (h *BookHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Books.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": b})
}

func (h *BookHandler) GetByISBN(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Books.GetByISBN(ctx, c.Param("isbn"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": b})
}

// List filters by title and author substrings.
func (h *BookHandler) List(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	books, total, err := h.Books.List(ctx, model.BookQuery{
		Title:  c.QueryParam("title"),
		Author: c.QueryParam("author"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	return pageResponse(c, books, total, page, limit)
}

// Update applies a partial update.  A quantity change keeps the copies
// that are out and fails with 409 when it would drop below them.
func (h *BookHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var p model.BookPatch
	if done, err := bindAndValidate(c, &p); done {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Books.Update(ctx, id, p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": b})
}

func (h *BookHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Books.Delete(ctx, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

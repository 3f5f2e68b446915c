package handler // handler defines the HTTP handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/repository"
	"github.com/iliyamo/library-management/internal/service"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// writeError translates a domain error into an HTTP response.  Anything
// not listed is logged and answered with 500.
func writeError(c echo.Context, err error) error {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, repository.ErrBookUnavailable):
		status, msg = http.StatusBadRequest, "book not available"
	case errors.Is(err, repository.ErrBorrowNotFound):
		status, msg = http.StatusNotFound, "borrow record not found"
	case errors.Is(err, repository.ErrBookNotFound):
		status, msg = http.StatusNotFound, "book not found"
	case errors.Is(err, repository.ErrBorrowerNotFound):
		status, msg = http.StatusNotFound, "borrower not found"
	case errors.Is(err, repository.ErrUserNotFound):
		status, msg = http.StatusNotFound, "user not found"
	case errors.Is(err, model.ErrInvalidFilter), errors.Is(err, model.ErrInvalidStatus):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidBorrow):
		status, msg = http.StatusBadRequest, "bookId and borrowerId must be positive"
	case errors.Is(err, repository.ErrNoChange):
		status, msg = http.StatusBadRequest, "nothing to update"
	case errors.Is(err, repository.ErrISBNExists):
		status, msg = http.StatusConflict, "isbn already exists"
	case errors.Is(err, repository.ErrEmailExists):
		status, msg = http.StatusConflict, "email already exists"
	case errors.Is(err, repository.ErrInventoryConflict):
		status, msg = http.StatusConflict, "quantity cannot drop below the copies checked out"
	case errors.Is(err, repository.ErrConflict):
		status, msg = http.StatusConflict, "conflict with existing records"
	case errors.Is(err, repository.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	default:
		slog.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method, "path", c.Path(), "error", err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(c echo.Context, name string) (int, error) {
	s := strings.TrimSpace(c.QueryParam(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", model.ErrInvalidFilter, name)
	}
	return n, nil
}

// queryID reads an optional positive id query parameter.
func queryID(c echo.Context, names ...string) (*uint64, error) {
	for _, name := range names {
		s := strings.TrimSpace(c.QueryParam(name))
		if s == "" {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: %s must be a positive integer", model.ErrInvalidFilter, name)
		}
		return &id, nil
	}
	return nil, nil
}

// pageParams reads page and limit.
func pageParams(c echo.Context) (page, limit int, err error) {
	if page, err = queryInt(c, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	if page < 0 || limit < 0 {
		return 0, 0, fmt.Errorf("%w: page and limit must not be negative", model.ErrInvalidFilter)
	}
	page, limit = model.NormalizePage(page, limit)
	return page, limit, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate accepts RFC 3339 timestamps and plain dates, read as UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func queryDate(c echo.Context, name string) (*time.Time, error) {
	s := c.QueryParam(name)
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidFilter, name, err)
	}
	return &t, nil
}

// pageResponse renders a listing in the shared paginated envelope.
func pageResponse(c echo.Context, data interface{}, total int64, page, limit int) error {
	return c.JSON(http.StatusOK, echo.Map{
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": limit,
	})
}

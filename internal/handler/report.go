package handler

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-management/internal/middleware"
	"github.com/iliyamo/library-management/internal/model"
)

// maxReportRows caps one export.
const maxReportRows = 10000

var reportHeader = []string{
	"transaction_id", "book_id", "book_title", "isbn",
	"borrower_id", "borrower_name", "borrower_email",
	"borrowed_at", "return_date", "actual_return_date", "status",
}

// ReportHandler exports borrow listings as CSV.
type ReportHandler struct {
	Engine BorrowEngine
}

func NewReportHandler(engine BorrowEngine) *ReportHandler { return &ReportHandler{Engine: engine} }

// Borrows answers GET /v1/reports/borrows.  It accepts the filters of the
// borrow listing, ignores page/limit and walks every page itself.
func (h *ReportHandler) Borrows(c echo.Context) error {
	f, err := borrowFilterFromQuery(c)
	if err != nil {
		return writeError(c, err)
	}
	if !middleware.IsAdmin(c) {
		own, ok := middleware.BorrowerID(c)
		if !ok {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account is not linked to a borrower"})
		}
		f.BorrowerID = &own
	}
	f.Limit = model.MaxLimit

	ctx, cancel := requestCtx(c)
	defer cancel()

	// fetch the first page before committing to a 200
	f.Page = 1
	page, err := h.Engine.ListBorrows(ctx, f)
	if err != nil {
		return writeError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="borrows.csv"`)
	res.WriteHeader(http.StatusOK)

	w := csv.NewWriter(res)
	if err := w.Write(reportHeader); err != nil {
		return err
	}
	written := 0
	for {
		for _, b := range page.Items {
			if written == maxReportRows {
				break
			}
			if err := w.Write(reportRow(b)); err != nil {
				return err
			}
			written++
		}
		if written == maxReportRows || int64(f.Page*f.Limit) >= page.Total || len(page.Items) == 0 {
			break
		}
		f.Page++
		if page, err = h.Engine.ListBorrows(ctx, f); err != nil {
			// headers are gone; all we can do is stop the stream
			w.Flush()
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func reportRow(b model.BorrowDetail) []string {
	return []string{
		strconv.FormatUint(b.TransactionID, 10),
		strconv.FormatUint(b.BookID, 10),
		b.Book.Title,
		b.Book.ISBN,
		strconv.FormatUint(b.BorrowerID, 10),
		b.Borrower.Name,
		b.Borrower.Email,
		b.BorrowedAt.UTC().Format(time.RFC3339),
		formatOptTime(b.ReturnDate),
		formatOptTime(b.ActualReturnDate),
		string(b.Status),
	}
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

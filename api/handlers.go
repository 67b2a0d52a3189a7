package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"library-circulation/library"
)

const dateLayout = "2006-01-02"

type handler struct {
	mgr    *library.LibraryManager
	logger *slog.Logger
}

func (h *handler) health(c echo.Context) error {
	if err := h.mgr.Ping(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		return Error(c, http.StatusServiceUnavailable, "UNHEALTHY", "database unreachable", "")
	}
	return Success(c, http.StatusOK, map[string]string{"status": "ok"}, "")
}

// pathID parses the :id parameter. A malformed id cannot name any record, so
// it is reported as not found.
func pathID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

func parseDate(s string) time.Time {
	t, _ := time.ParseInLocation(dateLayout, s, time.UTC)
	return t
}

// ------------------ Books ------------------

type bookRequest struct {
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Publisher       string `json:"publisher"`
	PublishedDate   string `json:"published_date" validate:"required,datetime=2006-01-02"`
	Genre           string `json:"genre"`
	Description     string `json:"description"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies *int   `json:"available_copies"`
}

func (r bookRequest) input() library.BookInput {
	return library.BookInput{
		ISBN:            r.ISBN,
		Title:           r.Title,
		Author:          r.Author,
		Publisher:       r.Publisher,
		PublishedDate:   parseDate(r.PublishedDate),
		Genre:           r.Genre,
		Description:     r.Description,
		TotalCopies:     r.TotalCopies,
		AvailableCopies: r.AvailableCopies,
	}
}

type bookPatchRequest struct {
	ISBN            *string `json:"isbn"`
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	Publisher       *string `json:"publisher"`
	PublishedDate   *string `json:"published_date" validate:"omitempty,datetime=2006-01-02"`
	Genre           *string `json:"genre"`
	Description     *string `json:"description"`
	TotalCopies     *int    `json:"total_copies"`
	AvailableCopies *int    `json:"available_copies"`
}

func (r bookPatchRequest) patch() library.BookPatch {
	p := library.BookPatch{
		ISBN:            r.ISBN,
		Title:           r.Title,
		Author:          r.Author,
		Publisher:       r.Publisher,
		Genre:           r.Genre,
		Description:     r.Description,
		TotalCopies:     r.TotalCopies,
		AvailableCopies: r.AvailableCopies,
	}
	if r.PublishedDate != nil {
		d := parseDate(*r.PublishedDate)
		p.PublishedDate = &d
	}
	return p
}

func (h *handler) listBooks(c echo.Context) error {
	return h.searchBooks(c, false)
}

func (h *handler) listAvailableBooks(c echo.Context) error {
	return h.searchBooks(c, true)
}

func (h *handler) searchBooks(c echo.Context, availableOnly bool) error {
	var (
		crit           library.SearchCriteria
		page, pageSize int
	)
	err := echo.QueryParamsBinder(c).
		String("q", &crit.Query).
		String("genre", &crit.Genre).
		String("author", &crit.Author).
		Bool("available_only", &crit.AvailableOnly).
		Int("page", &page).
		Int("page_size", &pageSize).
		BindError()
	if err != nil {
		return BadRequest(c, "INVALID_QUERY", err.Error())
	}
	if availableOnly {
		crit.AvailableOnly = true
	}

	result, err := h.mgr.Catalog.SearchPage(c.Request().Context(), crit, page, pageSize)
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, result, "")
}

func (h *handler) getBook(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return NotFound(c, "NOT_FOUND", "book not found")
	}
	book, err := h.mgr.Catalog.GetBook(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, book, "")
}

func (h *handler) getBookByISBN(c echo.Context) error {
	book, err := h.mgr.Catalog.FindByISBN(c.Request().Context(), c.Param("isbn"))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, book, "")
}

func (h *handler) createBook(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	book, err := h.mgr.Catalog.CreateBook(c.Request().Context(), req.input())
	if err != nil {
		return err
	}
	return Success(c, http.StatusCreated, book, "Book created")
}

func (h *handler) updateBook(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return NotFound(c, "NOT_FOUND", "book not found")
	}
	var req bookPatchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	book, err := h.mgr.Catalog.UpdateBook(c.Request().Context(), id, req.patch())
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, book, "Book updated")
}

func (h *handler) deleteBook(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return NotFound(c, "NOT_FOUND", "book not found")
	}
	if err := h.mgr.Catalog.DeleteBook(c.Request().Context(), id); err != nil {
		return err
	}
	return Success(c, http.StatusOK, nil, "Book deleted")
}

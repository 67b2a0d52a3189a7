package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"library-circulation/library"
)

// checkoutView adds the derived overdue fields to a Checkout.
type checkoutView struct {
	*library.Checkout
	IsOverdue   bool `json:"is_overdue"`
	DaysOverdue int  `json:"days_overdue"`
}

func viewOf(co *library.Checkout, now time.Time) checkoutView {
	return checkoutView{
		Checkout:    co,
		IsOverdue:   library.IsOverdue(co, now),
		DaysOverdue: library.DaysOverdue(co, now),
	}
}

func (h *handler) views(list []*library.Checkout) []checkoutView {
	now := h.mgr.Checkouts.Now()
	out := make([]checkoutView, 0, len(list))
	for _, co := range list {
		out = append(out, viewOf(co, now))
	}
	return out
}

type checkoutRequest struct {
	DueDate string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes   string `json:"notes" validate:"max=500"`
}

func (h *handler) checkoutBook(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return NotFound(c, "NOT_FOUND", "book not found")
	}
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	opts := library.CheckoutOptions{Notes: req.Notes}
	if req.DueDate != "" {
		due := parseDate(req.DueDate)
		opts.DueDate = &due
	}
	co, err := h.mgr.Checkouts.CreateCheckout(c.Request().Context(), memberID(c), id, opts)
	if err != nil {
		return err
	}
	return Success(c, http.StatusCreated, viewOf(co, h.mgr.Checkouts.Now()), "Book checked out")
}

func (h *handler) returnBook(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return NotFound(c, "NOT_FOUND", "book not found")
	}
	co, err := h.mgr.Checkouts.ReturnCheckout(c.Request().Context(), memberID(c), id)
	if err != nil {
		return err
	}
	msg := "Book returned"
	if co.LateFee > 0 {
		msg = "Book returned with a late fee of " + co.LateFee.String()
	}
	return Success(c, http.StatusOK, viewOf(co, h.mgr.Checkouts.Now()), msg)
}

func (h *handler) myCheckouts(c echo.Context) error {
	list, err := h.mgr.Checkouts.ListOpenFor(c.Request().Context(), memberID(c))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, h.views(list), "")
}

func (h *handler) myHistory(c echo.Context) error {
	list, err := h.mgr.Checkouts.ListHistoryFor(c.Request().Context(), memberID(c))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, h.views(list), "")
}

func (h *handler) overdueCheckouts(c echo.Context) error {
	list, err := h.mgr.Checkouts.ListOverdue(c.Request().Context())
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, h.views(list), "")
}

// getCheckout shows a checkout to its member or an admin; other callers get
// not found rather than learning the record exists.
func (h *handler) getCheckout(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return NotFound(c, "NOT_FOUND", "checkout not found")
	}
	co, err := h.mgr.Checkouts.GetCheckout(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if co.MemberID != memberID(c) && !isAdmin(c) {
		return NotFound(c, "NOT_FOUND", "checkout not found")
	}
	return Success(c, http.StatusOK, viewOf(co, h.mgr.Checkouts.Now()), "")
}

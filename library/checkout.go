package library

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	DefaultLoanPeriod       = 14 * 24 * time.Hour
	DefaultFeePerDay  Money = 100
)

// EngineOptions configures loan length and the late fee rate.
type EngineOptions struct {
	LoanPeriod time.Duration
	FeePerDay  Money
}

// CheckoutEngine owns Checkout records. It is the only writer of the returned
// state and late fee, and it changes book availability in the same transaction
// as the checkout row.
type CheckoutEngine struct {
	db         *Database
	catalog    *CatalogStore
	clock      Clock
	log        *slog.Logger
	loanPeriod time.Duration
	feePerDay  Money
}

// NewCheckoutEngine creates a CheckoutEngine. Zero options fall back to a
// 14-day loan and 1.00 per day late.
func NewCheckoutEngine(db *Database, catalog *CatalogStore, clock Clock, opts EngineOptions) *CheckoutEngine {
	if opts.LoanPeriod <= 0 {
		opts.LoanPeriod = DefaultLoanPeriod
	}
	if opts.FeePerDay <= 0 {
		opts.FeePerDay = DefaultFeePerDay
	}
	return &CheckoutEngine{
		db:         db,
		catalog:    catalog,
		clock:      clock,
		log:        db.log,
		loanPeriod: opts.LoanPeriod,
		feePerDay:  opts.FeePerDay,
	}
}

var checkoutColumns = []string{
	"c.id", "c.member_id", "c.book_id", "b.title AS book_title", "c.checkout_date",
	"c.due_date", "c.return_date", "c.is_returned", "c.late_fee_cents", "c.notes",
}

func checkoutSelect() sq.SelectBuilder {
	return sq.Select(checkoutColumns...).From("checkouts c").Join("books b ON b.id = c.book_id")
}

// CreateCheckout lends one copy of bookID to memberID. The due date defaults to
// the loan period after now.
func (e *CheckoutEngine) CreateCheckout(ctx context.Context, memberID string, bookID uuid.UUID, opts CheckoutOptions) (*Checkout, error) {
	now := nowUTC(e.clock)
	due := now.Add(e.loanPeriod)
	if opts.DueDate != nil {
		due = opts.DueDate.UTC().Truncate(time.Microsecond)
		if !due.After(now) {
			return nil, validationError("due_date", "due date must be after the checkout date")
		}
	}

	var out *Checkout
	err := e.db.inTx(ctx, "checkout", func(tx *sqlx.Tx) error {
		book, err := getBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if err := requireActiveMember(ctx, tx, memberID); err != nil {
			return err
		}

		open, err := findOpen(ctx, tx, memberID, bookID)
		if err != nil {
			return err
		}
		if open != nil {
			return conflictError("already checked out")
		}
		if book.AvailableCopies < 1 {
			return unavailableError("no copies of %q are available", book.Title)
		}

		if err := e.catalog.adjustAvailability(ctx, tx, bookID, -1); err != nil {
			return err
		}

		co := &Checkout{
			ID:           uuid.New(),
			MemberID:     memberID,
			BookID:       bookID,
			BookTitle:    book.Title,
			CheckoutDate: now,
			DueDate:      due,
			Notes:        opts.Notes,
		}
		query, args, err := sq.Insert("checkouts").
			Columns("id", "member_id", "book_id", "checkout_date", "due_date", "is_returned", "late_fee_cents", "notes").
			Values(co.ID, co.MemberID, co.BookID, co.CheckoutDate, co.DueDate, false, 0, co.Notes).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "build insert")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return mapConstraint(err, "insert checkout")
		}
		out = co
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "book checked out",
		slog.String("checkout_id", out.ID.String()),
		slog.String("member_id", memberID),
		slog.String("book_id", bookID.String()),
		slog.Time("due_date", out.DueDate),
	)
	return out, nil
}

// ReturnCheckout closes the open checkout of bookID held by memberID and charges
// the late fee, if any.
func (e *CheckoutEngine) ReturnCheckout(ctx context.Context, memberID string, bookID uuid.UUID) (*Checkout, error) {
	var out *Checkout
	err := e.db.inTx(ctx, "return", func(tx *sqlx.Tx) error {
		co, err := findOpen(ctx, tx, memberID, bookID)
		if err != nil {
			return err
		}
		if co == nil {
			return notFoundError("nothing to return: member %s has no open checkout of book %s", memberID, bookID)
		}

		now := nowUTC(e.clock)
		if now.Before(co.CheckoutDate) {
			return validationError("return_date", "return date cannot be before checkout date")
		}
		fee := e.LateFee(co.DueDate, now)

		res, err := tx.ExecContext(ctx,
			`UPDATE checkouts SET is_returned = 1, return_date = ?, late_fee_cents = ?
             WHERE id = ? AND is_returned = 0`,
			now, fee, co.ID)
		if err != nil {
			return mapConstraint(err, "return checkout")
		}
		if n, err := res.RowsAffected(); err != nil {
			return errors.Wrap(err, "return checkout")
		} else if n != 1 {
			return notFoundError("nothing to return: checkout %s is already closed", co.ID)
		}

		if err := e.catalog.adjustAvailability(ctx, tx, bookID, +1); err != nil {
			return err
		}

		co.IsReturned = true
		co.ReturnDate = &now
		co.LateFee = fee
		out = co
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "book returned",
		slog.String("checkout_id", out.ID.String()),
		slog.String("member_id", memberID),
		slog.String("book_id", bookID.String()),
		slog.String("late_fee", out.LateFee.String()),
	)
	return out, nil
}

// LateFee is the charge for returning at returned a checkout due at due: one
// rate unit per whole day late, nothing when on time.
func (e *CheckoutEngine) LateFee(due, returned time.Time) Money {
	if !returned.After(due) {
		return 0
	}
	days := int64(returned.Sub(due) / (24 * time.Hour))
	return Money(days) * e.feePerDay
}

// IsOverdue reports whether an open checkout is past its due date at now.
func IsOverdue(c *Checkout, now time.Time) bool {
	if c.IsReturned {
		return false
	}
	return now.After(c.DueDate)
}

// DaysOverdue is the number of whole days past due at now, or 0.
func DaysOverdue(c *Checkout, now time.Time) int {
	if !IsOverdue(c, now) {
		return 0
	}
	return int(now.Sub(c.DueDate) / (24 * time.Hour))
}

// Now is the engine's clock reading, as used for overdue calculations.
func (e *CheckoutEngine) Now() time.Time { return nowUTC(e.clock) }

// ------------------ Queries ------------------

// GetCheckout returns the checkout with the given id.
func (e *CheckoutEngine) GetCheckout(ctx context.Context, id uuid.UUID) (*Checkout, error) {
	query, args, err := checkoutSelect().Where(sq.Eq{"c.id": id}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	var c Checkout
	if err := sqlx.GetContext(ctx, e.db.db, &c, query, args...); err != nil {
		return nil, mapConstraint(err, "checkout "+id.String())
	}
	return &c, nil
}

// ListOpenFor returns memberID's unreturned checkouts, newest first.
func (e *CheckoutEngine) ListOpenFor(ctx context.Context, memberID string) ([]*Checkout, error) {
	return e.list(ctx, checkoutSelect().
		Where(sq.Eq{"c.member_id": memberID, "c.is_returned": false}).
		OrderBy("c.checkout_date DESC", "c.id"))
}

// ListHistoryFor returns all of memberID's checkouts, newest first.
func (e *CheckoutEngine) ListHistoryFor(ctx context.Context, memberID string) ([]*Checkout, error) {
	return e.list(ctx, checkoutSelect().
		Where(sq.Eq{"c.member_id": memberID}).
		OrderBy("c.checkout_date DESC", "c.id"))
}

// ListOverdue returns every open checkout past due, earliest due date first.
func (e *CheckoutEngine) ListOverdue(ctx context.Context) ([]*Checkout, error) {
	return e.list(ctx, checkoutSelect().
		Where(sq.Eq{"c.is_returned": false}).
		Where(sq.Lt{"c.due_date": nowUTC(e.clock)}).
		OrderBy("c.due_date ASC", "c.id"))
}

func (e *CheckoutEngine) list(ctx context.Context, b sq.SelectBuilder) ([]*Checkout, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	out := []*Checkout{}
	if err := sqlx.SelectContext(ctx, e.db.db, &out, query, args...); err != nil {
		return nil, errors.Wrap(err, "list checkouts")
	}
	return out, nil
}

// findOpen returns the open checkout for the pair, or nil when there is none.
func findOpen(ctx context.Context, q sqlx.QueryerContext, memberID string, bookID uuid.UUID) (*Checkout, error) {
	query, args, err := checkoutSelect().
		Where(sq.Eq{"c.member_id": memberID, "c.book_id": bookID, "c.is_returned": false}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	var c Checkout
	err = sqlx.GetContext(ctx, q, &c, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find open checkout")
	}
	return &c, nil
}

package library

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// PopularBook is a book ranked by lifetime checkouts.
type PopularBook struct {
	Title         string `json:"title" db:"title"`
	Author        string `json:"author" db:"author"`
	CheckoutCount int    `json:"checkout_count" db:"checkout_count"`
}

// RecentCheckout summarises one of the latest checkouts.
type RecentCheckout struct {
	MemberID     string    `json:"member_id" db:"member_id"`
	Username     string    `json:"username" db:"username"`
	BookTitle    string    `json:"book" db:"book_title"`
	CheckoutDate time.Time `json:"checkout_date" db:"checkout_date"`
	IsReturned   bool      `json:"is_returned" db:"is_returned"`
}

// Stats are library-wide figures, computed on read.
type Stats struct {
	TotalBooks       int              `json:"total_books" db:"total_books"`
	TotalCopies      int              `json:"total_copies" db:"total_copies"`
	AvailableCopies  int              `json:"available_copies" db:"available_copies"`
	CheckedOutCopies int              `json:"checked_out_copies" db:"-"`
	TotalMembers     int              `json:"total_members" db:"total_members"`
	ActiveMembers    int              `json:"active_members" db:"active_members"`
	TotalCheckouts   int              `json:"total_checkouts" db:"total_checkouts"`
	CurrentCheckouts int              `json:"current_checkouts" db:"current_checkouts"`
	OverdueCheckouts int              `json:"overdue_checkouts" db:"overdue_checkouts"`
	PopularBooks     []PopularBook    `json:"popular_books" db:"-"`
	RecentCheckouts  []RecentCheckout `json:"recent_checkouts" db:"-"`
}

const (
	popularBooksLimit    = 5
	recentCheckoutsLimit = 10
)

// StatsReader computes Stats.
type StatsReader struct {
	db    *Database
	clock Clock
}

// NewStatsReader creates a StatsReader backed by db.
func NewStatsReader(db *Database, clock Clock) *StatsReader {
	return &StatsReader{db: db, clock: clock}
}

// Stats gathers the figures. The queries run outside a write transaction, so
// figures from concurrent checkouts may differ by the in-flight operations.
func (r *StatsReader) Stats(ctx context.Context) (*Stats, error) {
	now := nowUTC(r.clock)
	db := r.db.db

	var s Stats
	err := db.GetContext(ctx, &s, `SELECT
        (SELECT COUNT(*) FROM books) AS total_books,
        (SELECT COALESCE(SUM(total_copies), 0) FROM books) AS total_copies,
        (SELECT COALESCE(SUM(available_copies), 0) FROM books) AS available_copies,
        (SELECT COUNT(*) FROM member_profiles) AS total_members,
        (SELECT COUNT(*) FROM member_profiles WHERE is_active = 1) AS active_members,
        (SELECT COUNT(*) FROM checkouts) AS total_checkouts,
        (SELECT COUNT(*) FROM checkouts WHERE is_returned = 0) AS current_checkouts,
        (SELECT COUNT(*) FROM checkouts WHERE is_returned = 0 AND due_date < ?) AS overdue_checkouts`, now)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate stats")
	}
	s.CheckedOutCopies = s.TotalCopies - s.AvailableCopies

	query, args, err := sq.Select("b.title", "b.author", "COUNT(c.id) AS checkout_count").
		From("books b").
		LeftJoin("checkouts c ON c.book_id = b.id").
		GroupBy("b.id").
		OrderBy("checkout_count DESC", "b.title").
		Limit(popularBooksLimit).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build popular")
	}
	s.PopularBooks = []PopularBook{}
	if err := sqlx.SelectContext(ctx, db, &s.PopularBooks, query, args...); err != nil {
		return nil, errors.Wrap(err, "popular books")
	}

	query, args, err = sq.Select("c.member_id", "m.username", "b.title AS book_title", "c.checkout_date", "c.is_returned").
		From("checkouts c").
		Join("books b ON b.id = c.book_id").
		Join("member_profiles m ON m.user_id = c.member_id").
		OrderBy("c.checkout_date DESC", "c.id").
		Limit(recentCheckoutsLimit).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build recent")
	}
	s.RecentCheckouts = []RecentCheckout{}
	if err := sqlx.SelectContext(ctx, db, &s.RecentCheckouts, query, args...); err != nil {
		return nil, errors.Wrap(err, "recent checkouts")
	}
	return &s, nil
}

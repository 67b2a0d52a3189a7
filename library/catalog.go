package library

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// CatalogStore owns Book records and the copy-count invariant.
type CatalogStore struct {
	db    *Database
	clock Clock
	log   *slog.Logger
}

// NewCatalogStore creates a CatalogStore backed by db.
func NewCatalogStore(db *Database, clock Clock) *CatalogStore {
	return &CatalogStore{db: db, clock: clock, log: db.log}
}

var bookColumns = []string{
	"b.id", "b.isbn", "b.title", "b.author", "b.publisher", "b.published_date",
	"b.genre", "b.description", "b.total_copies", "b.available_copies",
	"(SELECT COUNT(*) FROM checkouts c WHERE c.book_id = b.id) AS checkout_count",
	"b.date_added", "b.date_updated",
}

func bookSelect() sq.SelectBuilder {
	return sq.Select(bookColumns...).From("books b")
}

// ------------------ Writes ------------------

// CreateBook validates in and inserts a new book. Available copies default to
// the total when not given.
func (c *CatalogStore) CreateBook(ctx context.Context, in BookInput) (*Book, error) {
	in.ISBN = strings.TrimSpace(in.ISBN)
	if err := Validate(in); err != nil {
		return nil, err
	}
	available := in.TotalCopies
	if in.AvailableCopies != nil {
		available = *in.AvailableCopies
	}
	if err := checkCopies(in.TotalCopies, available); err != nil {
		return nil, err
	}

	now := nowUTC(c.clock)
	b := &Book{
		ID:              uuid.New(),
		ISBN:            in.ISBN,
		Title:           in.Title,
		Author:          in.Author,
		Publisher:       in.Publisher,
		PublishedDate:   dateOnly(in.PublishedDate),
		Genre:           in.Genre,
		Description:     in.Description,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: available,
		DateAdded:       now,
		DateUpdated:     now,
	}

	err := c.db.inTx(ctx, "create book", func(tx *sqlx.Tx) error {
		query, args, err := sq.Insert("books").
			Columns("id", "isbn", "title", "author", "publisher", "published_date", "genre",
				"description", "total_copies", "available_copies", "date_added", "date_updated").
			Values(b.ID, b.ISBN, b.Title, b.Author, b.Publisher, b.PublishedDate, b.Genre,
				b.Description, b.TotalCopies, b.AvailableCopies, b.DateAdded, b.DateUpdated).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "build insert")
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return mapConstraint(err, "insert book")
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBook applies patch to the book and re-validates the merged state.
func (c *CatalogStore) UpdateBook(ctx context.Context, id uuid.UUID, patch BookPatch) (*Book, error) {
	var out *Book
	err := c.db.inTx(ctx, "update book", func(tx *sqlx.Tx) error {
		b, err := getBook(ctx, tx, id)
		if err != nil {
			return err
		}
		var open int
		if err := tx.GetContext(ctx, &open,
			`SELECT COUNT(*) FROM checkouts WHERE book_id = ? AND is_returned = 0`, id); err != nil {
			return errors.Wrap(err, "count open checkouts")
		}

		applyBookPatch(b, patch)

		avail := b.AvailableCopies
		if err := Validate(BookInput{
			ISBN: b.ISBN, Title: b.Title, Author: b.Author, Publisher: b.Publisher,
			PublishedDate: b.PublishedDate, Genre: b.Genre, TotalCopies: b.TotalCopies,
			AvailableCopies: &avail,
		}); err != nil {
			return err
		}
		if err := checkCopies(b.TotalCopies, b.AvailableCopies); err != nil {
			return err
		}
		if b.TotalCopies < open {
			return validationError("total_copies", "total copies cannot be less than the copies currently checked out")
		}
		if b.AvailableCopies > b.TotalCopies-open {
			return validationError("available_copies",
				fmt.Sprintf("available copies cannot exceed %d while %d copies are checked out", b.TotalCopies-open, open))
		}

		b.DateUpdated = nowUTC(c.clock)
		query, args, err := sq.Update("books").SetMap(map[string]any{
			"isbn":             b.ISBN,
			"title":            b.Title,
			"author":           b.Author,
			"publisher":        b.Publisher,
			"published_date":   b.PublishedDate,
			"genre":            b.Genre,
			"description":      b.Description,
			"total_copies":     b.TotalCopies,
			"available_copies": b.AvailableCopies,
			"date_updated":     b.DateUpdated,
		}).Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return errors.Wrap(err, "build update")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return mapConstraint(err, "update book")
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyBookPatch(b *Book, p BookPatch) {
	if p.ISBN != nil {
		b.ISBN = strings.TrimSpace(*p.ISBN)
	}
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Publisher != nil {
		b.Publisher = *p.Publisher
	}
	if p.PublishedDate != nil {
		b.PublishedDate = dateOnly(*p.PublishedDate)
	}
	if p.Genre != nil {
		b.Genre = *p.Genre
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.TotalCopies != nil {
		b.TotalCopies = *p.TotalCopies
	}
	if p.AvailableCopies != nil {
		b.AvailableCopies = *p.AvailableCopies
	}
}

// DeleteBook removes a book and its returned checkout history. A book with open
// checkouts cannot be deleted.
func (c *CatalogStore) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return c.db.inTx(ctx, "delete book", func(tx *sqlx.Tx) error {
		if _, err := getBook(ctx, tx, id); err != nil {
			return err
		}
		var open int
		if err := tx.GetContext(ctx, &open,
			`SELECT COUNT(*) FROM checkouts WHERE book_id = ? AND is_returned = 0`, id); err != nil {
			return errors.Wrap(err, "count open checkouts")
		}
		if open > 0 {
			return conflictError("book %s has %d open checkout(s)", id, open)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
		return errors.Wrap(err, "delete book")
	})
}

// adjustAvailability applies available_copies += delta inside tx. It is only
// called by the checkout engine as part of its own transaction.
func (c *CatalogStore) adjustAvailability(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, delta int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE books SET available_copies = available_copies + ?, date_updated = ?
         WHERE id = ? AND available_copies + ? BETWEEN 0 AND total_copies`,
		delta, nowUTC(c.clock), id, delta)
	if err != nil {
		return mapConstraint(err, "adjust availability")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "adjust availability")
	}
	if n == 1 {
		return nil
	}

	b, err := getBook(ctx, tx, id)
	if err != nil {
		return err
	}
	c.log.ErrorContext(ctx, "availability invariant violated",
		slog.String("book_id", id.String()),
		slog.Int("delta", delta),
		slog.Int("available_copies", b.AvailableCopies),
		slog.Int("total_copies", b.TotalCopies),
	)
	return invariantError("book %s: available copies %d%+d outside [0, %d]",
		id, b.AvailableCopies, delta, b.TotalCopies)
}

// ------------------ Reads ------------------

// GetBook returns the book with the given id.
func (c *CatalogStore) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return getBook(ctx, c.db.db, id)
}

// FindByISBN returns the book with the given ISBN.
func (c *CatalogStore) FindByISBN(ctx context.Context, isbn string) (*Book, error) {
	query, args, err := bookSelect().Where(sq.Eq{"b.isbn": strings.TrimSpace(isbn)}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	var b Book
	if err := sqlx.GetContext(ctx, c.db.db, &b, query, args...); err != nil {
		return nil, mapConstraint(err, "book with ISBN "+isbn)
	}
	return &b, nil
}

func getBook(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*Book, error) {
	query, args, err := bookSelect().Where(sq.Eq{"b.id": id}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	var b Book
	if err := sqlx.GetContext(ctx, q, &b, query, args...); err != nil {
		return nil, mapConstraint(err, "book "+id.String())
	}
	return &b, nil
}

// Search streams books matching crit ordered by title. Rows are read while the
// sequence is ranged over; ranging again re-runs the query.
func (c *CatalogStore) Search(ctx context.Context, crit SearchCriteria) iter.Seq2[*Book, error] {
	return func(yield func(*Book, error) bool) {
		builder := searchFilter(bookSelect(), crit).OrderBy("b.title", "b.id")
		if crit.Limit > 0 {
			builder = builder.Limit(uint64(crit.Limit))
		}
		if crit.Offset > 0 {
			// SQLite only accepts OFFSET after a LIMIT.
			if crit.Limit <= 0 {
				builder = builder.Limit(math.MaxInt64)
			}
			builder = builder.Offset(uint64(crit.Offset))
		}
		query, args, err := builder.ToSql()
		if err != nil {
			yield(nil, errors.Wrap(err, "build search"))
			return
		}
		rows, err := c.db.db.QueryxContext(ctx, query, args...)
		if err != nil {
			yield(nil, errors.Wrap(err, "search books"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var b Book
			if err := rows.StructScan(&b); err != nil {
				yield(nil, errors.Wrap(err, "scan book"))
				return
			}
			if !yield(&b, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, errors.Wrap(err, "search books"))
		}
	}
}

// BookPage is one page of search results.
type BookPage struct {
	Count    int     `json:"count"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Results  []*Book `json:"results"`
}

// SearchPage returns page (1-based) of the search results plus the total match count.
func (c *CatalogStore) SearchPage(ctx context.Context, crit SearchCriteria, page, pageSize int) (*BookPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query, args, err := searchFilter(sq.Select("COUNT(*)").From("books b"), crit).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build count")
	}
	out := &BookPage{Page: page, PageSize: pageSize, Results: []*Book{}}
	if err := c.db.db.GetContext(ctx, &out.Count, query, args...); err != nil {
		return nil, errors.Wrap(err, "count books")
	}

	crit.Limit = pageSize
	crit.Offset = (page - 1) * pageSize
	for b, err := range c.Search(ctx, crit) {
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, b)
	}
	return out, nil
}

func searchFilter(b sq.SelectBuilder, crit SearchCriteria) sq.SelectBuilder {
	if q := strings.TrimSpace(crit.Query); q != "" {
		pattern := "%" + escapeLike(casefold(q)) + "%"
		b = b.Where(sq.Or{
			sq.Expr(`casefold(b.title) LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(`casefold(b.author) LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(`b.isbn LIKE ? ESCAPE '\'`, pattern),
		})
	}
	if crit.Genre != "" {
		b = b.Where(sq.Eq{"b.genre": crit.Genre})
	}
	if crit.Author != "" {
		b = b.Where(sq.Eq{"b.author": crit.Author})
	}
	if crit.AvailableOnly {
		b = b.Where(sq.Gt{"b.available_copies": 0})
	}
	return b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralises LIKE wildcards.
func escapeLike(s string) string { return likeEscaper.Replace(s) }

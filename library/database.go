package library

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
)

// driverName is go-sqlite3 with a casefold(text) function on every connection,
// so LIKE comparisons can ignore case outside ASCII.
const driverName = "sqlite3_library"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("casefold", casefold, true)
		},
	})
}

// casefold maps s to its Unicode case-folded form.
func casefold(s string) string { return cases.Fold().String(s) }

// DatabaseOptions tunes the SQLite connection and the write-transaction retry loop.
type DatabaseOptions struct {
	BusyTimeout    time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Logger         *slog.Logger
}

func (o DatabaseOptions) withDefaults() DatabaseOptions {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 5
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 10 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	db   *sqlx.DB
	opts DatabaseOptions
	log  *slog.Logger
}

// NewDatabase opens (or creates) the SQLite database at dbPath and applies schema
// migrations.
func NewDatabase(dbPath string, opts DatabaseOptions) (*Database, error) {
	opts = opts.withDefaults()

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create db dir")
		}
	}

	// Write transactions take the RESERVED lock at BEGIN so concurrent writers
	// serialize instead of failing on lock upgrade.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=1&_txlock=immediate",
		dbPath, opts.BusyTimeout.Milliseconds())
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, opts: opts, log: opts.Logger}, nil
}

// Close closes the DB.
func (d *Database) Close() error { return d.db.Close() }

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	// WAL lets readers proceed while a writer holds the lock.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return errors.Wrap(err, "enable WAL")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return errors.Wrap(err, "create meta")
	}

	var current int
	err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "read schema version")
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin migration")
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id TEXT PRIMARY KEY,
            isbn TEXT NOT NULL UNIQUE,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            publisher TEXT NOT NULL DEFAULT '',
            published_date DATE NOT NULL,
            genre TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            total_copies INTEGER NOT NULL CHECK (total_copies >= 1),
            available_copies INTEGER NOT NULL,
            date_added DATETIME NOT NULL,
            date_updated DATETIME NOT NULL,
            CHECK (available_copies >= 0 AND available_copies <= total_copies)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);`,
		`CREATE INDEX IF NOT EXISTS idx_books_author ON books(author);`,
		`CREATE TABLE IF NOT EXISTS member_profiles (
            user_id TEXT PRIMARY KEY,
            username TEXT NOT NULL,
            membership_date DATE NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            phone TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            date_created DATETIME NOT NULL,
            date_updated DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS checkouts (
            id TEXT PRIMARY KEY,
            member_id TEXT NOT NULL REFERENCES member_profiles(user_id) ON DELETE CASCADE,
            book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            checkout_date DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            return_date DATETIME,
            is_returned BOOLEAN NOT NULL DEFAULT 0,
            late_fee_cents INTEGER NOT NULL DEFAULT 0 CHECK (late_fee_cents >= 0),
            notes TEXT NOT NULL DEFAULT '',
            CHECK (return_date IS NULL OR return_date >= checkout_date)
        );`,
		// At most one open checkout per (member, book).
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_checkouts_open_pair
            ON checkouts(member_id, book_id) WHERE is_returned = 0;`,
		`CREATE INDEX IF NOT EXISTS idx_checkouts_member ON checkouts(member_id, is_returned);`,
		`CREATE INDEX IF NOT EXISTS idx_checkouts_book ON checkouts(book_id, is_returned);`,
		`CREATE INDEX IF NOT EXISTS idx_checkouts_due ON checkouts(due_date);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Wrap(err, "apply migration")
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return errors.Wrap(err, "record schema version")
	}

	return errors.Wrap(tx.Commit(), "commit migration")
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// inTx runs fn in one write transaction. Lock contention is retried with
// exponential backoff and jitter; when attempts run out the caller gets a
// ConflictError. Errors returned by fn roll the transaction back and are
// returned as they are.
func (d *Database) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < d.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := d.opts.RetryBaseDelay * time.Duration(1<<(attempt-1))
			delay += time.Duration(rand.Float64() * float64(delay) * 0.3) //nolint:gosec // jitter only
			d.log.DebugContext(ctx, "retrying transaction",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = d.runTx(ctx, fn)
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
	}
	d.log.WarnContext(ctx, "transaction retries exhausted",
		slog.String("op", op),
		slog.Int("attempts", d.opts.RetryAttempts),
	)
	return conflictError("%s: concurrent update in progress, try again", op)
}

func (d *Database) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// isBusy reports whether err is SQLite lock contention worth retrying.
func isBusy(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked
	}
	return false
}

// mapConstraint translates SQLite constraint failures into library errors.
// Anything else is wrapped with msg and returned as an internal error.
func mapConstraint(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError("%s: not found", msg)
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		text := sqlErr.Error()
		switch sqlErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			switch {
			case strings.Contains(text, "books.isbn"):
				return conflictError("a book with this ISBN already exists")
			case strings.Contains(text, "checkouts.member_id"):
				return conflictError("already checked out")
			default:
				return conflictError("%s: duplicate record", msg)
			}
		case sqlite3.ErrConstraintForeignKey:
			return notFoundError("%s: referenced record does not exist", msg)
		case sqlite3.ErrConstraintCheck:
			return invariantError("%s: %s", msg, text)
		}
	}
	return errors.Wrap(err, msg)
}

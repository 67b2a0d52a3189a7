package library

import (
	"context"
	"log/slog"
)

// Options configures a LibraryManager.
type Options struct {
	Database DatabaseOptions
	Engine   EngineOptions
	Clock    Clock
	Logger   *slog.Logger
}

// LibraryManager is a thin façade over the stores, keeping API and CLI code simple.
type LibraryManager struct {
	db *Database

	Catalog   *CatalogStore
	Checkouts *CheckoutEngine
	Members   *MemberStore
	Stats     *StatsReader
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath and wires
// the stores on top of it.
func NewLibraryManager(dbPath string, opts Options) (*LibraryManager, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger != nil {
		opts.Database.Logger = opts.Logger
	}
	db, err := NewDatabase(dbPath, opts.Database)
	if err != nil {
		return nil, err
	}

	catalog := NewCatalogStore(db, opts.Clock)
	return &LibraryManager{
		db:        db,
		Catalog:   catalog,
		Checkouts: NewCheckoutEngine(db, catalog, opts.Clock, opts.Engine),
		Members:   NewMemberStore(db, opts.Clock),
		Stats:     NewStatsReader(db, opts.Clock),
	}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Ping checks the database connection.
func (lm *LibraryManager) Ping(ctx context.Context) error { return lm.db.Ping(ctx) }

package library

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T) (*LibraryManager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	mgr, err := NewLibraryManager(filepath.Join(t.TempDir(), "lib.db"), Options{
		Clock:  clock,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr, clock
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func addBook(t *testing.T, mgr *LibraryManager, isbn, title string, copies int) *Book {
	t.Helper()
	b, err := mgr.Catalog.CreateBook(context.Background(), BookInput{
		ISBN:          isbn,
		Title:         title,
		Author:        "Test Author",
		PublishedDate: time.Date(1999, 5, 1, 0, 0, 0, 0, time.UTC),
		TotalCopies:   copies,
	})
	require.NoError(t, err)
	return b
}

func addMember(t *testing.T, mgr *LibraryManager, userID string) *MemberProfile {
	t.Helper()
	m, err := mgr.Members.EnsureProfile(context.Background(), MemberInput{UserID: userID, Username: userID})
	require.NoError(t, err)
	return m
}

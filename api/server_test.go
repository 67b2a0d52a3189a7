package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"library-circulation/config"
	"library-circulation/library"
)

const adminKey = "let-me-in"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type envelope struct {
	Success bool                `json:"success"`
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   *ErrorInfo          `json:"error"`
}

type fixture struct {
	t     *testing.T
	srv   *Server
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "api.db"), library.Options{
		Clock:  clock,
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)
	srv := NewServer(mgr, config.HTTPConfig{AdminKeyHash: string(hash)}, logger)
	return &fixture{t: t, srv: srv, clock: clock}
}

type header func(*http.Request)

func asAdmin(r *http.Request) { r.Header.Set(headerAdminKey, adminKey) }

func asMember(id string) header {
	return func(r *http.Request) { r.Header.Set(headerMemberID, id) }
}

func (f *fixture) do(method, path string, body any, headers ...header) (int, envelope) {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		h(req)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(f.t, rec.Code, env.Code)
	assert.NotEmpty(f.t, rec.Header().Get("X-Request-Id"))
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (f *fixture) createBook(isbn, title string, copies int) library.Book {
	f.t.Helper()
	code, env := f.do(http.MethodPost, "/books", map[string]any{
		"isbn":           isbn,
		"title":          title,
		"author":         "Frank Herbert",
		"published_date": "1965-08-01",
		"genre":          "Science Fiction",
		"total_copies":   copies,
	}, asAdmin)
	require.Equal(f.t, http.StatusCreated, code, env.Message)
	return decode[library.Book](f.t, env)
}

func (f *fixture) createMember(id string) {
	f.t.Helper()
	code, env := f.do(http.MethodPost, "/members", map[string]any{"user_id": id, "username": id}, asAdmin)
	require.Equal(f.t, http.StatusCreated, code, env.Message)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestBookEndpoints(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodPost, "/books", map[string]any{"isbn": "1234567890"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	code, _ = f.do(http.MethodPost, "/books", map[string]any{"isbn": "1234567890"},
		func(r *http.Request) { r.Header.Set(headerAdminKey, "wrong") })
	assert.Equal(t, http.StatusForbidden, code)

	book := f.createBook("9780441013593", "Dune", 2)
	assert.Equal(t, 2, book.AvailableCopies)
	assert.Equal(t, "1965-08-01", book.PublishedDate.Format(dateLayout))

	code, env = f.do(http.MethodGet, "/books/"+book.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Dune", decode[library.Book](t, env).Title)

	code, env = f.do(http.MethodGet, "/books/isbn/9780441013593", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, book.ID, decode[library.Book](t, env).ID)

	code, _ = f.do(http.MethodGet, "/books/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, code)

	f.createBook("1111111111", "Emma", 1)
	code, env = f.do(http.MethodGet, "/books?q=dun&page_size=5", nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[library.BookPage](t, env)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, 5, page.PageSize)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Dune", page.Results[0].Title)

	code, env = f.do(http.MethodGet, "/books?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_QUERY", env.Error.Code)

	code, env = f.do(http.MethodPatch, "/books/"+book.ID.String(), map[string]any{"total_copies": 4}, asAdmin)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, 4, decode[library.Book](t, env).TotalCopies)

	code, _ = f.do(http.MethodDelete, "/books/"+book.ID.String(), nil, asAdmin)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(http.MethodGet, "/books/"+book.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateBookErrors(t *testing.T) {
	f := newFixture(t)
	f.createBook("1234567890", "Dune", 1)

	tests := []struct {
		name    string
		body    map[string]any
		status  int
		code    string
		details string
	}{
		{
			name:    "bad isbn",
			body:    map[string]any{"isbn": "12345", "title": "X", "author": "Y", "published_date": "2000-01-01", "total_copies": 1},
			status:  http.StatusBadRequest,
			code:    "VALIDATION_ERROR",
			details: "isbn",
		},
		{
			name:    "bad date",
			body:    map[string]any{"isbn": "1234567891", "title": "X", "author": "Y", "published_date": "01/01/2000", "total_copies": 1},
			status:  http.StatusBadRequest,
			code:    "VALIDATION_ERROR",
			details: "published_date",
		},
		{
			name:    "available above total",
			body:    map[string]any{"isbn": "1234567891", "title": "X", "author": "Y", "published_date": "2000-01-01", "total_copies": 1, "available_copies": 2},
			status:  http.StatusBadRequest,
			code:    "VALIDATION_ERROR",
			details: "available_copies",
		},
		{
			name:   "duplicate isbn",
			body:   map[string]any{"isbn": "1234567890", "title": "X", "author": "Y", "published_date": "2000-01-01", "total_copies": 1},
			status: http.StatusConflict,
			code:   "CONFLICT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(http.MethodPost, "/books", tt.body, asAdmin)
			assert.Equal(t, tt.status, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			if tt.details != "" {
				assert.Equal(t, tt.details, env.Error.Details)
			}
		})
	}
}

func TestCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	book := f.createBook("1234567890", "Dune", 1)
	f.createMember("alice")
	f.createMember("bob")
	checkoutPath := "/books/" + book.ID.String() + "/checkout"
	returnPath := "/books/" + book.ID.String() + "/return"

	code, env := f.do(http.MethodPost, checkoutPath, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	code, env = f.do(http.MethodPost, checkoutPath, nil, asMember("alice"))
	require.Equal(t, http.StatusCreated, code, env.Message)
	co := decode[map[string]any](t, env)
	assert.Equal(t, "alice", co["member_id"])
	assert.Equal(t, false, co["is_overdue"])
	assert.Equal(t, "0.00", co["late_fee"])

	code, env = f.do(http.MethodPost, checkoutPath, nil, asMember("alice"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	code, env = f.do(http.MethodPost, checkoutPath, nil, asMember("bob"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "UNAVAILABLE", env.Error.Code)

	code, env = f.do(http.MethodGet, "/checkouts/my", nil, asMember("alice"))
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]map[string]any](t, env), 1)

	f.clock.Advance(17 * 24 * time.Hour)

	code, env = f.do(http.MethodGet, "/checkouts/overdue", nil, asAdmin)
	require.Equal(t, http.StatusOK, code)
	overdue := decode[[]map[string]any](t, env)
	require.Len(t, overdue, 1)
	assert.Equal(t, true, overdue[0]["is_overdue"])
	assert.EqualValues(t, 3, overdue[0]["days_overdue"])

	code, env = f.do(http.MethodPost, returnPath, nil, asMember("alice"))
	require.Equal(t, http.StatusOK, code, env.Message)
	returned := decode[map[string]any](t, env)
	assert.Equal(t, "3.00", returned["late_fee"])
	assert.Equal(t, true, returned["is_returned"])

	code, env = f.do(http.MethodPost, returnPath, nil, asMember("alice"))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env = f.do(http.MethodGet, "/checkouts/history", nil, asMember("alice"))
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]map[string]any](t, env), 1)

	code, env = f.do(http.MethodPost, checkoutPath, map[string]any{"due_date": "2020-01-01"}, asMember("bob"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "due_date", env.Error.Details)
}

func TestGetCheckoutVisibility(t *testing.T) {
	f := newFixture(t)
	book := f.createBook("1234567890", "Dune", 1)
	f.createMember("alice")

	code, env := f.do(http.MethodPost, "/books/"+book.ID.String()+"/checkout",
		map[string]any{"notes": "gift wrap"}, asMember("alice"))
	require.Equal(t, http.StatusCreated, code)
	id, _ := decode[map[string]any](t, env)["id"].(string)
	require.NotEmpty(t, id)

	code, env = f.do(http.MethodGet, "/checkouts/"+id, nil, asMember("alice"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "gift wrap", decode[map[string]any](t, env)["notes"])

	code, _ = f.do(http.MethodGet, "/checkouts/"+id, nil, asMember("mallory"))
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodGet, "/checkouts/"+id, nil, asMember("librarian"), asAdmin)
	assert.Equal(t, http.StatusOK, code)
}

func TestMemberEndpoints(t *testing.T) {
	f := newFixture(t)
	f.createMember("alice")

	code, env := f.do(http.MethodGet, "/members/me", nil, asMember("alice"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", decode[library.MemberProfile](t, env).UserID)

	code, env = f.do(http.MethodPatch, "/members/me", map[string]any{"phone_number": "nope"}, asMember("alice"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "phone_number", env.Error.Details)

	code, env = f.do(http.MethodPatch, "/members/me",
		map[string]any{"phone_number": "+15551234567", "is_active": false}, asMember("alice"))
	require.Equal(t, http.StatusOK, code)
	m := decode[library.MemberProfile](t, env)
	assert.Equal(t, "+15551234567", m.Phone)
	assert.True(t, m.IsActive, "members cannot deactivate themselves")

	code, env = f.do(http.MethodPatch, "/members/alice", map[string]any{"is_active": false}, asAdmin)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decode[library.MemberProfile](t, env).IsActive)

	code, env = f.do(http.MethodGet, "/members", nil, asAdmin)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]library.MemberProfile](t, env), 1)

	code, _ = f.do(http.MethodDelete, "/members/alice", nil, asAdmin)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(http.MethodGet, "/members/me", nil, asMember("alice"))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createBook("1234567890", "Dune", 3)

	code, _ := f.do(http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := f.do(http.MethodGet, "/stats", nil, asAdmin)
	require.Equal(t, http.StatusOK, code)
	s := decode[library.Stats](t, env)
	assert.Equal(t, 1, s.TotalBooks)
	assert.Equal(t, 3, s.AvailableCopies)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind   library.Kind
		status int
		code   string
	}{
		{library.KindValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{library.KindNotFound, http.StatusNotFound, "NOT_FOUND"},
		{library.KindConflict, http.StatusConflict, "CONFLICT"},
		{library.KindUnavailable, http.StatusConflict, "UNAVAILABLE"},
		{library.KindInvariant, http.StatusInternalServerError, "INVARIANT_VIOLATION"},
		{library.KindInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			status, code := statusFor(tt.kind)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

package library

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Book represents a catalog title and its copy accounting.
type Book struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ISBN            string    `json:"isbn" db:"isbn"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	Publisher       string    `json:"publisher,omitempty" db:"publisher"`
	PublishedDate   time.Time `json:"published_date" db:"published_date"`
	Genre           string    `json:"genre,omitempty" db:"genre"`
	Description     string    `json:"description,omitempty" db:"description"`
	TotalCopies     int       `json:"total_copies" db:"total_copies"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	CheckoutCount   int       `json:"checkout_count" db:"checkout_count"`
	DateAdded       time.Time `json:"date_added" db:"date_added"`
	DateUpdated     time.Time `json:"date_updated" db:"date_updated"`
}

// IsAvailable reports whether at least one copy can be checked out.
func (b *Book) IsAvailable() bool { return b.AvailableCopies > 0 }

// SuggestedGenres lists the genres offered to librarians. Other values are accepted.
var SuggestedGenres = []string{
	"Fiction", "Non-Fiction", "Science", "History", "Biography", "Children",
	"Mystery", "Fantasy", "Romance", "Poetry", "Reference", "Other",
}

// BookInput carries the fields for CreateBook.
type BookInput struct {
	ISBN            string    `json:"isbn" validate:"required,isbn_digits"`
	Title           string    `json:"title" validate:"required,max=200"`
	Author          string    `json:"author" validate:"required,max=100"`
	Publisher       string    `json:"publisher" validate:"max=100"`
	PublishedDate   time.Time `json:"published_date" validate:"required"`
	Genre           string    `json:"genre" validate:"max=50"`
	Description     string    `json:"description"`
	TotalCopies     int       `json:"total_copies" validate:"min=1"`
	AvailableCopies *int      `json:"available_copies,omitempty"`
}

// BookPatch carries a partial update; nil fields are left unchanged.
type BookPatch struct {
	ISBN            *string    `json:"isbn,omitempty"`
	Title           *string    `json:"title,omitempty"`
	Author          *string    `json:"author,omitempty"`
	Publisher       *string    `json:"publisher,omitempty"`
	PublishedDate   *time.Time `json:"published_date,omitempty"`
	Genre           *string    `json:"genre,omitempty"`
	Description     *string    `json:"description,omitempty"`
	TotalCopies     *int       `json:"total_copies,omitempty"`
	AvailableCopies *int       `json:"available_copies,omitempty"`
}

// SearchCriteria filters Search. Empty fields do not filter.
type SearchCriteria struct {
	Query         string
	Genre         string
	Author        string
	AvailableOnly bool
	Limit         int
	Offset        int
}

// MemberProfile is the library-side profile of an externally owned user identity.
type MemberProfile struct {
	UserID           string    `json:"user_id" db:"user_id"`
	Username         string    `json:"username" db:"username"`
	MembershipDate   time.Time `json:"date_of_membership" db:"membership_date"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	Phone            string    `json:"phone_number,omitempty" db:"phone"`
	Address          string    `json:"address,omitempty" db:"address"`
	CurrentCheckouts int       `json:"current_checkouts" db:"current_checkouts"`
	TotalCheckouts   int       `json:"total_checkouts" db:"total_checkouts"`
	DateCreated      time.Time `json:"date_created" db:"date_created"`
	DateUpdated      time.Time `json:"date_updated" db:"date_updated"`
}

// MemberInput provisions a profile for a newly created user identity.
type MemberInput struct {
	UserID   string `json:"user_id" validate:"required,max=64"`
	Username string `json:"username" validate:"required,max=150"`
	Phone    string `json:"phone_number" validate:"omitempty,phone"`
	Address  string `json:"address"`
}

// MemberPatch updates a profile; nil fields are left unchanged.
type MemberPatch struct {
	Phone    *string `json:"phone_number,omitempty"`
	Address  *string `json:"address,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// Checkout is one lending of a book copy to a member.
type Checkout struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	MemberID     string     `json:"member_id" db:"member_id"`
	BookID       uuid.UUID  `json:"book_id" db:"book_id"`
	BookTitle    string     `json:"book_title" db:"book_title"`
	CheckoutDate time.Time  `json:"checkout_date" db:"checkout_date"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	ReturnDate   *time.Time `json:"return_date" db:"return_date"`
	IsReturned   bool       `json:"is_returned" db:"is_returned"`
	LateFee      Money      `json:"late_fee" db:"late_fee_cents"`
	Notes        string     `json:"notes,omitempty" db:"notes"`
}

// CheckoutOptions are the optional inputs of CreateCheckout.
type CheckoutOptions struct {
	DueDate *time.Time
	Notes   string
}

// Money is an amount in cents.
type Money int64

// String renders the amount with two decimals, e.g. "3.00".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := strconv.FormatInt(v%100, 10)
	if len(cents) == 1 {
		cents = "0" + cents
	}
	return sign + strconv.FormatInt(v/100, 10) + "." + cents
}

// MarshalJSON encodes the amount as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

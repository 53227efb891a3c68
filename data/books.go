package data

import (
	"time"

	"github.com/osezele/athenaeum/internal/validator"
)

// FulfillmentMode distinguishes finite-stock physical books from
// unlimited-access digital books.
type FulfillmentMode string

const (
	ModePhysical FulfillmentMode = "physical"
	ModeDigital  FulfillmentMode = "digital"
)

const (
	DefaultLocation = "Main library"
	DigitalLocation = "Digital library"
)

const (
	// BorrowDays is the fixed loan period for physical copies.
	BorrowDays = 14
	// DefaultRenewalPeriodDays is the renewal window applied to digital books
	// that don't specify their own.
	DefaultRenewalPeriodDays = 15
)

// PhysicalDetails carries the copy counters for a physical book.
type PhysicalDetails struct {
	TotalCopies     int `json:"total_copies"`
	AvailableCopies int `json:"available_copies"`
}

// DigitalDetails carries the access settings for a digital book.
type DigitalDetails struct {
	AccessLink        string `json:"access_link"`
	RenewalPeriodDays int    `json:"renewal_period_days"`
}

// Book defines a catalog book. Exactly one of Physical or Digital is set,
// matching Mode; the mode is fixed at creation time.
type Book struct {
	ID              int64            `json:"id"`
	CreatedAt       time.Time        `json:"created_at"`
	Title           string           `json:"title"`
	Author          string           `json:"author"`
	Genre           string           `json:"genre"`
	PublicationYear int32            `json:"publication_year"`
	Isbn            string           `json:"isbn,omitempty"`
	Description     string           `json:"description,omitempty"`
	CoverPath       string           `json:"cover_path,omitempty"`
	Location        string           `json:"location"`
	Mode            FulfillmentMode  `json:"fulfillment_mode"`
	Physical        *PhysicalDetails `json:"physical,omitempty"`
	Digital         *DigitalDetails  `json:"digital,omitempty"`
	IssuedCopies    []IssuedCopy     `json:"issued_copies,omitempty"`
	Version         int32            `json:"-"`
}

func (b *Book) IsPhysical() bool { return b.Mode == ModePhysical }

func (b *Book) IsDigital() bool { return b.Mode == ModeDigital }

// OpenIssuedCount reports how many copies are currently out, i.e. issued and
// not yet verified as returned. Pending returns still count as out.
func (b *Book) OpenIssuedCount() int {
	n := 0
	for i := range b.IssuedCopies {
		if b.IssuedCopies[i].State != CopyReturned {
			n++
		}
	}
	return n
}

// OpenIssuedCopies returns the copies that are currently out, in issue
// order. Returned copies are excluded.
func (b *Book) OpenIssuedCopies() []IssuedCopy {
	open := []IssuedCopy{}
	for i := range b.IssuedCopies {
		if b.IssuedCopies[i].State != CopyReturned {
			open = append(open, b.IssuedCopies[i])
		}
	}
	return open
}

// RenewalPeriod returns the renewal window in days for a digital book.
func (b *Book) RenewalPeriod() int {
	if b.Digital != nil && b.Digital.RenewalPeriodDays > 0 {
		return b.Digital.RenewalPeriodDays
	}
	return DefaultRenewalPeriodDays
}

// Status summarises a book's circulation state for catalog listings.
func (b *Book) Status() string {
	if b.IsDigital() {
		return "Digital"
	}
	if b.Physical != nil && b.Physical.AvailableCopies > 0 {
		return "Available"
	}
	return "Issued"
}

func ValidateBook(v *validator.Validator, book *Book) {
	v.Check(book.Title != "", "title", "must be provided")
	v.Check(len(book.Title) <= 500, "title", "must not be more than 500 bytes long")
	v.Check(book.Author != "", "author", "must be provided")
	v.Check(len(book.Author) <= 500, "author", "must not be more than 500 bytes long")
	v.Check(book.Genre != "", "genre", "must be provided")
	v.Check(book.PublicationYear != 0, "publication_year", "must be provided")
	v.Check(book.PublicationYear <= int32(time.Now().Year()), "publication_year", "must not be in the future")
	v.Check(len(book.Isbn) <= 17, "isbn", "must not be more than 17 characters")
	v.Check(validator.In(string(book.Mode), string(ModePhysical), string(ModeDigital)), "fulfillment_mode", "must be either physical or digital")
	switch book.Mode {
	case ModePhysical:
		v.Check(book.Digital == nil, "access_link", "must not be set for physical books")
		if book.Physical == nil {
			v.AddError("total_copies", "must be provided for physical books")
			return
		}
		v.Check(book.Physical.TotalCopies >= 1, "total_copies", "must be at least 1 for physical books")
		ok := book.Physical.AvailableCopies >= 0 && book.Physical.AvailableCopies <= book.Physical.TotalCopies
		v.Check(ok, "available_copies", "must be between zero and total copies")
	case ModeDigital:
		v.Check(book.Physical == nil, "total_copies", "must not be set for digital books")
		if book.Digital == nil {
			v.AddError("access_link", "must be provided for digital books")
			return
		}
		v.Check(book.Digital.AccessLink != "", "access_link", "must be provided for digital books")
		v.Check(book.Digital.RenewalPeriodDays >= 1, "renewal_period_days", "must be a positive number of days")
	}
}

// Availability is the read model returned by the availability endpoint.
// Copy counters are nil for digital books, which are unlimited.
type Availability struct {
	BookID          int64           `json:"book_id"`
	Title           string          `json:"title"`
	Mode            FulfillmentMode `json:"fulfillment_mode"`
	TotalCopies     *int            `json:"total_copies"`
	AvailableCopies *int            `json:"available_copies"`
	Status          string          `json:"status"`
	IssuedCopies    []IssuedCopy    `json:"issued_copies"`
}

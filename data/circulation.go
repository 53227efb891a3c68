package data

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CopyState is the lifecycle state of a single borrow record.
//
//	active --[borrower requests return, physical]--> pending_return --[staff verifies]--> returned
//	active --[borrower returns, digital]--------------------------------------------> returned
//	active --[renew, digital]--> active
//
// A record is created in the active state and returned is terminal.
type CopyState string

const (
	CopyActive        CopyState = "active"
	CopyPendingReturn CopyState = "pending_return"
	CopyReturned      CopyState = "returned"
)

// Transition errors reported by the loan state machine.
var (
	ErrLoanNotActive      = errors.New("loan is not active")
	ErrLoanAlreadyPending = errors.New("return request already submitted")
	ErrLoanNotPending     = errors.New("loan has no pending return to verify")
	ErrLoanNotRenewable   = errors.New("only digital loans can be renewed")
)

// Renewal records one due-date extension of a digital loan.
type Renewal struct {
	RenewedAt  time.Time `json:"renewed_at"`
	NewDueDate time.Time `json:"new_due_date"`
}

// IssuedCopy is one borrow event, owned by its book. Records are appended on
// borrow and only ever transitioned afterwards, never deleted, so a book's
// issued list doubles as its circulation history.
type IssuedCopy struct {
	ID                uuid.UUID  `json:"id"`
	BookID            int64      `json:"book_id"`
	BorrowerID        int64      `json:"borrower_id"`
	BorrowerName      string     `json:"borrower_name"`
	IssueDate         time.Time  `json:"issue_date"`
	DueDate           time.Time  `json:"due_date"`
	State             CopyState  `json:"state"`
	ReturnRequestedAt *time.Time `json:"return_requested_at,omitempty"`
	ReturnDate        *time.Time `json:"return_date,omitempty"`
	ReturnVerifiedAt  *time.Time `json:"return_verified_at,omitempty"`
	VerifiedBy        int64      `json:"verified_by,omitempty"`
	Renewals          []Renewal  `json:"renewals,omitempty"`
	Version           int32      `json:"-"`
}

// BorrowLedgerEntry mirrors an IssuedCopy on the borrowing user's profile so
// the profile can answer "what have I borrowed" without touching every book.
// It shares the IssuedCopy's ID and is mutated in the same transaction on
// every transition.
type BorrowLedgerEntry struct {
	ID                uuid.UUID       `json:"id"`
	UserID            int64           `json:"-"`
	BookID            int64           `json:"book_id"`
	BookTitle         string          `json:"book_title"`
	Mode              FulfillmentMode `json:"fulfillment_mode"`
	AccessLink        string          `json:"access_link,omitempty"`
	BorrowDate        time.Time       `json:"borrow_date"`
	DueDate           time.Time       `json:"due_date"`
	State             CopyState       `json:"state"`
	ReturnRequestedAt *time.Time      `json:"return_requested_at,omitempty"`
	ReturnDate        *time.Time      `json:"return_date,omitempty"`
	ReturnVerifiedAt  *time.Time      `json:"return_verified_at,omitempty"`
	Renewals          []Renewal       `json:"renewals,omitempty"`
	Version           int32           `json:"-"`
}

// Loan pairs an issued copy with its ledger mirror. The pair is the
// consistency boundary of the circulation engine: every transition mutates
// both sides together and the repository persists them in one transaction.
type Loan struct {
	Copy  *IssuedCopy
	Entry *BorrowLedgerEntry
}

// NewLoan creates the paired records for a borrow at time now. Physical loans
// are due after the fixed loan period; digital access must be renewed every
// renewal period. The caller is responsible for the stock decrement on
// physical books.
func NewLoan(book *Book, user *User, now time.Time) *Loan {
	id := uuid.New()
	due := now.AddDate(0, 0, BorrowDays)
	if book.IsDigital() {
		due = now.AddDate(0, 0, book.RenewalPeriod())
	}
	copy := &IssuedCopy{
		ID:           id,
		BookID:       book.ID,
		BorrowerID:   user.ID,
		BorrowerName: user.Name,
		IssueDate:    now,
		DueDate:      due,
		State:        CopyActive,
	}
	entry := &BorrowLedgerEntry{
		ID:         id,
		UserID:     user.ID,
		BookID:     book.ID,
		BookTitle:  book.Title,
		Mode:       book.Mode,
		BorrowDate: now,
		DueDate:    due,
		State:      CopyActive,
	}
	if book.IsDigital() {
		entry.AccessLink = book.Digital.AccessLink
	}
	return &Loan{Copy: copy, Entry: entry}
}

// Renew extends a digital loan's due date and appends to both renewal
// histories. The new due date anchors on the later of now and the current
// due date: renewing early never shortens access, and an overdue renewal
// gets exactly one standard window from now.
func (l *Loan) Renew(now time.Time, periodDays int) error {
	if l.Entry.Mode != ModeDigital {
		return ErrLoanNotRenewable
	}
	if l.Copy.State != CopyActive {
		return ErrLoanNotActive
	}
	anchor := l.Copy.DueDate
	if now.After(anchor) {
		anchor = now
	}
	due := anchor.AddDate(0, 0, periodDays)
	renewal := Renewal{RenewedAt: now, NewDueDate: due}
	l.Copy.DueDate = due
	l.Copy.Renewals = append(l.Copy.Renewals, renewal)
	l.Entry.DueDate = due
	l.Entry.Renewals = append(l.Entry.Renewals, renewal)
	return nil
}

// RequestReturn moves a physical loan into the pending state awaiting staff
// verification. The copy stays off the shelf until VerifyReturn confirms it.
func (l *Loan) RequestReturn(now time.Time) error {
	switch l.Copy.State {
	case CopyPendingReturn:
		return ErrLoanAlreadyPending
	case CopyReturned:
		return ErrLoanNotActive
	}
	t := now
	l.Copy.State = CopyPendingReturn
	l.Copy.ReturnRequestedAt = &t
	l.Entry.State = CopyPendingReturn
	l.Entry.ReturnRequestedAt = &t
	return nil
}

// VerifyReturn completes a pending return after a staff member has confirmed
// the physical copy is back. Calling it on a loan in any other state fails.
func (l *Loan) VerifyReturn(now time.Time, verifierID int64) error {
	if l.Copy.State != CopyPendingReturn {
		return ErrLoanNotPending
	}
	l.close(now)
	l.Copy.VerifiedBy = verifierID
	return nil
}

// CompleteReturn closes the loan directly from the active or pending state.
// Digital returns are self-service (verifierID zero); staff use it to verify
// a physical return in one step when the borrower is standing at the desk.
func (l *Loan) CompleteReturn(now time.Time, verifierID int64) error {
	if l.Copy.State == CopyReturned {
		return ErrLoanNotActive
	}
	l.close(now)
	l.Copy.VerifiedBy = verifierID
	return nil
}

func (l *Loan) close(now time.Time) {
	t := now
	l.Copy.State = CopyReturned
	l.Copy.ReturnDate = &t
	l.Copy.ReturnVerifiedAt = &t
	l.Entry.State = CopyReturned
	l.Entry.ReturnDate = &t
	l.Entry.ReturnVerifiedAt = &t
	l.Entry.AccessLink = ""
}

// PendingReturn is the read model for the staff verification queue: one row
// per copy awaiting physical confirmation, joined with its book and borrower.
type PendingReturn struct {
	CopyID            uuid.UUID `json:"copy_id"`
	BookID            int64     `json:"book_id"`
	BookTitle         string    `json:"book_title"`
	Location          string    `json:"location"`
	BorrowerID        int64     `json:"borrower_id"`
	BorrowerName      string    `json:"borrower_name"`
	BorrowerEmail     string    `json:"borrower_email"`
	IssueDate         time.Time `json:"issue_date"`
	DueDate           time.Time `json:"due_date"`
	ReturnRequestedAt time.Time `json:"return_requested_at"`
}

// CirculationStats aggregates the circulation log across all books.
type CirculationStats struct {
	TotalBorrowed       int `json:"total_borrowed"`
	TotalReturned       int `json:"total_returned"`
	Overdue             int `json:"overdue"`
	PendingReturns      int `json:"pending_returns"`
	ActiveDigitalAccess int `json:"active_digital_access"`
}

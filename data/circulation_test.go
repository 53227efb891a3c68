package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func physicalBook(total, available int) *Book {
	return &Book{
		ID:              1,
		Title:           "The Palm-Wine Drinkard",
		Author:          "Amos Tutuola",
		Genre:           "Fiction",
		PublicationYear: 1952,
		Location:        DefaultLocation,
		Mode:            ModePhysical,
		Physical:        &PhysicalDetails{TotalCopies: total, AvailableCopies: available},
	}
}

func digitalBook(period int) *Book {
	return &Book{
		ID:              2,
		Title:           "Things Fall Apart",
		Author:          "Chinua Achebe",
		Genre:           "Fiction",
		PublicationYear: 1958,
		Location:        DigitalLocation,
		Mode:            ModeDigital,
		Digital:         &DigitalDetails{AccessLink: "https://drive.example.com/doc/1", RenewalPeriodDays: period},
	}
}

func borrower() *User {
	return &User{ID: 7, Name: "Ada Obi", Email: "ada@example.com", Role: RoleUser, Activated: true}
}

func TestNewLoanPhysical(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	loan := NewLoan(physicalBook(2, 2), borrower(), now)

	assert.Equal(t, CopyActive, loan.Copy.State)
	assert.Equal(t, CopyActive, loan.Entry.State)
	assert.Equal(t, loan.Copy.ID, loan.Entry.ID, "copy and ledger entry must share an id")
	assert.Equal(t, now.AddDate(0, 0, BorrowDays), loan.Copy.DueDate)
	assert.Equal(t, loan.Copy.DueDate, loan.Entry.DueDate)
	assert.Empty(t, loan.Entry.AccessLink, "physical loans carry no access link")
	assert.Equal(t, "Ada Obi", loan.Copy.BorrowerName)
	assert.Equal(t, "The Palm-Wine Drinkard", loan.Entry.BookTitle)
}

func TestNewLoanDigital(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	book := digitalBook(15)
	loan := NewLoan(book, borrower(), now)

	assert.Equal(t, now.AddDate(0, 0, 15), loan.Copy.DueDate)
	assert.Equal(t, book.Digital.AccessLink, loan.Entry.AccessLink)
	assert.Equal(t, ModeDigital, loan.Entry.Mode)
}

func TestRenewAnchorsOnDueDateWhenEarly(t *testing.T) {
	issued := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	loan := NewLoan(digitalBook(15), borrower(), issued)
	originalDue := loan.Copy.DueDate

	// Renewing five days in, well before the due date: the new window stacks
	// on top of the remaining access instead of restarting from now.
	now := issued.AddDate(0, 0, 5)
	require.NoError(t, loan.Renew(now, 15))

	assert.Equal(t, originalDue.AddDate(0, 0, 15), loan.Copy.DueDate)
	assert.Equal(t, loan.Copy.DueDate, loan.Entry.DueDate)
	require.Len(t, loan.Copy.Renewals, 1)
	require.Len(t, loan.Entry.Renewals, 1)
	assert.Equal(t, now, loan.Copy.Renewals[0].RenewedAt)
	assert.Equal(t, loan.Copy.DueDate, loan.Copy.Renewals[0].NewDueDate)
}

func TestRenewAnchorsOnNowWhenOverdue(t *testing.T) {
	issued := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	loan := NewLoan(digitalBook(15), borrower(), issued)

	// Ten days overdue: the renewal grants one standard window from now, not
	// extra slack measured from the stale due date.
	now := loan.Copy.DueDate.AddDate(0, 0, 10)
	require.NoError(t, loan.Renew(now, 15))

	assert.Equal(t, now.AddDate(0, 0, 15), loan.Copy.DueDate)
}

func TestRenewRejectsPhysicalLoans(t *testing.T) {
	now := time.Now()
	loan := NewLoan(physicalBook(1, 1), borrower(), now)

	err := loan.Renew(now, 15)
	assert.ErrorIs(t, err, ErrLoanNotRenewable)
}

func TestRenewRejectsClosedLoans(t *testing.T) {
	now := time.Now()
	loan := NewLoan(digitalBook(15), borrower(), now)
	require.NoError(t, loan.CompleteReturn(now, 0))

	err := loan.Renew(now, 15)
	assert.ErrorIs(t, err, ErrLoanNotActive)
}

func TestRequestReturnTransitions(t *testing.T) {
	now := time.Now()
	loan := NewLoan(physicalBook(1, 1), borrower(), now)

	require.NoError(t, loan.RequestReturn(now))
	assert.Equal(t, CopyPendingReturn, loan.Copy.State)
	assert.Equal(t, CopyPendingReturn, loan.Entry.State)
	require.NotNil(t, loan.Copy.ReturnRequestedAt)
	require.NotNil(t, loan.Entry.ReturnRequestedAt)
	assert.Nil(t, loan.Copy.ReturnVerifiedAt, "request alone must not close the loan")

	// A second request while the first is pending is refused.
	err := loan.RequestReturn(now)
	assert.ErrorIs(t, err, ErrLoanAlreadyPending)
}

func TestVerifyReturnRequiresPendingState(t *testing.T) {
	now := time.Now()
	loan := NewLoan(physicalBook(1, 1), borrower(), now)

	err := loan.VerifyReturn(now, 99)
	assert.ErrorIs(t, err, ErrLoanNotPending, "active loan cannot be verified")
	assert.Equal(t, CopyActive, loan.Copy.State)

	require.NoError(t, loan.RequestReturn(now))
	require.NoError(t, loan.VerifyReturn(now, 99))
	assert.Equal(t, CopyReturned, loan.Copy.State)
	assert.Equal(t, CopyReturned, loan.Entry.State)
	assert.Equal(t, int64(99), loan.Copy.VerifiedBy)
	require.NotNil(t, loan.Copy.ReturnVerifiedAt)
	require.NotNil(t, loan.Entry.ReturnVerifiedAt)
	assert.Equal(t, *loan.Copy.ReturnVerifiedAt, *loan.Entry.ReturnVerifiedAt)
	assert.Equal(t, *loan.Copy.ReturnDate, *loan.Entry.ReturnDate)

	err = loan.VerifyReturn(now, 99)
	assert.ErrorIs(t, err, ErrLoanNotPending, "returned is terminal")
}

func TestCompleteReturnDigitalClearsAccessLink(t *testing.T) {
	now := time.Now()
	loan := NewLoan(digitalBook(15), borrower(), now)
	require.NotEmpty(t, loan.Entry.AccessLink)

	require.NoError(t, loan.CompleteReturn(now, 0))
	assert.Equal(t, CopyReturned, loan.Copy.State)
	assert.Equal(t, CopyReturned, loan.Entry.State)
	assert.Empty(t, loan.Entry.AccessLink)

	err := loan.CompleteReturn(now, 0)
	assert.ErrorIs(t, err, ErrLoanNotActive)
}

func TestCompleteReturnClosesPendingLoan(t *testing.T) {
	// Staff verifying directly at the desk combines request and verify.
	now := time.Now()
	loan := NewLoan(physicalBook(1, 1), borrower(), now)
	require.NoError(t, loan.RequestReturn(now))

	require.NoError(t, loan.CompleteReturn(now, 42))
	assert.Equal(t, CopyReturned, loan.Copy.State)
	assert.Equal(t, int64(42), loan.Copy.VerifiedBy)
}

func TestRoundTripWithRenewals(t *testing.T) {
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loan := NewLoan(digitalBook(15), borrower(), issued)

	now := issued
	for i := 0; i < 3; i++ {
		now = now.AddDate(0, 0, 10)
		require.NoError(t, loan.Renew(now, 15))
	}
	require.NoError(t, loan.CompleteReturn(now, 0))

	assert.Equal(t, CopyReturned, loan.Copy.State)
	assert.Equal(t, CopyReturned, loan.Entry.State)
	assert.Len(t, loan.Copy.Renewals, 3)
	assert.Equal(t, loan.Copy.Renewals, loan.Entry.Renewals)
	assert.Equal(t, *loan.Copy.ReturnVerifiedAt, *loan.Entry.ReturnVerifiedAt)
}

func TestOpenIssuedCount(t *testing.T) {
	now := time.Now()
	book := physicalBook(3, 3)
	user := borrower()

	active := NewLoan(book, user, now)
	pending := NewLoan(book, user, now)
	require.NoError(t, pending.RequestReturn(now))
	returned := NewLoan(book, user, now)
	require.NoError(t, returned.RequestReturn(now))
	require.NoError(t, returned.VerifyReturn(now, 1))

	book.IssuedCopies = []IssuedCopy{*active.Copy, *pending.Copy, *returned.Copy}
	assert.Equal(t, 2, book.OpenIssuedCount(), "active and pending copies are both still out")
}

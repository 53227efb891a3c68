package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/osezele/athenaeum/data"
	"github.com/osezele/athenaeum/internal/validator"
	"github.com/osezele/athenaeum/repository"
)

type circulation interface {
	BorrowBook(bookID int64, userID int64) (*data.Loan, error)
	RenewBook(bookID int64, userID int64) (*data.Loan, error)
	ReturnBook(bookID int64, userID int64) (*data.Loan, error)
	VerifyReturn(copyID uuid.UUID, verifierID int64) (*data.Loan, error)
	VerifyReturnForBorrower(bookID int64, borrowerID int64, verifierID int64) (*data.Loan, error)
	ListPendingReturns() ([]*data.PendingReturn, error)
	ListUserBorrows(userID int64, filters data.Filters) ([]*data.BorrowLedgerEntry, data.Metadata, error)
	GetCirculationStats() (*data.CirculationStats, error)
}

// BorrowBook service checks a book out to a user. A user holds at most one
// open loan per book; for physical books the stock decrement and the loan
// records commit together, so two users cannot both take the last copy.
func (s *service) BorrowBook(bookID int64, userID int64) (*data.Loan, error) {
	book, err := s.repo.GetBook(bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	_, err = s.repo.GetOpenLoanForUser(bookID, userID)
	switch {
	case err == nil:
		if book.IsDigital() {
			return nil, ErrDigitalAccessActive
		}
		return nil, ErrAlreadyBorrowed
	case errors.Is(err, repository.ErrRecordNotFound):
	default:
		return nil, err
	}
	if book.IsPhysical() && book.Physical.AvailableCopies < 1 {
		return nil, ErrNoCopiesAvailable
	}
	loan := data.NewLoan(book, user, time.Now())
	err = s.repo.CreateLoan(loan, book.Mode)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNoCopiesAvailable):
			return nil, ErrNoCopiesAvailable
		case errors.Is(err, repository.ErrDuplicateRecord):
			// A concurrent borrow by the same user won the race after the
			// open-loan check above.
			if book.IsDigital() {
				return nil, ErrDigitalAccessActive
			}
			return nil, ErrAlreadyBorrowed
		default:
			return nil, err
		}
	}
	return loan, nil
}

// RenewBook service extends a user's digital access to a book. Physical
// loans have a fixed period and cannot be renewed.
func (s *service) RenewBook(bookID int64, userID int64) (*data.Loan, error) {
	book, err := s.repo.GetBook(bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	loan, err := s.getOpenLoan(bookID, userID)
	if err != nil {
		return nil, err
	}
	err = loan.Renew(time.Now(), book.RenewalPeriod())
	if err != nil {
		switch {
		case errors.Is(err, data.ErrLoanNotRenewable):
			return nil, ErrRenewNotSupported
		case errors.Is(err, data.ErrLoanNotActive):
			return nil, ErrReturnAlreadyPending
		default:
			return nil, err
		}
	}
	err = s.updateLoan(loan, 0)
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ReturnBook service processes a borrower-initiated return. Digital access
// ends immediately; a physical return only marks the copy pending, and the
// copy stays off the shelf until staff verify it came back.
func (s *service) ReturnBook(bookID int64, userID int64) (*data.Loan, error) {
	loan, err := s.getOpenLoan(bookID, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if loan.Entry.Mode == data.ModeDigital {
		err = loan.CompleteReturn(now, 0)
	} else {
		err = loan.RequestReturn(now)
	}
	if err != nil {
		switch {
		case errors.Is(err, data.ErrLoanAlreadyPending):
			return nil, ErrReturnAlreadyPending
		case errors.Is(err, data.ErrLoanNotActive):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	err = s.updateLoan(loan, 0)
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// VerifyReturn service confirms a pending physical return and puts the copy
// back on the shelf. Only now does the available count go up.
func (s *service) VerifyReturn(copyID uuid.UUID, verifierID int64) (*data.Loan, error) {
	loan, err := s.repo.GetLoan(copyID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	err = loan.VerifyReturn(time.Now(), verifierID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrLoanNotPending):
			return nil, ErrCopyNotPending
		default:
			return nil, err
		}
	}
	err = s.updateLoan(loan, 1)
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// VerifyReturnForBorrower service closes a borrower's open loan on a book in
// one step, for staff handling a return at the desk. It works from both the
// active and the pending state.
func (s *service) VerifyReturnForBorrower(bookID int64, borrowerID int64, verifierID int64) (*data.Loan, error) {
	loan, err := s.getOpenLoan(bookID, borrowerID)
	if err != nil {
		return nil, err
	}
	err = loan.CompleteReturn(time.Now(), verifierID)
	if err != nil {
		return nil, err
	}
	stockDelta := 0
	if loan.Entry.Mode == data.ModePhysical {
		stockDelta = 1
	}
	err = s.updateLoan(loan, stockDelta)
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ListPendingReturns service retrieves the staff verification queue.
func (s *service) ListPendingReturns() ([]*data.PendingReturn, error) {
	return s.repo.GetAllPendingReturns()
}

// ListUserBorrows service retrieves a user's borrow ledger, paginated.
func (s *service) ListUserBorrows(userID int64, filters data.Filters) ([]*data.BorrowLedgerEntry, data.Metadata, error) {
	v := validator.New()
	if data.ValidateFilters(v, filters); !v.Valid() {
		ErrFailedValidation = s.failedValidation(v.Errors)
		return nil, data.Metadata{}, ErrFailedValidation
	}
	entries, metadata, err := s.repo.GetAllLoansForUser(userID, filters)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	return entries, metadata, nil
}

// GetCirculationStats service aggregates circulation totals for the staff
// dashboard.
func (s *service) GetCirculationStats() (*data.CirculationStats, error) {
	return s.repo.GetCirculationStats()
}

func (s *service) getOpenLoan(bookID, userID int64) (*data.Loan, error) {
	loan, err := s.repo.GetOpenLoanForUser(bookID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return loan, nil
}

func (s *service) updateLoan(loan *data.Loan, stockDelta int) error {
	err := s.repo.UpdateLoan(loan, stockDelta)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			return ErrEditConflict
		default:
			return err
		}
	}
	return nil
}

package service

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/osezele/athenaeum/config"
	"github.com/osezele/athenaeum/data"
	"github.com/osezele/athenaeum/internal/jsonlog"
	"github.com/osezele/athenaeum/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory Repository. Its CreateLoan and UpdateLoan take the
// same care as the real implementation: the stock check, the decrement and
// the record writes happen under one lock, so concurrent borrow tests
// exercise the same guarantees the database transaction provides.
type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	books  map[int64]*data.Book
	users  map[int64]*data.User
	copies map[uuid.UUID]*data.IssuedCopy
	ledger map[uuid.UUID]*data.BorrowLedgerEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextID: 1,
		books:  map[int64]*data.Book{},
		users:  map[int64]*data.User{},
		copies: map[uuid.UUID]*data.IssuedCopy{},
		ledger: map[uuid.UUID]*data.BorrowLedgerEntry{},
	}
}

func (f *fakeRepo) CreateBook(book *data.Book) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	book.ID = f.nextID
	f.nextID++
	book.Version = 1
	f.books[book.ID] = copyBook(book)
	return nil
}

func (f *fakeRepo) GetBook(ID int64) (*data.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	book, ok := f.books[ID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	out := copyBook(book)
	for _, c := range f.copies {
		if c.BookID == ID {
			out.IssuedCopies = append(out.IssuedCopies, *c)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAllBooks(search, genre, location, mode string, filters data.Filters) ([]*data.Book, data.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	books := []*data.Book{}
	for _, book := range f.books {
		books = append(books, copyBook(book))
	}
	return books, data.CalculateMetadata(len(books), filters.Page, filters.PageSize), nil
}

func (f *fakeRepo) UpdateBook(book *data.Book) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.books[book.ID]
	if !ok || current.Version != book.Version {
		return repository.ErrEditConflict
	}
	book.Version++
	f.books[book.ID] = copyBook(book)
	return nil
}

func (f *fakeRepo) DeleteBook(bookID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[bookID]; !ok {
		return repository.ErrRecordNotFound
	}
	delete(f.books, bookID)
	return nil
}

func (f *fakeRepo) GetLoan(copyID uuid.UUID) (*data.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy, ok := f.copies[copyID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	entry := f.ledger[copyID]
	c, e := *copy, *entry
	return &data.Loan{Copy: &c, Entry: &e}, nil
}

func (f *fakeRepo) GetOpenLoanForUser(bookID, userID int64) (*data.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, copy := range f.copies {
		if copy.BookID == bookID && copy.BorrowerID == userID && copy.State != data.CopyReturned {
			entry := f.ledger[id]
			c, e := *copy, *entry
			return &data.Loan{Copy: &c, Entry: &e}, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (f *fakeRepo) CreateLoan(loan *data.Loan, mode data.FulfillmentMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.copies {
		if c.BookID == loan.Copy.BookID && c.BorrowerID == loan.Copy.BorrowerID && c.State != data.CopyReturned {
			return repository.ErrDuplicateRecord
		}
	}
	if mode == data.ModePhysical {
		book := f.books[loan.Copy.BookID]
		if book.Physical.AvailableCopies < 1 {
			return repository.ErrNoCopiesAvailable
		}
		book.Physical.AvailableCopies--
		book.Version++
	}
	loan.Copy.Version = 1
	loan.Entry.Version = 1
	c, e := *loan.Copy, *loan.Entry
	f.copies[loan.Copy.ID] = &c
	f.ledger[loan.Entry.ID] = &e
	return nil
}

func (f *fakeRepo) UpdateLoan(loan *data.Loan, stockDelta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.copies[loan.Copy.ID]
	if !ok || current.Version != loan.Copy.Version {
		return repository.ErrEditConflict
	}
	loan.Copy.Version++
	loan.Entry.Version++
	c, e := *loan.Copy, *loan.Entry
	f.copies[loan.Copy.ID] = &c
	f.ledger[loan.Entry.ID] = &e
	if stockDelta > 0 {
		book := f.books[loan.Copy.BookID]
		if book.IsPhysical() {
			available := book.Physical.AvailableCopies + stockDelta
			if available > book.Physical.TotalCopies {
				available = book.Physical.TotalCopies
			}
			book.Physical.AvailableCopies = available
			book.Version++
		}
	}
	return nil
}

func (f *fakeRepo) GetAllPendingReturns() ([]*data.PendingReturn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := []*data.PendingReturn{}
	for id, copy := range f.copies {
		if copy.State != data.CopyPendingReturn {
			continue
		}
		book := f.books[copy.BookID]
		user := f.users[copy.BorrowerID]
		pending = append(pending, &data.PendingReturn{
			CopyID:            id,
			BookID:            book.ID,
			BookTitle:         book.Title,
			Location:          book.Location,
			BorrowerID:        user.ID,
			BorrowerName:      user.Name,
			BorrowerEmail:     user.Email,
			IssueDate:         copy.IssueDate,
			DueDate:           copy.DueDate,
			ReturnRequestedAt: *copy.ReturnRequestedAt,
		})
	}
	return pending, nil
}

func (f *fakeRepo) GetAllLoansForUser(userID int64, filters data.Filters) ([]*data.BorrowLedgerEntry, data.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := []*data.BorrowLedgerEntry{}
	for _, entry := range f.ledger {
		if entry.UserID == userID {
			e := *entry
			entries = append(entries, &e)
		}
	}
	return entries, data.CalculateMetadata(len(entries), filters.Page, filters.PageSize), nil
}

func (f *fakeRepo) GetCirculationStats() (*data.CirculationStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &data.CirculationStats{}
	now := time.Now()
	for _, copy := range f.copies {
		book := f.books[copy.BookID]
		switch {
		case copy.State == data.CopyReturned:
			stats.TotalReturned++
		default:
			stats.TotalBorrowed++
			if copy.DueDate.Before(now) {
				stats.Overdue++
			}
			if copy.State == data.CopyPendingReturn {
				stats.PendingReturns++
			}
			if copy.State == data.CopyActive && book.IsDigital() {
				stats.ActiveDigitalAccess++
			}
		}
	}
	return stats, nil
}

func (f *fakeRepo) RegisterUser(user *data.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = f.nextID
	f.nextID++
	user.Version = 1
	u := *user
	f.users[user.ID] = &u
	return nil
}

func (f *fakeRepo) GetUserByID(id int64) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	u := *user
	return &u, nil
}

func (f *fakeRepo) GetUserByEmail(email string) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			u := *user
			return &u, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (f *fakeRepo) UpdateUser(user *data.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.users[user.ID]
	if !ok || current.Version != user.Version {
		return repository.ErrEditConflict
	}
	user.Version++
	u := *user
	f.users[user.ID] = &u
	return nil
}

func (f *fakeRepo) GetUserForToken(tokenScope, tokenPlaintext string) (*data.User, error) {
	return nil, repository.ErrRecordNotFound
}

func (f *fakeRepo) CreateNewToken(userID int64, ttl time.Duration, scope string) (*data.Token, error) {
	return &data.Token{UserID: userID, Scope: scope, Expiry: time.Now().Add(ttl)}, nil
}

func (f *fakeRepo) DeleteAllTokensForUser(scope string, userID int64) error {
	return nil
}

func copyBook(book *data.Book) *data.Book {
	out := *book
	if book.Physical != nil {
		physical := *book.Physical
		out.Physical = &physical
	}
	if book.Digital != nil {
		digital := *book.Digital
		out.Digital = &digital
	}
	out.IssuedCopies = nil
	return &out
}

func newTestService(t *testing.T, repo *fakeRepo) *service {
	t.Helper()
	logger := jsonlog.New(io.Discard, jsonlog.LevelError)
	var wg sync.WaitGroup
	return New(config.Config{}, &wg, logger, repo)
}

func seedPhysicalBook(t *testing.T, repo *fakeRepo, copies int) *data.Book {
	t.Helper()
	book := &data.Book{
		Title:           "The Pragmatic Programmer",
		Author:          "David Thomas",
		Genre:           "Software",
		PublicationYear: 1999,
		Location:        data.DefaultLocation,
		Mode:            data.ModePhysical,
		Physical:        &data.PhysicalDetails{TotalCopies: copies, AvailableCopies: copies},
	}
	require.NoError(t, repo.CreateBook(book))
	return book
}

func seedDigitalBook(t *testing.T, repo *fakeRepo) *data.Book {
	t.Helper()
	book := &data.Book{
		Title:           "The Go Programming Language",
		Author:          "Alan Donovan",
		Genre:           "Software",
		PublicationYear: 2015,
		Location:        data.DigitalLocation,
		Mode:            data.ModeDigital,
		Digital:         &data.DigitalDetails{AccessLink: "https://ebooks.example.com/gopl", RenewalPeriodDays: 15},
	}
	require.NoError(t, repo.CreateBook(book))
	return book
}

func seedUser(t *testing.T, repo *fakeRepo, name, email string) *data.User {
	t.Helper()
	user := &data.User{Name: name, Email: email, Role: data.RoleUser, Activated: true}
	require.NoError(t, user.Password.Set("pa55word1234"))
	require.NoError(t, repo.RegisterUser(user))
	return user
}

func TestBorrowBook_Physical(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	book := seedPhysicalBook(t, repo, 3)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")

	loan, err := s.BorrowBook(book.ID, user.ID)
	require.NoError(t, err)

	assert.Equal(t, data.CopyActive, loan.Copy.State)
	assert.Equal(t, loan.Copy.ID, loan.Entry.ID)
	assert.Equal(t, book.Title, loan.Entry.BookTitle)
	assert.Empty(t, loan.Entry.AccessLink)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, data.BorrowDays), loan.Copy.DueDate, time.Minute)

	stored, err := repo.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Physical.AvailableCopies)
	assert.Equal(t, 3, stored.Physical.TotalCopies)
}

func TestBorrowBook_SecondBorrowRejected(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	physical := seedPhysicalBook(t, repo, 3)
	digital := seedDigitalBook(t, repo)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")

	_, err := s.BorrowBook(physical.ID, user.ID)
	require.NoError(t, err)
	_, err = s.BorrowBook(physical.ID, user.ID)
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)

	_, err = s.BorrowBook(digital.ID, user.ID)
	require.NoError(t, err)
	_, err = s.BorrowBook(digital.ID, user.ID)
	assert.ErrorIs(t, err, ErrDigitalAccessActive)
}

func TestBorrowBook_LastCopyRace(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	book := seedPhysicalBook(t, repo, 1)
	alice := seedUser(t, repo, "Alice", "alice@example.com")
	bob := seedUser(t, repo, "Bob", "bob@example.com")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, userID := range []int64{alice.ID, bob.ID} {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			_, errs[i] = s.BorrowBook(book.ID, userID)
		}(i, userID)
	}
	wg.Wait()

	succeeded, refused := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrNoCopiesAvailable):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, refused)

	stored, err := repo.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Physical.AvailableCopies)
}

// blindOpenLoanRepo never reports an existing open loan, so two borrows of
// the same book by one user both pass the pre-check and the duplicate is
// only caught at insert time.
type blindOpenLoanRepo struct {
	*fakeRepo
}

func (r *blindOpenLoanRepo) GetOpenLoanForUser(bookID, userID int64) (*data.Loan, error) {
	return nil, repository.ErrRecordNotFound
}

func TestBorrowBook_SameUserRace(t *testing.T) {
	repo := newFakeRepo()
	physical := seedPhysicalBook(t, repo, 3)
	digital := seedDigitalBook(t, repo)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")

	logger := jsonlog.New(io.Discard, jsonlog.LevelError)
	var wg sync.WaitGroup
	s := New(config.Config{}, &wg, logger, &blindOpenLoanRepo{repo})

	_, err := s.BorrowBook(physical.ID, user.ID)
	require.NoError(t, err)
	_, err = s.BorrowBook(physical.ID, user.ID)
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)

	_, err = s.BorrowBook(digital.ID, user.ID)
	require.NoError(t, err)
	_, err = s.BorrowBook(digital.ID, user.ID)
	assert.ErrorIs(t, err, ErrDigitalAccessActive)
}

func TestReturnFlow_Physical(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	book := seedPhysicalBook(t, repo, 2)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")
	staff := seedUser(t, repo, "Grace Hopper", "grace@example.com")

	loan, err := s.BorrowBook(book.ID, user.ID)
	require.NoError(t, err)

	// A return request parks the copy in pending and does not free stock.
	loan, err = s.ReturnBook(book.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, data.CopyPendingReturn, loan.Copy.State)
	assert.NotNil(t, loan.Copy.ReturnRequestedAt)
	assert.Nil(t, loan.Copy.ReturnDate)

	stored, err := repo.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Physical.AvailableCopies)

	// Requesting again is a conflict.
	_, err = s.ReturnBook(book.ID, user.ID)
	assert.ErrorIs(t, err, ErrReturnAlreadyPending)

	pending, err := s.ListPendingReturns()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, loan.Copy.ID, pending[0].CopyID)

	// Verification closes the loan and frees the copy.
	loan, err = s.VerifyReturn(loan.Copy.ID, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, data.CopyReturned, loan.Copy.State)
	assert.Equal(t, staff.ID, loan.Copy.VerifiedBy)
	assert.NotNil(t, loan.Copy.ReturnDate)

	stored, err = repo.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Physical.AvailableCopies)

	// Verifying a closed copy fails.
	_, err = s.VerifyReturn(loan.Copy.ID, staff.ID)
	assert.ErrorIs(t, err, ErrCopyNotPending)
}

func TestVerifyReturn_RequiresPending(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	book := seedPhysicalBook(t, repo, 1)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")
	staff := seedUser(t, repo, "Grace Hopper", "grace@example.com")

	loan, err := s.BorrowBook(book.ID, user.ID)
	require.NoError(t, err)

	_, err = s.VerifyReturn(loan.Copy.ID, staff.ID)
	assert.ErrorIs(t, err, ErrCopyNotPending)

	_, err = s.VerifyReturn(uuid.New(), staff.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestVerifyReturnForBorrower_ClosesActiveLoan(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	book := seedPhysicalBook(t, repo, 1)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")
	staff := seedUser(t, repo, "Grace Hopper", "grace@example.com")

	_, err := s.BorrowBook(book.ID, user.ID)
	require.NoError(t, err)

	// Staff close the loan in one step, no prior return request needed.
	loan, err := s.VerifyReturnForBorrower(book.ID, user.ID, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, data.CopyReturned, loan.Copy.State)
	assert.Equal(t, staff.ID, loan.Copy.VerifiedBy)

	stored, err := repo.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Physical.AvailableCopies)
}

func TestReturnBook_Digital(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	book := seedDigitalBook(t, repo)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")

	loan, err := s.BorrowBook(book.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Digital.AccessLink, loan.Entry.AccessLink)

	// Digital returns are self-service and immediate.
	loan, err = s.ReturnBook(book.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, data.CopyReturned, loan.Copy.State)
	assert.Empty(t, loan.Entry.AccessLink)
	assert.Zero(t, loan.Copy.VerifiedBy)

	// The access can be taken out again afterwards.
	_, err = s.BorrowBook(book.ID, user.ID)
	require.NoError(t, err)
}

func TestRenewBook(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	digital := seedDigitalBook(t, repo)
	physical := seedPhysicalBook(t, repo, 1)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")

	loan, err := s.BorrowBook(digital.ID, user.ID)
	require.NoError(t, err)
	originalDue := loan.Copy.DueDate

	loan, err = s.RenewBook(digital.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, loan.Copy.DueDate.After(originalDue))
	require.Len(t, loan.Copy.Renewals, 1)
	assert.Equal(t, loan.Copy.Renewals, loan.Entry.Renewals)

	_, err = s.BorrowBook(physical.ID, user.ID)
	require.NoError(t, err)
	_, err = s.RenewBook(physical.ID, user.ID)
	assert.ErrorIs(t, err, ErrRenewNotSupported)

	_, err = s.RenewBook(digital.ID, seedUser(t, repo, "Bob", "bob@example.com").ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestGetCirculationStats(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	physical := seedPhysicalBook(t, repo, 2)
	digital := seedDigitalBook(t, repo)
	alice := seedUser(t, repo, "Alice", "alice@example.com")
	bob := seedUser(t, repo, "Bob", "bob@example.com")

	_, err := s.BorrowBook(physical.ID, alice.ID)
	require.NoError(t, err)
	_, err = s.BorrowBook(digital.ID, alice.ID)
	require.NoError(t, err)
	_, err = s.BorrowBook(physical.ID, bob.ID)
	require.NoError(t, err)
	_, err = s.ReturnBook(physical.ID, bob.ID)
	require.NoError(t, err)

	stats, err := s.GetCirculationStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalBorrowed)
	assert.Equal(t, 0, stats.TotalReturned)
	assert.Equal(t, 1, stats.PendingReturns)
	assert.Equal(t, 1, stats.ActiveDigitalAccess)
}

func TestListUserBorrows(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo)
	physical := seedPhysicalBook(t, repo, 2)
	digital := seedDigitalBook(t, repo)
	user := seedUser(t, repo, "Ada Lovelace", "ada@example.com")

	_, err := s.BorrowBook(physical.ID, user.ID)
	require.NoError(t, err)
	_, err = s.BorrowBook(digital.ID, user.ID)
	require.NoError(t, err)

	filters := data.Filters{Page: 1, PageSize: 20, Sort: "-borrow_date", SortSafeList: []string{"-borrow_date"}}
	entries, metadata, err := s.ListUserBorrows(user.ID, filters)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, metadata.TotalRecords)
}

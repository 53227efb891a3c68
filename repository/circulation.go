package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/osezele/athenaeum/data"
)

type circulation interface {
	GetLoan(copyID uuid.UUID) (*data.Loan, error)
	GetOpenLoanForUser(bookID, userID int64) (*data.Loan, error)
	CreateLoan(loan *data.Loan, mode data.FulfillmentMode) error
	UpdateLoan(loan *data.Loan, stockDelta int) error
	GetAllPendingReturns() ([]*data.PendingReturn, error)
	GetAllLoansForUser(userID int64, filters data.Filters) ([]*data.BorrowLedgerEntry, data.Metadata, error)
	GetCirculationStats() (*data.CirculationStats, error)
}

const copyColumns = `id, book_id, borrower_id, borrower_name, issue_date, due_date, state, return_requested_at, return_date, return_verified_at, verified_by, renewals, version`

const ledgerColumns = `id, user_id, book_id, book_title, mode, access_link, borrow_date, due_date, state, return_requested_at, return_date, return_verified_at, renewals, version`

func marshalRenewals(renewals []data.Renewal) (interface{}, error) {
	if len(renewals) == 0 {
		return nil, nil
	}
	return json.Marshal(renewals)
}

func unmarshalRenewals(raw []byte) ([]data.Renewal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var renewals []data.Renewal
	err := json.Unmarshal(raw, &renewals)
	return renewals, err
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIssuedCopy(row rowScanner) (*data.IssuedCopy, error) {
	var copy data.IssuedCopy
	var requestedAt, returnDate, verifiedAt sql.NullTime
	var verifiedBy sql.NullInt64
	var renewals []byte
	err := row.Scan(
		&copy.ID,
		&copy.BookID,
		&copy.BorrowerID,
		&copy.BorrowerName,
		&copy.IssueDate,
		&copy.DueDate,
		&copy.State,
		&requestedAt,
		&returnDate,
		&verifiedAt,
		&verifiedBy,
		&renewals,
		&copy.Version,
	)
	if err != nil {
		return nil, err
	}
	copy.ReturnRequestedAt = nullableTime(requestedAt)
	copy.ReturnDate = nullableTime(returnDate)
	copy.ReturnVerifiedAt = nullableTime(verifiedAt)
	copy.VerifiedBy = verifiedBy.Int64
	copy.Renewals, err = unmarshalRenewals(renewals)
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func scanLedgerEntry(row rowScanner) (*data.BorrowLedgerEntry, error) {
	var entry data.BorrowLedgerEntry
	var accessLink sql.NullString
	var requestedAt, returnDate, verifiedAt sql.NullTime
	var renewals []byte
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.BookID,
		&entry.BookTitle,
		&entry.Mode,
		&accessLink,
		&entry.BorrowDate,
		&entry.DueDate,
		&entry.State,
		&requestedAt,
		&returnDate,
		&verifiedAt,
		&renewals,
		&entry.Version,
	)
	if err != nil {
		return nil, err
	}
	entry.AccessLink = accessLink.String
	entry.ReturnRequestedAt = nullableTime(requestedAt)
	entry.ReturnDate = nullableTime(returnDate)
	entry.ReturnVerifiedAt = nullableTime(verifiedAt)
	entry.Renewals, err = unmarshalRenewals(renewals)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) getIssuedCopiesForBook(ctx context.Context, bookID int64) ([]data.IssuedCopy, error) {
	query := `
		SELECT ` + copyColumns + `
		FROM issued_copies
		WHERE book_id = $1
		ORDER BY issue_date ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	copies := []data.IssuedCopy{}
	for rows.Next() {
		copy, err := scanIssuedCopy(rows)
		if err != nil {
			return nil, err
		}
		copies = append(copies, *copy)
	}
	return copies, rows.Err()
}

// GetLoan retrieves an issued copy and its paired ledger entry by the shared
// copy ID.
func (r *repository) GetLoan(copyID uuid.UUID) (*data.Loan, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	copyQuery := `
		SELECT ` + copyColumns + `
		FROM issued_copies
		WHERE id = $1`
	copy, err := scanIssuedCopy(r.db.QueryRowContext(ctx, copyQuery, copyID))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	entryQuery := `
		SELECT ` + ledgerColumns + `
		FROM borrow_ledger
		WHERE id = $1`
	entry, err := scanLedgerEntry(r.db.QueryRowContext(ctx, entryQuery, copyID))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &data.Loan{Copy: copy, Entry: entry}, nil
}

// GetOpenLoanForUser retrieves the loan a user currently holds on a book,
// i.e. the one issued copy for the (book, user) pair not yet returned.
func (r *repository) GetOpenLoanForUser(bookID, userID int64) (*data.Loan, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	query := `
		SELECT ` + copyColumns + `
		FROM issued_copies
		WHERE book_id = $1 AND borrower_id = $2 AND state <> 'returned'
		ORDER BY issue_date DESC
		LIMIT 1`
	copy, err := scanIssuedCopy(r.db.QueryRowContext(ctx, query, bookID, userID))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	entryQuery := `
		SELECT ` + ledgerColumns + `
		FROM borrow_ledger
		WHERE id = $1`
	entry, err := scanLedgerEntry(r.db.QueryRowContext(ctx, entryQuery, copy.ID))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &data.Loan{Copy: copy, Entry: entry}, nil
}

// CreateLoan persists a new loan pair. The stock decrement for physical
// books and both inserts commit in one transaction: the conditional UPDATE
// guards the last-copy race (two concurrent borrows cannot both pass), and a
// failure on either insert rolls the decrement back, so the book list and
// the user ledger can never disagree about an open loan. A second open loan
// for the same book and borrower trips the partial unique index and is
// reported as ErrDuplicateRecord.
func (r *repository) CreateLoan(loan *data.Loan, mode data.FulfillmentMode) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if mode == data.ModePhysical {
		stockQuery := `
			UPDATE books
			SET available_copies = available_copies - 1, version = version + 1
			WHERE id = $1 AND available_copies > 0`
		result, err := tx.ExecContext(ctx, stockQuery, loan.Copy.BookID)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return ErrNoCopiesAvailable
		}
	}
	renewals, err := marshalRenewals(loan.Copy.Renewals)
	if err != nil {
		return err
	}
	copyQuery := `
		INSERT INTO issued_copies (id, book_id, borrower_id, borrower_name, issue_date, due_date, state, renewals)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING version`
	copyArgs := []interface{}{
		loan.Copy.ID,
		loan.Copy.BookID,
		loan.Copy.BorrowerID,
		loan.Copy.BorrowerName,
		loan.Copy.IssueDate,
		loan.Copy.DueDate,
		loan.Copy.State,
		renewals,
	}
	err = tx.QueryRowContext(ctx, copyQuery, copyArgs...).Scan(&loan.Copy.Version)
	if err != nil {
		switch {
		case err.Error() == `pq: duplicate key value violates unique constraint "issued_copies_open_loan_idx"`:
			return ErrDuplicateRecord
		default:
			return err
		}
	}
	entryQuery := `
		INSERT INTO borrow_ledger (id, user_id, book_id, book_title, mode, access_link, borrow_date, due_date, state, renewals)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING version`
	entryArgs := []interface{}{
		loan.Entry.ID,
		loan.Entry.UserID,
		loan.Entry.BookID,
		loan.Entry.BookTitle,
		loan.Entry.Mode,
		nullString(loan.Entry.AccessLink),
		loan.Entry.BorrowDate,
		loan.Entry.DueDate,
		loan.Entry.State,
		renewals,
	}
	err = tx.QueryRowContext(ctx, entryQuery, entryArgs...).Scan(&loan.Entry.Version)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateLoan persists a loan transition: both sides of the pair and any stock
// adjustment commit in one transaction. A positive stockDelta returns copies
// to the pool, clamped so available never exceeds total. Version checks on
// both rows turn a concurrent transition into an edit conflict instead of a
// lost update.
func (r *repository) UpdateLoan(loan *data.Loan, stockDelta int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	renewals, err := marshalRenewals(loan.Copy.Renewals)
	if err != nil {
		return err
	}
	var verifiedBy sql.NullInt64
	if loan.Copy.VerifiedBy != 0 {
		verifiedBy = sql.NullInt64{Int64: loan.Copy.VerifiedBy, Valid: true}
	}
	copyQuery := `
		UPDATE issued_copies
		SET due_date = $1, state = $2, return_requested_at = $3, return_date = $4, return_verified_at = $5, verified_by = $6, renewals = $7, version = version + 1
		WHERE id = $8 AND version = $9
		RETURNING version`
	copyArgs := []interface{}{
		loan.Copy.DueDate,
		loan.Copy.State,
		loan.Copy.ReturnRequestedAt,
		loan.Copy.ReturnDate,
		loan.Copy.ReturnVerifiedAt,
		verifiedBy,
		renewals,
		loan.Copy.ID,
		loan.Copy.Version,
	}
	err = tx.QueryRowContext(ctx, copyQuery, copyArgs...).Scan(&loan.Copy.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		default:
			return err
		}
	}
	entryQuery := `
		UPDATE borrow_ledger
		SET due_date = $1, state = $2, access_link = $3, return_requested_at = $4, return_date = $5, return_verified_at = $6, renewals = $7, version = version + 1
		WHERE id = $8 AND version = $9
		RETURNING version`
	entryArgs := []interface{}{
		loan.Entry.DueDate,
		loan.Entry.State,
		nullString(loan.Entry.AccessLink),
		loan.Entry.ReturnRequestedAt,
		loan.Entry.ReturnDate,
		loan.Entry.ReturnVerifiedAt,
		renewals,
		loan.Entry.ID,
		loan.Entry.Version,
	}
	err = tx.QueryRowContext(ctx, entryQuery, entryArgs...).Scan(&loan.Entry.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		default:
			return err
		}
	}
	if stockDelta > 0 {
		stockQuery := `
			UPDATE books
			SET available_copies = LEAST(total_copies, available_copies + $1), version = version + 1
			WHERE id = $2 AND mode = 'physical'`
		_, err = tx.ExecContext(ctx, stockQuery, stockDelta, loan.Copy.BookID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetAllPendingReturns retrieves the staff verification queue: every issued
// copy awaiting physical confirmation, joined with its book and borrower.
func (r *repository) GetAllPendingReturns() ([]*data.PendingReturn, error) {
	query := `
		SELECT c.id, c.book_id, b.title, b.location, c.borrower_id, c.borrower_name, u.email, c.issue_date, c.due_date, c.return_requested_at
		FROM issued_copies c
		INNER JOIN books b ON b.id = c.book_id
		INNER JOIN users u ON u.id = c.borrower_id
		WHERE c.state = 'pending_return'
		ORDER BY c.return_requested_at ASC`
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pending := []*data.PendingReturn{}
	for rows.Next() {
		var p data.PendingReturn
		err := rows.Scan(
			&p.CopyID,
			&p.BookID,
			&p.BookTitle,
			&p.Location,
			&p.BorrowerID,
			&p.BorrowerName,
			&p.BorrowerEmail,
			&p.IssueDate,
			&p.DueDate,
			&p.ReturnRequestedAt,
		)
		if err != nil {
			return nil, err
		}
		pending = append(pending, &p)
	}
	return pending, rows.Err()
}

// GetAllLoansForUser retrieves a user's borrow ledger, newest first.
func (r *repository) GetAllLoansForUser(userID int64, filters data.Filters) ([]*data.BorrowLedgerEntry, data.Metadata, error) {
	query := fmt.Sprintf(`
		SELECT count(*) OVER(), `+ledgerColumns+`
		FROM borrow_ledger
		WHERE user_id = $1
		ORDER BY %s %s, id ASC
		LIMIT $2 OFFSET $3`,
		filters.SortColumn(), filters.SortDirection(),
	)
	args := []interface{}{userID, filters.Limit(), filters.Offset()}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	defer rows.Close()
	totalRecords := 0
	entries := []*data.BorrowLedgerEntry{}
	for rows.Next() {
		var entry data.BorrowLedgerEntry
		var accessLink sql.NullString
		var requestedAt, returnDate, verifiedAt sql.NullTime
		var renewals []byte
		err := rows.Scan(
			&totalRecords,
			&entry.ID,
			&entry.UserID,
			&entry.BookID,
			&entry.BookTitle,
			&entry.Mode,
			&accessLink,
			&entry.BorrowDate,
			&entry.DueDate,
			&entry.State,
			&requestedAt,
			&returnDate,
			&verifiedAt,
			&renewals,
			&entry.Version,
		)
		if err != nil {
			return nil, data.Metadata{}, err
		}
		entry.AccessLink = accessLink.String
		entry.ReturnRequestedAt = nullableTime(requestedAt)
		entry.ReturnDate = nullableTime(returnDate)
		entry.ReturnVerifiedAt = nullableTime(verifiedAt)
		entry.Renewals, err = unmarshalRenewals(renewals)
		if err != nil {
			return nil, data.Metadata{}, err
		}
		entries = append(entries, &entry)
	}
	if err = rows.Err(); err != nil {
		return nil, data.Metadata{}, err
	}
	metadata := data.CalculateMetadata(totalRecords, filters.Page, filters.PageSize)
	return entries, metadata, nil
}

// GetCirculationStats aggregates the circulation log across all books.
func (r *repository) GetCirculationStats() (*data.CirculationStats, error) {
	query := `
		SELECT
			count(*) FILTER (WHERE c.state <> 'returned'),
			count(*) FILTER (WHERE c.state = 'returned'),
			count(*) FILTER (WHERE c.state <> 'returned' AND c.due_date < now()),
			count(*) FILTER (WHERE c.state = 'pending_return'),
			count(*) FILTER (WHERE c.state = 'active' AND b.mode = 'digital')
		FROM issued_copies c
		INNER JOIN books b ON b.id = c.book_id`
	var stats data.CirculationStats
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalBorrowed,
		&stats.TotalReturned,
		&stats.Overdue,
		&stats.PendingReturns,
		&stats.ActiveDigitalAccess,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

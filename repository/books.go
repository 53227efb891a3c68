package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/osezele/athenaeum/data"
)

type books interface {
	CreateBook(book *data.Book) error
	GetBook(ID int64) (*data.Book, error)
	GetAllBooks(search, genre, location, mode string, filters data.Filters) ([]*data.Book, data.Metadata, error)
	UpdateBook(book *data.Book) error
	DeleteBook(bookID int64) error
}

// bookColumns is the scan order shared by every book query.
const bookColumns = `id, created_at, title, author, genre, publication_year, isbn, description, cover_path, location, mode, total_copies, available_copies, access_link, renewal_period_days, version`

// bookRow flattens the mode-specific payloads into the nullable columns the
// books table stores them in.
type bookRow struct {
	isbn              sql.NullString
	totalCopies       sql.NullInt64
	availableCopies   sql.NullInt64
	accessLink        sql.NullString
	renewalPeriodDays sql.NullInt64
}

// assemble rebuilds the tagged-union payloads from the nullable columns.
func (row *bookRow) assemble(book *data.Book) {
	book.Isbn = row.isbn.String
	switch book.Mode {
	case data.ModePhysical:
		book.Physical = &data.PhysicalDetails{
			TotalCopies:     int(row.totalCopies.Int64),
			AvailableCopies: int(row.availableCopies.Int64),
		}
	case data.ModeDigital:
		book.Digital = &data.DigitalDetails{
			AccessLink:        row.accessLink.String,
			RenewalPeriodDays: int(row.renewalPeriodDays.Int64),
		}
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateBook creates a new book record.
func (r *repository) CreateBook(book *data.Book) error {
	query := `
		INSERT INTO books (title, author, genre, publication_year, isbn, description, cover_path, location, mode, total_copies, available_copies, access_link, renewal_period_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, version`
	var totalCopies, availableCopies, renewalPeriodDays sql.NullInt64
	var accessLink sql.NullString
	if book.Physical != nil {
		totalCopies = sql.NullInt64{Int64: int64(book.Physical.TotalCopies), Valid: true}
		availableCopies = sql.NullInt64{Int64: int64(book.Physical.AvailableCopies), Valid: true}
	}
	if book.Digital != nil {
		accessLink = nullString(book.Digital.AccessLink)
		renewalPeriodDays = sql.NullInt64{Int64: int64(book.Digital.RenewalPeriodDays), Valid: true}
	}
	args := []interface{}{
		book.Title,
		book.Author,
		book.Genre,
		book.PublicationYear,
		nullString(book.Isbn),
		book.Description,
		book.CoverPath,
		book.Location,
		book.Mode,
		totalCopies,
		availableCopies,
		accessLink,
		renewalPeriodDays,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&book.ID, &book.CreatedAt, &book.Version)
	if err != nil {
		switch {
		case err.Error() == `pq: duplicate key value violates unique constraint "books_isbn_key"`:
			return ErrDuplicateRecord
		default:
			return err
		}
	}
	return nil
}

// GetBook retrieves a book record by its ID, including its issued copies.
func (r *repository) GetBook(ID int64) (*data.Book, error) {
	if ID < 1 {
		return nil, ErrRecordNotFound
	}
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE id = $1`
	var book data.Book
	var row bookRow
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, ID).Scan(
		&book.ID,
		&book.CreatedAt,
		&book.Title,
		&book.Author,
		&book.Genre,
		&book.PublicationYear,
		&row.isbn,
		&book.Description,
		&book.CoverPath,
		&book.Location,
		&book.Mode,
		&row.totalCopies,
		&row.availableCopies,
		&row.accessLink,
		&row.renewalPeriodDays,
		&book.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	row.assemble(&book)
	copies, err := r.getIssuedCopiesForBook(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	book.IssuedCopies = copies
	return &book, nil
}

// GetAllBooks retrieves a paginated list of book records filtered by a title
// or author substring and exact genre, location and mode matches.
func (r *repository) GetAllBooks(search, genre, location, mode string, filters data.Filters) ([]*data.Book, data.Metadata, error) {
	query := fmt.Sprintf(`
		SELECT count(*) OVER(), `+bookColumns+`
		FROM books
		WHERE (title ILIKE '%%' || $1 || '%%' OR author ILIKE '%%' || $1 || '%%' OR $1 = '')
		AND (genre = $2 OR $2 = '')
		AND (location = $3 OR $3 = '')
		AND (mode = $4 OR $4 = '')
		ORDER BY %s %s, id ASC
		LIMIT $5 OFFSET $6`,
		filters.SortColumn(), filters.SortDirection(),
	)
	args := []interface{}{search, genre, location, mode, filters.Limit(), filters.Offset()}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	defer rows.Close()
	totalRecords := 0
	books := []*data.Book{}
	for rows.Next() {
		var book data.Book
		var row bookRow
		err := rows.Scan(
			&totalRecords,
			&book.ID,
			&book.CreatedAt,
			&book.Title,
			&book.Author,
			&book.Genre,
			&book.PublicationYear,
			&row.isbn,
			&book.Description,
			&book.CoverPath,
			&book.Location,
			&book.Mode,
			&row.totalCopies,
			&row.availableCopies,
			&row.accessLink,
			&row.renewalPeriodDays,
			&book.Version,
		)
		if err != nil {
			return nil, data.Metadata{}, err
		}
		row.assemble(&book)
		books = append(books, &book)
	}
	if err = rows.Err(); err != nil {
		return nil, data.Metadata{}, err
	}
	metadata := data.CalculateMetadata(totalRecords, filters.Page, filters.PageSize)
	return books, metadata, nil
}

// UpdateBook updates a book record using optimistic locking on the version
// column. The fulfillment mode itself is never updated.
func (r *repository) UpdateBook(book *data.Book) error {
	query := `
		UPDATE books
		SET title = $1, author = $2, genre = $3, publication_year = $4, isbn = $5, description = $6, cover_path = $7,
		location = $8, total_copies = $9, available_copies = $10, access_link = $11, renewal_period_days = $12, version = version + 1
		WHERE id = $13 AND version = $14
		RETURNING version`
	var totalCopies, availableCopies, renewalPeriodDays sql.NullInt64
	var accessLink sql.NullString
	if book.Physical != nil {
		totalCopies = sql.NullInt64{Int64: int64(book.Physical.TotalCopies), Valid: true}
		availableCopies = sql.NullInt64{Int64: int64(book.Physical.AvailableCopies), Valid: true}
	}
	if book.Digital != nil {
		accessLink = nullString(book.Digital.AccessLink)
		renewalPeriodDays = sql.NullInt64{Int64: int64(book.Digital.RenewalPeriodDays), Valid: true}
	}
	args := []interface{}{
		book.Title,
		book.Author,
		book.Genre,
		book.PublicationYear,
		nullString(book.Isbn),
		book.Description,
		book.CoverPath,
		book.Location,
		totalCopies,
		availableCopies,
		accessLink,
		renewalPeriodDays,
		book.ID,
		book.Version,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&book.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		case err.Error() == `pq: duplicate key value violates unique constraint "books_isbn_key"`:
			return ErrDuplicateRecord
		default:
			return err
		}
	}
	return nil
}

// DeleteBook deletes a book record. Issued copies are removed with it; the
// service layer refuses the delete while any copy is still out.
func (r *repository) DeleteBook(bookID int64) error {
	if bookID < 1 {
		return ErrRecordNotFound
	}
	query := `
		DELETE FROM books
		WHERE id = $1`
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	result, err := r.db.ExecContext(ctx, query, bookID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

package service

import (
	"errors"
	"net/http"

	"github.com/osezele/athenaeum/clients"
	"github.com/osezele/athenaeum/data"
	"github.com/osezele/athenaeum/data/dto"
	"github.com/osezele/athenaeum/internal/validator"
	"github.com/osezele/athenaeum/repository"
)

type books interface {
	CreateBook(requestBody dto.CreateBookRequestBody) (*data.Book, error)
	GetBook(bookID int64) (*data.Book, error)
	ListBooks(qs dto.QsListBooks) ([]*data.Book, data.Metadata, error)
	UpdateBook(bookID int64, requestBody dto.UpdateBookRequestBody) (*data.Book, error)
	UpdateBookCover(bookID int64, r *http.Request) (*data.Book, error)
	DeleteBook(bookID int64) error
	GetAvailability(bookID int64) (*data.Availability, error)
}

// CreateBook service adds a new book to the catalog. The fulfillment mode is
// fixed here for the life of the record.
func (s *service) CreateBook(requestBody dto.CreateBookRequestBody) (*data.Book, error) {
	book := &data.Book{
		Title:           requestBody.Title,
		Author:          requestBody.Author,
		Genre:           requestBody.Genre,
		PublicationYear: requestBody.PublicationYear,
		Isbn:            requestBody.Isbn,
		Description:     requestBody.Description,
		Location:        requestBody.Location,
		Mode:            data.FulfillmentMode(requestBody.FulfillmentMode),
	}
	if book.Mode == "" {
		book.Mode = data.ModePhysical
	}
	switch book.Mode {
	case data.ModePhysical:
		totalCopies := 1
		if requestBody.TotalCopies != nil {
			totalCopies = *requestBody.TotalCopies
		}
		book.Physical = &data.PhysicalDetails{
			TotalCopies:     totalCopies,
			AvailableCopies: totalCopies,
		}
		if book.Location == "" {
			book.Location = data.DefaultLocation
		}
	case data.ModeDigital:
		digital := &data.DigitalDetails{RenewalPeriodDays: data.DefaultRenewalPeriodDays}
		if requestBody.AccessLink != nil {
			digital.AccessLink = *requestBody.AccessLink
		}
		if requestBody.RenewalPeriodDays != nil {
			digital.RenewalPeriodDays = *requestBody.RenewalPeriodDays
		}
		book.Digital = digital
		book.Location = data.DigitalLocation
	}
	v := validator.New()
	if data.ValidateBook(v, book); !v.Valid() {
		ErrFailedValidation = s.failedValidation(v.Errors)
		return nil, ErrFailedValidation
	}
	err := s.repo.CreateBook(book)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateRecord):
			return nil, ErrDuplicateRecord
		default:
			return nil, err
		}
	}
	return book, nil
}

// GetBook service retrieves the details of a book, including its issued
// copies.
func (s *service) GetBook(bookID int64) (*data.Book, error) {
	book, err := s.repo.GetBook(bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return book, nil
}

// ListBooks service retrieves a list of paginated books. The list can be
// filtered by genre, location and fulfillment mode, and searched by title or
// author.
func (s *service) ListBooks(qs dto.QsListBooks) ([]*data.Book, data.Metadata, error) {
	v := validator.New()
	v.Check(validator.In(qs.Mode, "", string(data.ModePhysical), string(data.ModeDigital)), "fulfillment_mode", "must be either physical or digital")
	if data.ValidateFilters(v, qs.Filters); !v.Valid() {
		ErrFailedValidation = s.failedValidation(v.Errors)
		return nil, data.Metadata{}, ErrFailedValidation
	}
	books, metadata, err := s.repo.GetAllBooks(qs.Search, qs.Genre, qs.Location, qs.Mode, qs.Filters)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	return books, metadata, nil
}

// UpdateBook service updates the details of a specific book. The fulfillment
// mode cannot change, and copy counters only move in ways that keep the
// already-issued copies accounted for.
func (s *service) UpdateBook(bookID int64, requestBody dto.UpdateBookRequestBody) (*data.Book, error) {
	book, err := s.repo.GetBook(bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	if requestBody.FulfillmentMode != nil && data.FulfillmentMode(*requestBody.FulfillmentMode) != book.Mode {
		v := validator.New()
		v.AddError("fulfillment_mode", "cannot be changed after creation")
		ErrFailedValidation = s.failedValidation(v.Errors)
		return nil, ErrFailedValidation
	}
	if requestBody.Title != nil {
		book.Title = *requestBody.Title
	}
	if requestBody.Author != nil {
		book.Author = *requestBody.Author
	}
	if requestBody.Genre != nil {
		book.Genre = *requestBody.Genre
	}
	if requestBody.PublicationYear != nil {
		book.PublicationYear = *requestBody.PublicationYear
	}
	if requestBody.Isbn != nil {
		book.Isbn = *requestBody.Isbn
	}
	if requestBody.Description != nil {
		book.Description = *requestBody.Description
	}
	if requestBody.Location != nil && book.IsPhysical() {
		book.Location = *requestBody.Location
	}
	v := validator.New()
	switch book.Mode {
	case data.ModePhysical:
		v.Check(requestBody.AccessLink == nil, "access_link", "must not be set for physical books")
		v.Check(requestBody.RenewalPeriodDays == nil, "renewal_period_days", "must not be set for physical books")
		if requestBody.TotalCopies != nil {
			// Growing the stock frees the new copies; shrinking it can never
			// cut below the number of copies currently out.
			openCount := book.OpenIssuedCount()
			newTotal := *requestBody.TotalCopies
			if newTotal < openCount {
				v.AddError("total_copies", "must not be less than the number of copies currently issued")
			} else {
				book.Physical.TotalCopies = newTotal
				book.Physical.AvailableCopies = newTotal - openCount
			}
		}
	case data.ModeDigital:
		v.Check(requestBody.TotalCopies == nil, "total_copies", "must not be set for digital books")
		if requestBody.AccessLink != nil {
			book.Digital.AccessLink = *requestBody.AccessLink
		}
		if requestBody.RenewalPeriodDays != nil {
			book.Digital.RenewalPeriodDays = *requestBody.RenewalPeriodDays
		}
	}
	if data.ValidateBook(v, book); !v.Valid() {
		ErrFailedValidation = s.failedValidation(v.Errors)
		return nil, ErrFailedValidation
	}
	err = s.repo.UpdateBook(book)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			return nil, ErrEditConflict
		case errors.Is(err, repository.ErrDuplicateRecord):
			return nil, ErrDuplicateRecord
		default:
			return nil, err
		}
	}
	return book, nil
}

// UpdateBookCover service uploads a cover image for a book.
func (s *service) UpdateBookCover(bookID int64, r *http.Request) (*data.Book, error) {
	book, err := s.repo.GetBook(bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	err = r.ParseMultipartForm(5000)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesError):
			return nil, ErrContentTooLarge
		default:
			return nil, ErrBadRequest
		}
	}
	file, fileHeader, err := r.FormFile("cover")
	if err != nil {
		return nil, ErrBadRequest
	}
	defer file.Close()
	buffer, mtype, err := s.detectMimeType(file, fileHeader)
	if err != nil {
		return nil, err
	}
	supportedMediaType := []string{
		"image/jpeg",
		"image/png",
	}
	if validMime := validator.Mime(mtype, supportedMediaType...); !validMime {
		return nil, ErrUnsupportedMediaType
	}
	s3Client, err := clients.NewS3Client(s.config)
	if err != nil {
		return nil, err
	}
	coverPath, err := s.uploadFileToS3(s3Client, buffer, mtype, fileHeader)
	if err != nil {
		return nil, err
	}
	book.CoverPath = coverPath
	err = s.repo.UpdateBook(book)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			return nil, ErrEditConflict
		default:
			return nil, err
		}
	}
	return book, nil
}

// DeleteBook service deletes a book. Deletion is refused while any copy is
// still out, including copies awaiting return verification.
func (s *service) DeleteBook(bookID int64) error {
	book, err := s.repo.GetBook(bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return ErrRecordNotFound
		default:
			return err
		}
	}
	if book.OpenIssuedCount() > 0 {
		return ErrBookCheckedOut
	}
	err = s.repo.DeleteBook(bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return ErrRecordNotFound
		default:
			return err
		}
	}
	return nil
}

// GetAvailability service builds the availability read model for a book.
func (s *service) GetAvailability(bookID int64) (*data.Availability, error) {
	book, err := s.repo.GetBook(bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	availability := &data.Availability{
		BookID:       book.ID,
		Title:        book.Title,
		Mode:         book.Mode,
		Status:       book.Status(),
		IssuedCopies: book.OpenIssuedCopies(),
	}
	if book.IsPhysical() {
		total := book.Physical.TotalCopies
		available := book.Physical.AvailableCopies
		availability.TotalCopies = &total
		availability.AvailableCopies = &available
	}
	return availability, nil
}

package service

import (
	"errors"
	"fmt"
)

var (
	ErrFailedValidation     = errors.New("failed validation")
	ErrRecordNotFound       = errors.New("record not found")
	ErrEditConflict         = errors.New("edit conflict")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrContentTooLarge      = errors.New("content too large")
	ErrBadRequest           = errors.New("bad request")
	ErrDuplicateRecord      = errors.New("duplicate record")
	ErrNotPermitted         = errors.New("not permitted")

	// Circulation conflicts. Each maps a state machine or stock violation to
	// a stable error the handler layer turns into a 409.
	ErrAlreadyBorrowed      = errors.New("user already has this book checked out")
	ErrDigitalAccessActive  = errors.New("digital access is already active, renew instead")
	ErrNoCopiesAvailable    = errors.New("no copies available")
	ErrRenewNotSupported    = errors.New("physical loans cannot be renewed")
	ErrReturnAlreadyPending = errors.New("return request already submitted")
	ErrCopyNotPending       = errors.New("copy has no pending return to verify")
	ErrBookCheckedOut       = errors.New("book has copies checked out")
)

// failedValidation loops through a validation error map and returns an error
// string with the key and value of the map.
func (s *service) failedValidation(errorMap map[string]string) error {
	var err error
	for k, v := range errorMap {
		err = fmt.Errorf("%q %s", k, v)
	}
	return err
}

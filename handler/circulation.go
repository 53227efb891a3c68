package handler

import (
	"errors"
	"net/http"

	"github.com/osezele/athenaeum/data"
	"github.com/osezele/athenaeum/internal/validator"
	"github.com/osezele/athenaeum/service"
)

func (h *Handler) borrowBookHandler(w http.ResponseWriter, r *http.Request) {
	bookID, err := h.readIDParam(r, "bookId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	user := h.contextGetUser(r)
	loan, err := h.service.BorrowBook(bookID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecordNotFound):
			h.notFoundResponse(w, r)
		case errors.Is(err, service.ErrAlreadyBorrowed),
			errors.Is(err, service.ErrDigitalAccessActive),
			errors.Is(err, service.ErrNoCopiesAvailable):
			h.conflictResponse(w, r, err)
		default:
			h.serverErrorResponse(w, r, err)
		}
		return
	}
	err = h.encodeJSON(w, http.StatusCreated, envelope{"borrow": loan.Entry}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) renewBookHandler(w http.ResponseWriter, r *http.Request) {
	bookID, err := h.readIDParam(r, "bookId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	user := h.contextGetUser(r)
	loan, err := h.service.RenewBook(bookID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecordNotFound):
			h.notFoundResponse(w, r)
		case errors.Is(err, service.ErrRenewNotSupported),
			errors.Is(err, service.ErrReturnAlreadyPending):
			h.conflictResponse(w, r, err)
		case errors.Is(err, service.ErrEditConflict):
			h.editConflictResponse(w, r)
		default:
			h.serverErrorResponse(w, r, err)
		}
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"borrow": loan.Entry}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) returnBookHandler(w http.ResponseWriter, r *http.Request) {
	bookID, err := h.readIDParam(r, "bookId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	user := h.contextGetUser(r)
	loan, err := h.service.ReturnBook(bookID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecordNotFound):
			h.notFoundResponse(w, r)
		case errors.Is(err, service.ErrReturnAlreadyPending):
			h.conflictResponse(w, r, err)
		case errors.Is(err, service.ErrEditConflict):
			h.editConflictResponse(w, r)
		default:
			h.serverErrorResponse(w, r, err)
		}
		return
	}
	message := "return request submitted, awaiting verification"
	if loan.Entry.State == data.CopyReturned {
		message = "book successfully returned"
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"message": message, "borrow": loan.Entry}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) listPendingReturnsHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.ListPendingReturns()
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"pending_returns": pending}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) verifyReturnHandler(w http.ResponseWriter, r *http.Request) {
	copyID, err := h.readUUIDParam(r, "copyId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	staff := h.contextGetUser(r)
	loan, err := h.service.VerifyReturn(copyID, staff.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecordNotFound):
			h.notFoundResponse(w, r)
		case errors.Is(err, service.ErrCopyNotPending):
			h.conflictResponse(w, r, err)
		case errors.Is(err, service.ErrEditConflict):
			h.editConflictResponse(w, r)
		default:
			h.serverErrorResponse(w, r, err)
		}
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"message": "return verified", "copy": loan.Copy}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) verifyBorrowerReturnHandler(w http.ResponseWriter, r *http.Request) {
	bookID, err := h.readIDParam(r, "bookId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	borrowerID, err := h.readIDParam(r, "userId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	staff := h.contextGetUser(r)
	loan, err := h.service.VerifyReturnForBorrower(bookID, borrowerID, staff.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecordNotFound):
			h.notFoundResponse(w, r)
		case errors.Is(err, service.ErrEditConflict):
			h.editConflictResponse(w, r)
		default:
			h.serverErrorResponse(w, r, err)
		}
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"message": "return verified", "copy": loan.Copy}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) listOwnBorrowsHandler(w http.ResponseWriter, r *http.Request) {
	user := h.contextGetUser(r)
	h.listBorrowsForUser(w, r, user.ID)
}

func (h *Handler) listUserBorrowsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := h.readIDParam(r, "userId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	h.listBorrowsForUser(w, r, userID)
}

func (h *Handler) listBorrowsForUser(w http.ResponseWriter, r *http.Request, userID int64) {
	var filters data.Filters
	v := validator.New()
	qs := r.URL.Query()
	filters.Page = h.readInt(qs, "page", 1, v)
	filters.PageSize = h.readInt(qs, "page_size", 10, v)
	filters.Sort = h.readString(qs, "sort", "-borrow_date")
	filters.SortSafeList = []string{"borrow_date", "due_date", "book_title", "-borrow_date", "-due_date", "-book_title"}
	entries, metadata, err := h.service.ListUserBorrows(userID, filters)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFailedValidation):
			h.failedValidationResponse(w, r, err)
		default:
			h.serverErrorResponse(w, r, err)
		}
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"borrows": entries, "metadata": metadata}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) circulationStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetCirculationStats()
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"stats": stats}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

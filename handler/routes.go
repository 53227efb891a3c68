package handler

import (
	"expvar"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (h *Handler) Routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(h.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(h.methodNotAllowed)

	// Catalog. Reads are open to any activated user, writes are staff only.
	router.HandlerFunc(http.MethodGet, "/v1/books", h.requireActivatedUser(h.listBooksHandler))
	router.HandlerFunc(http.MethodPost, "/v1/books", h.requireStaff(h.createBookHandler))
	router.HandlerFunc(http.MethodGet, "/v1/books/:bookId", h.requireActivatedUser(h.showBookHandler))
	router.HandlerFunc(http.MethodPatch, "/v1/books/:bookId", h.requireStaff(h.updateBookHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/books/:bookId", h.requireStaff(h.deleteBookHandler))
	router.HandlerFunc(http.MethodPatch, "/v1/books/:bookId/cover", h.requireStaff(h.updateBookCoverHandler))
	router.HandlerFunc(http.MethodGet, "/v1/books/:bookId/availability", h.requireActivatedUser(h.showBookAvailabilityHandler))

	// Circulation, borrower side.
	router.HandlerFunc(http.MethodPost, "/v1/books/:bookId/borrow", h.requireActivatedUser(h.borrowBookHandler))
	router.HandlerFunc(http.MethodPost, "/v1/books/:bookId/renew", h.requireActivatedUser(h.renewBookHandler))
	router.HandlerFunc(http.MethodPost, "/v1/books/:bookId/return", h.requireActivatedUser(h.returnBookHandler))

	// Circulation, staff side.
	router.HandlerFunc(http.MethodGet, "/v1/admin/returns", h.requireStaff(h.listPendingReturnsHandler))
	router.HandlerFunc(http.MethodPatch, "/v1/admin/returns/:copyId/verify", h.requireStaff(h.verifyReturnHandler))
	router.HandlerFunc(http.MethodPost, "/v1/admin/books/:bookId/borrowers/:userId/return", h.requireStaff(h.verifyBorrowerReturnHandler))
	router.HandlerFunc(http.MethodGet, "/v1/admin/users/:userId/borrows", h.requireStaff(h.listUserBorrowsHandler))
	router.HandlerFunc(http.MethodGet, "/v1/admin/circulation/stats", h.requireStaff(h.circulationStatsHandler))

	router.HandlerFunc(http.MethodPost, "/v1/users", h.registerUserHandler)
	router.HandlerFunc(http.MethodPut, "/v1/users/activated", h.activateUserHandler)
	router.HandlerFunc(http.MethodGet, "/v1/users/profile", h.requireActivatedUser(h.showUserHandler))
	router.HandlerFunc(http.MethodGet, "/v1/users/borrows", h.requireActivatedUser(h.listOwnBorrowsHandler))

	router.HandlerFunc(http.MethodPost, "/v1/tokens/activation", h.createActivationTokenHandler)
	router.HandlerFunc(http.MethodPost, "/v1/tokens/authentication", h.createAuthenticationTokenHandler)
	router.HandlerFunc(http.MethodDelete, "/v1/tokens/authentication", h.requireAuthenticatedUser(h.deleteAuthenticationTokenHandler))

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", h.healthcheckHandler)
	router.HandlerFunc(http.MethodGet, "/debug/vars", h.basicAuth(expvar.Handler().ServeHTTP))

	return h.metrics(h.recoverPanic(h.enableCORS(h.rateLimit(h.authenticate(router)))))
}

package handler

import (
	"context"
	"net/http"

	"github.com/osezele/athenaeum/data"
)

// contextKey is a custom key type for request context values, to prevent
// collisions with keys set by external packages.
type contextKey string

const userContextKey = contextKey("user")

// contextSetUser returns a new copy of the request with the provided User
// struct added to the context.
func (h *Handler) contextSetUser(r *http.Request, user *data.User) *http.Request {
	ctx := context.WithValue(r.Context(), userContextKey, user)
	return r.WithContext(ctx)
}

// contextGetUser retrieves the User struct from the request context. It is
// only called on requests that passed through the authenticate middleware, so
// a missing value is a programmer error.
func (h *Handler) contextGetUser(r *http.Request) *data.User {
	user, ok := r.Context().Value(userContextKey).(*data.User)
	if !ok {
		panic("missing user value in request context")
	}
	return user
}

package data

import (
	"time"

	"github.com/osezele/athenaeum/internal/validator"
)

// Token scopes.
const (
	ScopeActivation     = "activation"
	ScopeAuthentication = "authentication"
)

// Token holds a single-use token for a user. Only the SHA-256 hash is
// persisted; the plaintext exists just long enough to be sent to the user.
type Token struct {
	Plaintext string    `json:"token"`
	Hash      []byte    `json:"-"`
	UserID    int64     `json:"-"`
	Expiry    time.Time `json:"expiry"`
	Scope     string    `json:"-"`
}

func ValidateTokenPlaintext(v *validator.Validator, tokenPlaintext string) {
	v.Check(tokenPlaintext != "", "token", "must be provided")
	v.Check(len(tokenPlaintext) == 26, "token", "must be 26 bytes long")
}

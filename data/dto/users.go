package dto

// RegisterUserRequestBody defines the request body for RegisterUser service.
type RegisterUserRequestBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ActivateUserRequestBody defines the request body for ActivateUser service.
type ActivateUserRequestBody struct {
	Token string `json:"token"`
}

// CreateActivationTokenRequestBody defines the request body for
// CreateActivationToken service.
type CreateActivationTokenRequestBody struct {
	Email string `json:"email"`
}

// CreateAuthenticationTokenRequestBody defines the request body for
// CreateAuthenticationToken service.
type CreateAuthenticationTokenRequestBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

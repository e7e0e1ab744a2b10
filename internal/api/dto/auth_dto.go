package dto

import "time"

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Username string   `json:"username" validate:"required,max=64,printascii"`
	Password string   `json:"password" validate:"required,max=72"`
	Roles    []string `json:"roles" validate:"omitempty,max=8,dive,required,alphanum,max=32"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdentityResponse describes the caller as seen by the service-local validator.
type IdentityResponse struct {
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

// UserResponse is the administrative view of a credential record.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

package domain

import "time"

// IssuedToken is what the issuer hands back to a client.
type IssuedToken struct {
	Token     string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

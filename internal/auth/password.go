package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is bcrypt's input limit. It counts bytes, not characters.
const MaxPasswordBytes = 72

// ErrPasswordTooLong reports a password bcrypt cannot hash.
var ErrPasswordTooLong = errors.New("auth: password exceeds 72 bytes")

// dummyHash is compared against when a login names an unknown user so both
// failure paths spend the same bcrypt work.
var (
	dummyOnce sync.Once
	dummyHash []byte
)

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// BurnComparison performs a throwaway bcrypt comparison.
func BurnComparison(plain string, cost int) {
	dummyOnce.Do(func() {
		hashed, err := HashPassword("not-a-real-password", cost)
		if err == nil {
			dummyHash = []byte(hashed)
		}
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}

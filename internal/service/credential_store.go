package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/domain"
	"github.com/spec-kit/authgate/internal/repository"
)

// CredentialStore verifies credentials against the user repository.
type CredentialStore struct {
	users      repository.UserRepository
	bcryptCost int
}

// NewCredentialStore wraps users.
func NewCredentialStore(users repository.UserRepository, bcryptCost int) *CredentialStore {
	return &CredentialStore{users: users, bcryptCost: bcryptCost}
}

// Exists reports whether username is taken.
func (s *CredentialStore) Exists(ctx context.Context, username string) (bool, error) {
	return s.users.ExistsByUsername(ctx, username)
}

// Create hashes password and stores a new record. A concurrent duplicate is
// caught by the repository and reported as ErrUserAlreadyExists.
func (s *CredentialStore) Create(ctx context.Context, username, password string, roles []string) (*domain.User, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Roles:        domain.NormalizeRoles(roles),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}
	return user, nil
}

// Verify checks a username/password pair and returns the user's roles. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *CredentialStore) Verify(ctx context.Context, username, password string) ([]string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			auth.BurnComparison(password, s.bcryptCost)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return append([]string(nil), user.Roles...), nil
}

// RolesFor implements auth.RoleLookup.
func (s *CredentialStore) RolesFor(ctx context.Context, username string) ([]string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, auth.ErrUnknownSubject
		}
		return nil, err
	}
	return append([]string(nil), user.Roles...), nil
}

// Lookup returns the stored record for username.
func (s *CredentialStore) Lookup(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

var _ auth.RoleLookup = (*CredentialStore)(nil)

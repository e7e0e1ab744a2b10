package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrUnknownSubject means a verified token names a user the store no longer has.
var ErrUnknownSubject = errors.New("auth: subject not found")

// AuthorityResolver maps a verified token to the caller's authorities.
type AuthorityResolver interface {
	Resolve(ctx context.Context, v Verification) ([]string, error)
}

// StaticAuthorities grants the same fixed set to every verified subject.
type StaticAuthorities []string

// Resolve returns a copy of the static set.
func (s StaticAuthorities) Resolve(_ context.Context, _ Verification) ([]string, error) {
	return append([]string(nil), s...), nil
}

// ClaimAuthorities reads an embedded roles claim, deferring to Fallback when
// the token carries none.
type ClaimAuthorities struct {
	Claim    string
	Fallback AuthorityResolver
}

// Resolve implements AuthorityResolver.
func (r ClaimAuthorities) Resolve(ctx context.Context, v Verification) ([]string, error) {
	claim := r.Claim
	if claim == "" {
		claim = RolesClaim
	}
	if raw, ok := v.Claims[claim].([]any); ok && len(raw) > 0 {
		roles := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
		if len(roles) > 0 {
			return roles, nil
		}
	}
	if r.Fallback == nil {
		return nil, nil
	}
	return r.Fallback.Resolve(ctx, v)
}

// RoleLookup fetches the authoritative role set for a username.
type RoleLookup interface {
	RolesFor(ctx context.Context, username string) ([]string, error)
}

// RoleCache is a best-effort cache in front of a RoleLookup.
type RoleCache interface {
	Get(ctx context.Context, username string) ([]string, bool, error)
	Set(ctx context.Context, username string, roles []string) error
	Invalidate(ctx context.Context, username string) error
}

// StoreAuthorities re-derives roles from the credential store on each request.
type StoreAuthorities struct {
	lookup RoleLookup
	cache  RoleCache
	logger *zap.Logger
}

// NewStoreAuthorities builds a resolver; cache may be nil.
func NewStoreAuthorities(lookup RoleLookup, cache RoleCache, logger *zap.Logger) *StoreAuthorities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreAuthorities{lookup: lookup, cache: cache, logger: logger}
}

// Resolve implements AuthorityResolver. Cache failures degrade to a direct lookup.
func (s *StoreAuthorities) Resolve(ctx context.Context, v Verification) ([]string, error) {
	if s.cache != nil {
		roles, hit, err := s.cache.Get(ctx, v.Subject)
		if err != nil {
			s.logger.Warn("role cache read failed", zap.String("subject", v.Subject), zap.Error(err))
		} else if hit {
			return roles, nil
		}
	}

	roles, err := s.lookup.RolesFor(ctx, v.Subject)
	if err != nil {
		if errors.Is(err, ErrUnknownSubject) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve authorities: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, v.Subject, roles); err != nil {
			s.logger.Warn("role cache write failed", zap.String("subject", v.Subject), zap.Error(err))
		}
	}
	return roles, nil
}

var (
	_ AuthorityResolver = StaticAuthorities(nil)
	_ AuthorityResolver = ClaimAuthorities{}
	_ AuthorityResolver = (*StoreAuthorities)(nil)
)

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/domain"
	"github.com/spec-kit/authgate/internal/events"
)

var (
	ErrUserAlreadyExists  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrPasswordTooLong    = errors.New("password too long")
)

// IssuerOptions tunes token issuance.
type IssuerOptions struct {
	TokenTTL time.Duration

	// EmbedRoles copies the user's roles into the token's roles claim.
	EmbedRoles bool
}

// Issuer coordinates registration and login flows.
type Issuer struct {
	store      *CredentialStore
	codec      *auth.Codec
	opts       IssuerOptions
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewIssuer builds the service. dispatcher and logger may be nil.
func NewIssuer(store *CredentialStore, codec *auth.Codec, opts IssuerOptions, dispatcher events.Dispatcher, logger *zap.Logger) *Issuer {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{store: store, codec: codec, opts: opts, dispatcher: dispatcher, logger: logger}
}

// Register creates an account and returns a token for it. roles defaults to
// USER when empty.
func (s *Issuer) Register(ctx context.Context, username, password string, roles []string) (domain.IssuedToken, error) {
	exists, err := s.store.Exists(ctx, username)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	if exists {
		return domain.IssuedToken{}, ErrUserAlreadyExists
	}

	user, err := s.store.Create(ctx, username, password, roles)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	issued, err := s.issue(user.Username, user.Roles)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	s.publish(ctx, events.EventUserRegistered, user.Username, events.UserRegisteredPayload{Roles: user.Roles})
	return issued, nil
}

// Login verifies credentials and issues a fresh token. No session state is kept.
func (s *Issuer) Login(ctx context.Context, username, password string) (domain.IssuedToken, error) {
	roles, err := s.store.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.publish(ctx, events.EventLoginFailed, username, nil)
		}
		return domain.IssuedToken{}, err
	}

	issued, err := s.issue(username, roles)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	s.publish(ctx, events.EventUserLoggedIn, username, events.TokenIssuedPayload{ExpiresAt: issued.ExpiresAt})
	return issued, nil
}

// Lookup returns a stored user for administrative views.
func (s *Issuer) Lookup(ctx context.Context, username string) (*domain.User, error) {
	return s.store.Lookup(ctx, username)
}

func (s *Issuer) issue(subject string, roles []string) (domain.IssuedToken, error) {
	var claims map[string]any
	if s.opts.EmbedRoles {
		claims = map[string]any{auth.RolesClaim: roles}
	}

	token, exp, err := s.codec.Sign(subject, claims, s.opts.TokenTTL)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	return domain.IssuedToken{
		Token:     token,
		Subject:   subject,
		IssuedAt:  exp.Add(-s.opts.TokenTTL),
		ExpiresAt: exp,
	}, nil
}

func (s *Issuer) publish(ctx context.Context, eventType events.EventType, subject string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("type", string(eventType)), zap.Error(err))
	}
}

package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the smallest accepted HS256 secret, in bytes.
const MinKeyLength = 32

// Sentinel errors describing why a token was refused.
var (
	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrBadSignature   = errors.New("auth: token signature invalid")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrWeakKey        = fmt.Errorf("auth: signing key shorter than %d bytes", MinKeyLength)
)

// reserved claim names are owned by the codec and cannot be set by callers.
var reservedClaims = map[string]struct{}{
	"sub": {}, "iat": {}, "exp": {}, "nbf": {},
}

// SigningKey is the process-wide HMAC secret. It is built once at startup and
// never mutated afterwards.
type SigningKey struct {
	secret []byte
}

// NewSigningKey copies secret into an immutable key.
func NewSigningKey(secret string) (SigningKey, error) {
	if len(secret) < MinKeyLength {
		return SigningKey{}, ErrWeakKey
	}
	return SigningKey{secret: []byte(secret)}, nil
}

func (k SigningKey) bytes() []byte {
	return k.secret
}

// Outcome is the result class of a verification.
type Outcome int

const (
	OutcomeValid Outcome = iota
	OutcomeMalformed
	OutcomeBadSignature
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeBadSignature:
		return "bad_signature"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Verification is the explicit result of Codec.Verify. Only OutcomeValid
// carries a subject.
type Verification struct {
	Outcome   Outcome
	Subject   string
	Claims    map[string]any
	IssuedAt  time.Time
	ExpiresAt time.Time
	cause     error
}

// Valid reports whether the token was accepted.
func (v Verification) Valid() bool {
	return v.Outcome == OutcomeValid
}

// Err returns the sentinel matching the outcome, wrapping the parser cause.
func (v Verification) Err() error {
	var sentinel error
	switch v.Outcome {
	case OutcomeValid:
		return nil
	case OutcomeExpired:
		sentinel = ErrTokenExpired
	case OutcomeBadSignature:
		sentinel = ErrBadSignature
	default:
		sentinel = ErrTokenMalformed
	}
	if v.cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, v.cause)
}

// CodecOption customizes a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source used for issuing and checking expiry.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec signs and verifies HS256 identity tokens. It is safe for concurrent use.
type Codec struct {
	key SigningKey
	now func() time.Time
}

// NewCodec builds a codec bound to key.
func NewCodec(key SigningKey, opts ...CodecOption) *Codec {
	c := &Codec{key: key, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sign issues a token for subject valid for ttl.
func (c *Codec) Sign(subject string, claims map[string]any, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("auth: empty subject")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("auth: non-positive ttl %s", ttl)
	}

	issuedAt := jwt.NewNumericDate(c.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(ttl))

	payload := jwt.MapClaims{}
	for k, v := range claims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		payload[k] = v
	}
	payload["sub"] = subject
	payload["iat"] = issuedAt
	payload["exp"] = expiresAt

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(c.key.bytes())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt.Time, nil
}

// Verify checks signature and expiry. A token is expired when now >= exp; no
// leeway is granted.
func (c *Codec) Verify(tokenStr string) Verification {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return c.key.bytes(), nil
	})
	if err != nil {
		return Verification{Outcome: classify(err), cause: err}
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Verification{Outcome: OutcomeMalformed, cause: errors.New("missing subject")}
	}

	result := Verification{
		Outcome: OutcomeValid,
		Subject: subject,
		Claims:  make(map[string]any, len(claims)),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		result.IssuedAt = iat.Time
	}
	for k, v := range claims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		result.Claims[k] = v
	}
	return result
}

func classify(err error) Outcome {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return OutcomeMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return OutcomeBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return OutcomeExpired
	default:
		return OutcomeMalformed
	}
}

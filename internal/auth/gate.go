package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/authgate/pkg/util"
)

// RolesClaim is the claim name used when roles are embedded in tokens.
const RolesClaim = "roles"

// Gate decisions, recorded per tier.
const (
	DecisionPublic          = "public"
	DecisionMissingHeader   = "missing_header"
	DecisionMalformedHeader = "malformed_header"
	DecisionInvalidToken    = "invalid_token"
	DecisionValid           = "valid"
	DecisionAnonymous       = "anonymous"
	DecisionPassThrough     = "pass_through"
)

// DecisionRecorder counts gate outcomes.
type DecisionRecorder interface {
	RecordAuthDecision(tier, decision string)
}

// Policy parameterizes a Gate for one deployment tier.
type Policy struct {
	Tier Tier

	// PublicPaths are matched by prefix in order; the first hit bypasses the gate.
	PublicPaths []string

	// RequireCredentials rejects requests without a bearer credential. When
	// false such requests continue without a principal.
	RequireCredentials bool

	// IdentityHeader carries the verified subject to the next hop. Any
	// client-supplied value is replaced.
	IdentityHeader string

	// StripUntrustedIdentity removes an inbound IdentityHeader before anything
	// else runs, so only this gate can set it.
	StripUntrustedIdentity bool

	// Authorities resolves the principal's authorities; nil grants none.
	Authorities AuthorityResolver
}

// PerimeterPolicy is the gateway configuration: allow-listed paths pass,
// everything else needs a valid token. The identity header is dropped on
// every request, public ones included.
func PerimeterPolicy(publicPaths []string, identityHeader string) Policy {
	return Policy{
		Tier:                   TierPerimeter,
		PublicPaths:            append([]string(nil), publicPaths...),
		RequireCredentials:     true,
		IdentityHeader:         identityHeader,
		StripUntrustedIdentity: true,
	}
}

// ServicePolicy is the per-service configuration: tokens are re-verified,
// the inbound identity header is distrusted, and absent credentials are left
// to RequireAuthority. publicPaths skip token inspection entirely, so a stale
// token sent to login does not block it.
func ServicePolicy(identityHeader string, resolver AuthorityResolver, publicPaths ...string) Policy {
	return Policy{
		Tier:                   TierService,
		PublicPaths:            append([]string(nil), publicPaths...),
		IdentityHeader:         identityHeader,
		StripUntrustedIdentity: true,
		Authorities:            resolver,
	}
}

// Gate is the token-checking middleware shared by both tiers.
type Gate struct {
	codec   *Codec
	policy  Policy
	logger  *zap.Logger
	metrics DecisionRecorder
}

// NewGate constructs a gate. logger and metrics may be nil.
func NewGate(codec *Codec, policy Policy, logger *zap.Logger, metrics DecisionRecorder) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		codec:   codec,
		policy:  policy,
		logger:  logger.With(zap.String("tier", string(policy.Tier))),
		metrics: metrics,
	}
}

// IsPublic reports whether path is on the allow-list.
func (g *Gate) IsPublic(path string) bool {
	for _, prefix := range g.policy.PublicPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Handle runs the gate for one request.
func (g *Gate) Handle(c *fiber.Ctx) error {
	path := RequestPath(c)

	if g.policy.StripUntrustedIdentity && g.policy.IdentityHeader != "" {
		c.Request().Header.Del(g.policy.IdentityHeader)
	}

	if g.IsPublic(path) {
		g.record(DecisionPublic)
		g.logger.Debug("public path accessed", zap.String("path", path))
		return c.Next()
	}

	if _, ok := PrincipalFromContext(c); ok {
		g.record(DecisionPassThrough)
		return c.Next()
	}

	raw, decision := bearerToken(c.Get(fiber.HeaderAuthorization))
	if decision != "" {
		if !g.policy.RequireCredentials {
			g.record(DecisionAnonymous)
			return c.Next()
		}
		g.record(decision)
		g.logger.Warn("missing or invalid authorization header",
			zap.String("path", path), zap.String("decision", decision))
		return apperrors.NewUnauthorized("missing or invalid authorization header")
	}

	result := g.codec.Verify(raw)
	if !result.Valid() {
		g.record(DecisionInvalidToken)
		g.logger.Warn("token rejected",
			zap.String("path", path),
			zap.String("outcome", result.Outcome.String()),
			zap.Error(result.Err()))
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	ctx := c.UserContext()
	var authorities []string
	if g.policy.Authorities != nil {
		resolved, err := g.policy.Authorities.Resolve(ctx, result)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, ErrUnknownSubject) {
				g.record(DecisionInvalidToken)
				g.logger.Warn("token subject no longer exists", zap.String("path", path))
				return apperrors.NewUnauthorized("invalid or expired token")
			}
			return apperrors.NewInternalError(err)
		}
		authorities = resolved
	}
	// A cancelled request must not walk away with a principal.
	if err := ctx.Err(); err != nil {
		return err
	}

	if g.policy.IdentityHeader != "" {
		c.Request().Header.Set(g.policy.IdentityHeader, result.Subject)
	}
	attachPrincipal(c, &Principal{
		Username:    result.Subject,
		Authorities: authorities,
		Tier:        g.policy.Tier,
	})

	g.record(DecisionValid)
	g.logger.Debug("token accepted", zap.String("path", path), zap.String("subject", result.Subject))
	return c.Next()
}

func (g *Gate) record(decision string) {
	if g.metrics != nil {
		g.metrics.RecordAuthDecision(string(g.policy.Tier), decision)
	}
}

// RequestPath is the decoded, dot-segment-free path of the request. It is the
// path an upstream receives, so allow-list checks and routing must use it
// rather than the raw request line.
func RequestPath(c *fiber.Ctx) string {
	return string(c.Request().URI().Path())
}

// bearerToken extracts the credential from an Authorization header. A
// non-empty decision explains why no token could be taken.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", DecisionMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", DecisionMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", DecisionMalformedHeader
	}
	return token, ""
}

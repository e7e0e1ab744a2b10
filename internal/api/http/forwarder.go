package http

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/config"
	apperrors "github.com/spec-kit/authgate/pkg/util"
)

// Forwarder hands a validated request to its backend.
type Forwarder interface {
	Forward(c *fiber.Ctx) error
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc func(c *fiber.Ctx) error

// Forward calls f.
func (f ForwarderFunc) Forward(c *fiber.Ctx) error {
	return f(c)
}

// ProxyForwarder proxies to the upstream whose prefix is the longest match.
type ProxyForwarder struct {
	routes []config.Route
	logger *zap.Logger
}

// NewProxyForwarder sorts routes so longer prefixes are tried first.
func NewProxyForwarder(routes []config.Route, logger *zap.Logger) *ProxyForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	sorted := append([]config.Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &ProxyForwarder{routes: sorted, logger: logger}
}

// Match returns the route serving path.
func (p *ProxyForwarder) Match(path string) (config.Route, bool) {
	for _, route := range p.routes {
		if path == route.Prefix || strings.HasPrefix(path, strings.TrimRight(route.Prefix, "/")+"/") {
			return route, true
		}
	}
	return config.Route{}, false
}

// Forward implements Forwarder.
func (p *ProxyForwarder) Forward(c *fiber.Ctx) error {
	route, ok := p.Match(auth.RequestPath(c))
	if !ok {
		return apperrors.NewNotFound("route", nil)
	}

	// RequestURI re-encodes the normalized path, so the upstream sees exactly
	// the path the gate classified.
	target := route.Upstream + string(c.Request().URI().RequestURI())
	if err := proxy.Do(c, target); err != nil {
		p.logger.Error("upstream unreachable", zap.String("upstream", route.Upstream), zap.Error(err))
		return apperrors.NewDomainError("BAD_GATEWAY", "Bad gateway", "upstream unavailable", fiber.StatusBadGateway, nil)
	}
	// Upstream error bodies already carry the uniform shape; pass them through.
	c.Response().Header.Del(fiber.HeaderServer)
	return nil
}

// Routes returns the configured routes, longest prefix first.
func (p *ProxyForwarder) Routes() []config.Route {
	return append([]config.Route(nil), p.routes...)
}

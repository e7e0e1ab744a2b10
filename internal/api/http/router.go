package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/authgate/internal/api/http/handlers"
	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/domain"
)

// AuthServiceRoutes bundles dependencies for the auth service.
type AuthServiceRoutes struct {
	Health *handlers.HealthHandler
	Auth   *handlers.AuthHandler
	Gate   *auth.Gate
}

// RegisterAuthServiceRoutes wires the issuer endpoints. The service-local gate
// runs on every route; role checks sit on the individual handlers.
func RegisterAuthServiceRoutes(app *fiber.App, cfg AuthServiceRoutes) {
	app.Use(cfg.Gate.Handle)

	app.Get("/actuator/health", cfg.Health.Live)
	app.Get("/actuator/health/readiness", cfg.Health.Ready)

	api := app.Group("/api/auth")
	api.Post("/register", cfg.Auth.Register)
	api.Post("/login", cfg.Auth.Login)
	api.Get("/health", cfg.Auth.Health)

	api.Get("/me", auth.RequireAuthority(domain.RoleUser, domain.RoleAdmin), cfg.Auth.Me)
	api.Get("/users/:username", auth.RequireAuthority(domain.RoleAdmin), cfg.Auth.GetUser)
}

// GatewayRoutes bundles dependencies for the perimeter.
type GatewayRoutes struct {
	Health    *handlers.HealthHandler
	Gate      *auth.Gate
	Forwarder Forwarder
}

// RegisterGatewayRoutes wires the gateway's own endpoints and forwards
// everything else once the perimeter gate has admitted it.
func RegisterGatewayRoutes(app *fiber.App, cfg GatewayRoutes) {
	app.Use(cfg.Gate.Handle)

	app.Get("/actuator/health", cfg.Health.Live)
	app.Get("/actuator/health/readiness", cfg.Health.Ready)
	app.Get("/actuator/info", cfg.Health.Info)
	app.Get("/actuator/metrics", cfg.Health.Metrics)

	app.All("/*", cfg.Forwarder.Forward)
}

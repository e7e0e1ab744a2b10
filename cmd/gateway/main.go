package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/authgate/internal/api/http"
	"github.com/spec-kit/authgate/internal/api/http/handlers"
	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, "gateway")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	key, err := auth.NewSigningKey(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("invalid signing key", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	gate := auth.NewGate(auth.NewCodec(key),
		auth.PerimeterPolicy(cfg.Gateway.PublicPaths, cfg.Auth.IdentityHeader), logger, metrics)
	forwarder := httptransport.NewProxyForwarder(cfg.Gateway.Routes, logger)

	routes := make([]fiber.Map, 0, len(cfg.Gateway.Routes))
	for _, r := range forwarder.Routes() {
		routes = append(routes, fiber.Map{"prefix": r.Prefix, "upstream": r.Upstream})
	}
	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, nil, metrics).
		WithInfo(fiber.Map{
			"routes":       routes,
			"public_paths": cfg.Gateway.PublicPaths,
		})

	app := httptransport.NewApp(cfg.App.Name)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterGatewayRoutes(app, httptransport.GatewayRoutes{
		Health:    healthHandler,
		Gate:      gate,
		Forwarder: forwarder,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("gateway listening",
		zap.String("addr", cfg.App.Addr()),
		zap.Int("routes", len(routes)))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

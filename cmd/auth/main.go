package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/authgate/internal/api/http"
	"github.com/spec-kit/authgate/internal/api/http/handlers"
	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/events"
	"github.com/spec-kit/authgate/internal/observability"
	"github.com/spec-kit/authgate/internal/persistence"
	"github.com/spec-kit/authgate/internal/repository"
	"github.com/spec-kit/authgate/internal/service"
	"github.com/spec-kit/authgate/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, "auth-service")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key, err := auth.NewSigningKey(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("invalid signing key", zap.Error(err))
	}
	codec := auth.NewCodec(key)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var users repository.UserRepository
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		users = repository.NewUserRepository(pg.PoolHandle())
	} else {
		users = repository.NewMemoryUserRepository()
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	// Left as a nil interface when Redis is off; consumers check for nil.
	var roleCache auth.RoleCache
	var invalidator worker.RoleInvalidator
	if redis.Enabled() {
		cache := persistence.NewRoleCache(redis.Client, cfg.Redis.RoleCacheTTL())
		roleCache, invalidator = cache, cache
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(dispatcher, invalidator, logger)

	store := service.NewCredentialStore(users, cfg.Auth.BcryptCost)
	issuer := service.NewIssuer(store, codec, service.IssuerOptions{
		TokenTTL:   cfg.Auth.TokenTTL(),
		EmbedRoles: cfg.Auth.EmbedRoles,
	}, dispatcher, logger)

	resolver := authorityResolver(cfg.Auth, store, roleCache, logger)
	gate := auth.NewGate(codec, auth.ServicePolicy(cfg.Auth.IdentityHeader, resolver, cfg.Gateway.PublicPaths...), logger, metrics)

	app := httptransport.NewApp(cfg.App.Name)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"postgres": pg,
		"redis":    redis,
	}, metrics)

	httptransport.RegisterAuthServiceRoutes(app, httptransport.AuthServiceRoutes{
		Health: healthHandler,
		Auth:   handlers.NewAuthHandler(issuer),
		Gate:   gate,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("auth service listening",
		zap.String("addr", cfg.App.Addr()),
		zap.String("authority_source", cfg.Auth.AuthoritySource))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// authorityResolver picks how the service-local gate derives authorities.
func authorityResolver(cfg config.AuthConfig, store *service.CredentialStore, cache auth.RoleCache, logger *zap.Logger) auth.AuthorityResolver {
	static := auth.StaticAuthorities(cfg.DefaultAuthorities)
	switch cfg.AuthoritySource {
	case config.AuthoritySourceStore:
		return auth.NewStoreAuthorities(store, cache, logger)
	case config.AuthoritySourceClaims:
		return auth.ClaimAuthorities{Claim: auth.RolesClaim, Fallback: static}
	default:
		return static
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

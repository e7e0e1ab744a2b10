package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Authority sources understood by the service-local validator.
const (
	AuthoritySourceStatic = "static"
	AuthoritySourceStore  = "store"
	AuthoritySourceClaims = "claims"
)

// DefaultPublicPaths lists the prefixes the gateway lets through unauthenticated.
var DefaultPublicPaths = []string{
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/health",
	"/actuator/health",
	"/actuator/info",
}

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	RoleCacheTTLSec int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token and credential parameters shared by every tier.
type AuthConfig struct {
	JWTSecret          string
	TokenTTLMinutes    int
	BcryptCost         int
	IdentityHeader     string
	EmbedRoles         bool
	AuthoritySource    string
	DefaultAuthorities []string
}

// GatewayConfig configures the perimeter tier.
type GatewayConfig struct {
	PublicPaths []string
	Routes      []Route
}

// Route maps a path prefix to an upstream base URL.
type Route struct {
	Prefix   string
	Upstream string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	routes, err := ParseRoutes(os.Getenv("GATEWAY_ROUTES"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_ROUTES: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "auth-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:            os.Getenv("REDIS_ADDR"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			RoleCacheTTLSec: getEnvAsInt("REDIS_ROLE_CACHE_TTL_SECONDS", 300),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("AUTH_JWT_SECRET", "dev-secret-change-me-at-least-32-bytes"),
			TokenTTLMinutes:    getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60),
			BcryptCost:         getEnvAsInt("AUTH_BCRYPT_COST", 12),
			IdentityHeader:     getEnv("AUTH_IDENTITY_HEADER", "X-User-Name"),
			EmbedRoles:         getEnvAsBool("AUTH_EMBED_ROLES", false),
			AuthoritySource:    strings.ToLower(getEnv("AUTH_AUTHORITY_SOURCE", AuthoritySourceStatic)),
			DefaultAuthorities: getEnvAsList("AUTH_DEFAULT_AUTHORITIES", []string{"USER"}),
		},
		Gateway: GatewayConfig{
			PublicPaths: getEnvAsList("GATEWAY_PUBLIC_PATHS", DefaultPublicPaths),
			Routes:      routes,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	switch c.Auth.AuthoritySource {
	case AuthoritySourceStatic, AuthoritySourceStore, AuthoritySourceClaims:
	default:
		return fmt.Errorf("invalid AUTH_AUTHORITY_SOURCE %q", c.Auth.AuthoritySource)
	}
	if c.Auth.IdentityHeader == "" {
		return fmt.Errorf("AUTH_IDENTITY_HEADER must not be empty")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// RoleCacheTTL returns how long resolved roles stay cached in Redis.
func (r RedisConfig) RoleCacheTTL() time.Duration {
	if r.RoleCacheTTLSec <= 0 {
		return 0
	}
	return time.Duration(r.RoleCacheTTLSec) * time.Second
}

// ParseRoutes parses "prefix=upstream" pairs separated by commas.
func ParseRoutes(raw string) ([]Route, error) {
	var routes []Route
	for _, item := range splitList(raw) {
		prefix, upstream, ok := strings.Cut(item, "=")
		prefix = strings.TrimSpace(prefix)
		upstream = strings.TrimRight(strings.TrimSpace(upstream), "/")
		if !ok || prefix == "" || upstream == "" {
			return nil, fmt.Errorf("malformed route %q", item)
		}
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route prefix %q must start with /", prefix)
		}
		routes = append(routes, Route{Prefix: prefix, Upstream: upstream})
	}
	return routes, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	items := splitList(os.Getenv(key))
	if len(items) == 0 {
		return append([]string(nil), fallback...)
	}
	return items
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/authgate/internal/api/http/handlers"
	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/observability"
	"github.com/spec-kit/authgate/internal/repository"
	"github.com/spec-kit/authgate/internal/service"
)

const (
	testSecret     = "router-test-secret-with-at-least-32-bytes"
	identityHeader = "X-User-Name"
)

func testCodec(t *testing.T) *auth.Codec {
	t.Helper()
	key, err := auth.NewSigningKey(testSecret)
	require.NoError(t, err)
	return auth.NewCodec(key)
}

// newAuthService wires the auth service the way cmd/auth does, with an
// in-memory credential store. storeAuthorities switches the service-local
// validator from the static USER grant to store lookups.
func newAuthService(t *testing.T, storeAuthorities bool) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	codec := testCodec(t)

	store := service.NewCredentialStore(repository.NewMemoryUserRepository(), bcrypt.MinCost)
	issuer := service.NewIssuer(store, codec, service.IssuerOptions{TokenTTL: time.Hour}, nil, logger)

	var resolver auth.AuthorityResolver = auth.StaticAuthorities{"USER"}
	if storeAuthorities {
		resolver = auth.NewStoreAuthorities(store, nil, logger)
	}

	app := NewApp("auth-test")
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterAuthServiceRoutes(app, AuthServiceRoutes{
		Health: handlers.NewHealthHandler("auth-test", "test", nil, metrics),
		Auth:   handlers.NewAuthHandler(issuer),
		Gate:   auth.NewGate(codec, auth.ServicePolicy(identityHeader, resolver, config.DefaultPublicPaths...), logger, metrics),
	})
	return app
}

func newGateway(t *testing.T, forwarder Forwarder) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	app := NewApp("gateway-test")
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterGatewayRoutes(app, GatewayRoutes{
		Health:    handlers.NewHealthHandler("gateway-test", "test", nil, metrics),
		Gate:      auth.NewGate(testCodec(t), auth.PerimeterPolicy(config.DefaultPublicPaths, identityHeader), logger, metrics),
		Forwarder: forwarder,
	})
	return app
}

// serve starts app on a loopback port and returns its base URL.
func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

type response struct {
	status int
	body   string
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.body), &out), r.body)
	return out
}

func call(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, body: string(raw)}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func assertErrorShape(t *testing.T, r response, status int) {
	t.Helper()
	assert.Equal(t, status, r.status, r.body)
	body := r.json(t)
	assert.Equal(t, float64(status), body["status"])
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Len(t, body, 4)
}

func TestEndToEndThroughGateway(t *testing.T) {
	authURL := serve(t, newAuthService(t, false))
	gateway := newGateway(t, NewProxyForwarder([]config.Route{{Prefix: "/api/auth", Upstream: authURL}}, zap.NewNop()))

	reg := call(t, gateway, nethttp.MethodPost, "/api/auth/register", `{"username":"alice","password":"pw123"}`, nil)
	require.Equal(t, nethttp.StatusCreated, reg.status, reg.body)
	assert.NotEmpty(t, reg.json(t)["token"])

	login := call(t, gateway, nethttp.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw123"}`, nil)
	require.Equal(t, nethttp.StatusOK, login.status, login.body)
	token, _ := login.json(t)["token"].(string)
	require.NotEmpty(t, token)

	me := call(t, gateway, nethttp.MethodGet, "/api/auth/me", "", bearer(token))
	require.Equal(t, nethttp.StatusOK, me.status, me.body)
	assert.Equal(t, "alice", me.json(t)["username"])
	assert.Equal(t, []any{"USER"}, me.json(t)["authorities"])

	garbage := call(t, gateway, nethttp.MethodGet, "/api/auth/me", "", bearer("garbage"))
	assertErrorShape(t, garbage, nethttp.StatusUnauthorized)
	assert.NotContains(t, garbage.body, "alice")

	missing := call(t, gateway, nethttp.MethodGet, "/api/auth/me", "", nil)
	assertErrorShape(t, missing, nethttp.StatusUnauthorized)

	health := call(t, gateway, nethttp.MethodGet, "/api/auth/health", "", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, nethttp.StatusOK, health.status)
	assert.Equal(t, "Auth Service is running!", health.body)
}

func TestPublicPathReachesIssuerWithBadBody(t *testing.T) {
	authURL := serve(t, newAuthService(t, false))
	gateway := newGateway(t, NewProxyForwarder([]config.Route{{Prefix: "/api/auth", Upstream: authURL}}, zap.NewNop()))

	resp := call(t, gateway, nethttp.MethodPost, "/api/auth/login", `{"username":`, map[string]string{
		"Authorization": "Bearer garbage",
	})

	assertErrorShape(t, resp, nethttp.StatusBadRequest)
	assert.Equal(t, "Validation error", resp.json(t)["error"])
}

func TestGatewayOverwritesSpoofedIdentity(t *testing.T) {
	var forwarded atomic.Int32
	echo := ForwarderFunc(func(c *fiber.Ctx) error {
		forwarded.Add(1)
		return c.SendString(c.Get(identityHeader))
	})
	gateway := newGateway(t, echo)

	token, _, err := testCodec(t).Sign("alice", nil, time.Hour)
	require.NoError(t, err)

	ok := call(t, gateway, nethttp.MethodGet, "/api/orders/42", "", map[string]string{
		"Authorization": "Bearer " + token,
		identityHeader:  "admin",
	})
	assert.Equal(t, nethttp.StatusOK, ok.status)
	assert.Equal(t, "alice", ok.body)

	rejected := call(t, gateway, nethttp.MethodGet, "/api/orders/42", "", map[string]string{
		"Authorization": "Bearer garbage",
		identityHeader:  "admin",
	})
	assertErrorShape(t, rejected, nethttp.StatusUnauthorized)
	assert.Equal(t, int32(1), forwarded.Load())
}

// newEchoUpstream serves every path and reports the path and identity header
// it received.
func newEchoUpstream(t *testing.T, hits *atomic.Int32) string {
	t.Helper()
	upstream := fiber.New(fiber.Config{DisableStartupMessage: true})
	upstream.All("/*", func(c *fiber.Ctx) error {
		hits.Add(1)
		return c.JSON(fiber.Map{"path": c.Path(), "identity": c.Get(identityHeader)})
	})
	return serve(t, upstream)
}

func TestGatewayDotSegmentsCannotReachProtectedRoutes(t *testing.T) {
	var hits atomic.Int32
	upstreamURL := newEchoUpstream(t, &hits)
	gateway := newGateway(t, NewProxyForwarder([]config.Route{{Prefix: "/api", Upstream: upstreamURL}}, zap.NewNop()))

	for _, path := range []string{
		"/api/auth/login/../../orders/1",
		"/api/auth/register/%2e%2e/%2e%2e/orders/1",
		"/actuator/health/../../api/orders/1",
	} {
		t.Run(path, func(t *testing.T) {
			resp := call(t, gateway, nethttp.MethodGet, path, "", nil)
			assertErrorShape(t, resp, nethttp.StatusUnauthorized)
		})
	}
	assert.Equal(t, int32(0), hits.Load())

	token, _, err := testCodec(t).Sign("alice", nil, time.Hour)
	require.NoError(t, err)
	resp := call(t, gateway, nethttp.MethodGet, "/api/auth/login/../../orders/1?page=2", "", bearer(token))
	require.Equal(t, nethttp.StatusOK, resp.status, resp.body)
	assert.Equal(t, "/api/orders/1", resp.json(t)["path"])
	assert.Equal(t, "alice", resp.json(t)["identity"])
}

func TestGatewayStripsSpoofedIdentityOnPublicPath(t *testing.T) {
	var hits atomic.Int32
	upstreamURL := newEchoUpstream(t, &hits)
	gateway := newGateway(t, NewProxyForwarder([]config.Route{{Prefix: "/api", Upstream: upstreamURL}}, zap.NewNop()))

	for _, path := range []string{"/api/auth/health", "/api/auth/login"} {
		t.Run(path, func(t *testing.T) {
			resp := call(t, gateway, nethttp.MethodGet, path, "", map[string]string{identityHeader: "admin"})
			require.Equal(t, nethttp.StatusOK, resp.status, resp.body)
			assert.Equal(t, path, resp.json(t)["path"])
			assert.Empty(t, resp.json(t)["identity"])
		})
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestRegisterRejectsPasswordOverByteLimit(t *testing.T) {
	app := newAuthService(t, false)

	body := fmt.Sprintf(`{"username":"zoe","password":%q}`, strings.Repeat("é", 40))
	resp := call(t, app, nethttp.MethodPost, "/api/auth/register", body, nil)

	assertErrorShape(t, resp, nethttp.StatusBadRequest)
	assert.Equal(t, "Validation error", resp.json(t)["error"])
}

func TestGatewayUnknownRoute(t *testing.T) {
	gateway := newGateway(t, NewProxyForwarder(nil, zap.NewNop()))
	token, _, err := testCodec(t).Sign("alice", nil, time.Hour)
	require.NoError(t, err)

	resp := call(t, gateway, nethttp.MethodGet, "/api/nowhere", "", bearer(token))
	assertErrorShape(t, resp, nethttp.StatusNotFound)
}

func TestGatewayUpstreamDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadURL := "http://" + ln.Addr().String()
	require.NoError(t, ln.Close())

	gateway := newGateway(t, NewProxyForwarder([]config.Route{{Prefix: "/api/auth", Upstream: deadURL}}, zap.NewNop()))
	resp := call(t, gateway, nethttp.MethodPost, "/api/auth/login", `{"username":"a","password":"b"}`, nil)

	assertErrorShape(t, resp, nethttp.StatusBadGateway)
}

func TestGatewayOwnEndpoints(t *testing.T) {
	gateway := newGateway(t, NewProxyForwarder(nil, zap.NewNop()))

	assert.Equal(t, nethttp.StatusOK, call(t, gateway, nethttp.MethodGet, "/actuator/health", "", nil).status)
	assert.Equal(t, nethttp.StatusOK, call(t, gateway, nethttp.MethodGet, "/actuator/info", "", nil).status)
	assertErrorShape(t, call(t, gateway, nethttp.MethodGet, "/actuator/metrics", "", nil), nethttp.StatusUnauthorized)

	token, _, err := testCodec(t).Sign("ops", nil, time.Hour)
	require.NoError(t, err)
	metrics := call(t, gateway, nethttp.MethodGet, "/actuator/metrics", "", bearer(token))
	assert.Equal(t, nethttp.StatusOK, metrics.status)
	assert.Contains(t, metrics.body, "perimeter|public")
}

func TestConcurrentRegistration(t *testing.T) {
	app := newAuthService(t, false)
	statuses := make([]int, 2)

	var g errgroup.Group
	for i := range statuses {
		g.Go(func() error {
			req := httptest.NewRequest(nethttp.MethodPost, "/api/auth/register", strings.NewReader(`{"username":"bob","password":"pw"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.ElementsMatch(t, []int{nethttp.StatusCreated, nethttp.StatusConflict}, statuses)
}

func TestRegisterValidationAndConflict(t *testing.T) {
	app := newAuthService(t, false)

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{name: "missing password", body: `{"username":"carol"}`, status: nethttp.StatusBadRequest, errMsg: "Validation error"},
		{name: "bad role", body: `{"username":"carol","password":"pw","roles":["SUPER USER"]}`, status: nethttp.StatusBadRequest, errMsg: "Validation error"},
		{name: "created", body: `{"username":"carol","password":"pw"}`, status: nethttp.StatusCreated},
		{name: "duplicate", body: `{"username":"carol","password":"pw2"}`, status: nethttp.StatusConflict, errMsg: "User already exists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, app, nethttp.MethodPost, "/api/auth/register", tt.body, nil)
			if tt.errMsg == "" {
				assert.Equal(t, tt.status, resp.status, resp.body)
				return
			}
			assertErrorShape(t, resp, tt.status)
			assert.Equal(t, tt.errMsg, resp.json(t)["error"])
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	app := newAuthService(t, false)
	require.Equal(t, nethttp.StatusCreated,
		call(t, app, nethttp.MethodPost, "/api/auth/register", `{"username":"dave","password":"pw"}`, nil).status)

	wrong := call(t, app, nethttp.MethodPost, "/api/auth/login", `{"username":"dave","password":"nope"}`, nil)
	unknown := call(t, app, nethttp.MethodPost, "/api/auth/login", `{"username":"erin","password":"pw"}`, nil)

	assertErrorShape(t, wrong, nethttp.StatusUnauthorized)
	assertErrorShape(t, unknown, nethttp.StatusUnauthorized)
	assert.Equal(t, wrong.json(t)["message"], unknown.json(t)["message"])
	assert.Equal(t, wrong.json(t)["error"], unknown.json(t)["error"])
}

func TestServiceIgnoresIdentityHeaderWithoutToken(t *testing.T) {
	app := newAuthService(t, false)

	resp := call(t, app, nethttp.MethodGet, "/api/auth/me", "", map[string]string{identityHeader: "alice"})
	assertErrorShape(t, resp, nethttp.StatusUnauthorized)
}

func TestAdminLookupAuthorities(t *testing.T) {
	register := func(t *testing.T, app *fiber.App, username, roles string) string {
		t.Helper()
		body := fmt.Sprintf(`{"username":%q,"password":"pw","roles":%s}`, username, roles)
		resp := call(t, app, nethttp.MethodPost, "/api/auth/register", body, nil)
		require.Equal(t, nethttp.StatusCreated, resp.status, resp.body)
		return resp.json(t)["token"].(string)
	}

	t.Run("static authorities never grant admin", func(t *testing.T) {
		app := newAuthService(t, false)
		root := register(t, app, "root", `["ADMIN"]`)

		resp := call(t, app, nethttp.MethodGet, "/api/auth/users/root", "", bearer(root))
		assertErrorShape(t, resp, nethttp.StatusForbidden)
	})

	t.Run("store authorities", func(t *testing.T) {
		app := newAuthService(t, true)
		root := register(t, app, "root", `["ADMIN"]`)
		alice := register(t, app, "alice", `[]`)

		found := call(t, app, nethttp.MethodGet, "/api/auth/users/alice", "", bearer(root))
		require.Equal(t, nethttp.StatusOK, found.status, found.body)
		assert.Equal(t, []any{"USER"}, found.json(t)["roles"])
		assert.NotContains(t, found.body, "password")

		missing := call(t, app, nethttp.MethodGet, "/api/auth/users/ghost", "", bearer(root))
		assertErrorShape(t, missing, nethttp.StatusNotFound)

		forbidden := call(t, app, nethttp.MethodGet, "/api/auth/users/root", "", bearer(alice))
		assertErrorShape(t, forbidden, nethttp.StatusForbidden)

		unauthenticated := call(t, app, nethttp.MethodGet, "/api/auth/users/root", "", nil)
		assertErrorShape(t, unauthenticated, nethttp.StatusUnauthorized)
	})
}

package auth

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestRequireAuthority(t *testing.T) {
	tests := []struct {
		name       string
		principal  *Principal
		required   []string
		wantStatus int
	}{
		{name: "no principal", required: []string{"USER"}, wantStatus: http.StatusUnauthorized},
		{name: "no principal any role", required: nil, wantStatus: http.StatusUnauthorized},
		{name: "holds required", principal: &Principal{Username: "alice", Authorities: []string{"USER"}}, required: []string{"USER", "ADMIN"}, wantStatus: http.StatusOK},
		{name: "lacks required", principal: &Principal{Username: "alice", Authorities: []string{"USER"}}, required: []string{"ADMIN"}, wantStatus: http.StatusForbidden},
		{name: "no authorities at all", principal: &Principal{Username: "alice"}, required: []string{"USER"}, wantStatus: http.StatusForbidden},
		{name: "authenticated only", principal: &Principal{Username: "alice"}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
			app.Use(func(c *fiber.Ctx) error {
				if tt.principal != nil {
					attachPrincipal(c, tt.principal)
				}
				return c.Next()
			})
			app.Get("/op", RequireAuthority(tt.required...), func(c *fiber.Ctx) error {
				return c.SendStatus(http.StatusOK)
			})

			status, body := perform(t, app, http.MethodGet, "/op", nil)
			assert.Equal(t, tt.wantStatus, status)
			switch tt.wantStatus {
			case http.StatusForbidden:
				assert.Contains(t, body, `"error":"Forbidden"`)
			case http.StatusUnauthorized:
				assert.Contains(t, body, `"error":"Unauthorized"`)
			}
		})
	}
}

func TestPrincipalHasAuthority(t *testing.T) {
	p := &Principal{Authorities: []string{"USER", "ADMIN"}}
	assert.True(t, p.HasAuthority("ADMIN"))
	assert.False(t, p.HasAuthority("AUDITOR"))
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/authgate/internal/api/dto"
	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/service"
	apperrors "github.com/spec-kit/authgate/pkg/util"
)

// AuthHandler exposes the issuer over HTTP.
type AuthHandler struct {
	issuer *service.Issuer
}

// NewAuthHandler constructs handler.
func NewAuthHandler(issuer *service.Issuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	issued, err := h.issuer.Register(c.UserContext(), req.Username, req.Password, req.Roles)
	if err != nil {
		return mapIssuerError(err)
	}

	return c.Status(http.StatusCreated).JSON(dto.AuthResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	issued, err := h.issuer.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return mapIssuerError(err)
	}

	return c.JSON(dto.AuthResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt})
}

// Health handles GET /api/auth/health.
func (h *AuthHandler) Health(c *fiber.Ctx) error {
	return c.SendString("Auth Service is running!")
}

// Me handles GET /api/auth/me and echoes the service-local principal.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(dto.IdentityResponse{Username: principal.Username, Authorities: principal.Authorities})
}

// GetUser handles GET /api/auth/users/:username.
func (h *AuthHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.issuer.Lookup(c.UserContext(), c.Params("username"))
	if err != nil {
		return mapIssuerError(err)
	}
	return c.JSON(dto.UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Roles:     user.Roles,
		CreatedAt: user.CreatedAt,
	})
}

func mapIssuerError(err error) error {
	switch {
	case errors.Is(err, service.ErrUserAlreadyExists):
		return apperrors.NewConflict("User already exists", "Username already exists", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewInvalidCredentials()
	case errors.Is(err, service.ErrPasswordTooLong):
		return apperrors.NewValidationError("Invalid input data", map[string]any{"fields": map[string]any{"password": "max_bytes"}})
	case errors.Is(err, service.ErrUserNotFound):
		return apperrors.NewNotFound("user", nil)
	default:
		return apperrors.NewInternalError(err)
	}
}

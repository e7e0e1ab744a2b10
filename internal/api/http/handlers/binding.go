package handlers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/authgate/pkg/util"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// bindJSON decodes the body into dst and validates its struct tags.
func bindJSON(c *fiber.Ctx, dst any) error {
	if !strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		return apperrors.NewValidationError("Invalid input data", map[string]any{"content_type": "application/json required"})
	}
	if err := c.BodyParser(dst); err != nil {
		return apperrors.NewValidationError("Invalid input data", nil)
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]any, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
			return apperrors.NewValidationError("Invalid input data", map[string]any{"fields": fields})
		}
		return apperrors.NewValidationError("Invalid input data", nil)
	}
	return nil
}

package util

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Error codes for the auth core taxonomy.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_FAILED"
	CodeInternal        = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Title      string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the body written for every rejected request.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
}

// Response renders the error in the uniform wire shape.
func (e *DomainError) Response(now time.Time) ErrorResponse {
	return ErrorResponse{
		Timestamp: now.UTC(),
		Status:    e.HTTPStatus,
		Error:     e.Title,
		Message:   e.Message,
	}
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, title, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Title: title, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, "Validation error", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Title:      "Not found",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthenticated, "Unauthorized", message, http.StatusUnauthorized, nil)
}

// NewInvalidCredentials is the single answer for unknown users and wrong passwords.
func NewInvalidCredentials() error {
	return NewDomainError(CodeUnauthenticated, "Invalid credentials", "Invalid username or password", http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, "Forbidden", message, http.StatusForbidden, nil)
}

func NewConflict(title, message string, details map[string]any) error {
	return NewDomainError(CodeConflict, title, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Title:      "Internal server error",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError. Anything unclassified
// becomes an internal error whose message never carries the cause.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fromFiberError(fiberErr)
	}
	return NewInternalError(err).(*DomainError)
}

func fromFiberError(err *fiber.Error) *DomainError {
	switch err.Code {
	case http.StatusBadRequest:
		return NewValidationError(err.Message, nil).(*DomainError)
	case http.StatusUnauthorized:
		return NewUnauthorized(err.Message).(*DomainError)
	case http.StatusForbidden:
		return NewForbidden(err.Message).(*DomainError)
	case http.StatusNotFound:
		return NewDomainError(CodeNotFound, "Not found", err.Message, http.StatusNotFound, nil)
	case http.StatusConflict:
		return NewConflict("Conflict", err.Message, nil).(*DomainError)
	}
	if err.Code >= http.StatusInternalServerError {
		return NewInternalError(err).(*DomainError)
	}
	return NewDomainError(http.StatusText(err.Code), http.StatusText(err.Code), err.Message, err.Code, nil)
}

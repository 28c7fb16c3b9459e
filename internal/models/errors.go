package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError and echoed in API responses.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
)

var codeStatus = map[string]int{
	CodeNotFound:     fiber.StatusNotFound,
	CodeValidation:   fiber.StatusBadRequest,
	CodeUnauthorized: fiber.StatusUnauthorized,
	CodeForbidden:    fiber.StatusForbidden,
	CodeConflict:     fiber.StatusConflict,
	CodeInternal:     fiber.StatusInternalServerError,
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError is an error the API can show to the caller. Err is the underlying
// cause; it is only exposed for non-internal codes.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return newAppError(CodeNotFound, fmt.Sprintf("%s with ID %v not found", resource, id))
}

func NewValidationError(message string) *AppError { return newAppError(CodeValidation, message) }

// NewUnauthorizedError is for missing or bad credentials.
func NewUnauthorizedError(message string) *AppError { return newAppError(CodeUnauthorized, message) }

// NewForbiddenError is for a known caller without permission.
func NewForbiddenError(message string) *AppError { return newAppError(CodeForbidden, message) }

func NewConflictError(message string) *AppError { return newAppError(CodeConflict, message) }

func NewInternalError(err error) *AppError {
	e := newAppError(CodeInternal, "Internal server error")
	e.Err = err
	return e
}

// ErrorCode returns the code of the AppError in err's chain, or "".
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus maps err's code onto a response status. Errors without a known
// code are 500.
func HTTPStatus(err error) int {
	if status, ok := codeStatus[ErrorCode(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// RespondWithError writes err as an ErrorResponse with the given status.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	body := ErrorResponse{Error: err.Error()}
	var appErr *AppError
	if errors.As(err, &appErr) {
		body = ErrorResponse{Error: appErr.Message, Code: appErr.Code}
		if appErr.Err != nil && appErr.Code != CodeInternal {
			body.Details = appErr.Err.Error()
		}
	}
	return c.Status(status).JSON(body)
}

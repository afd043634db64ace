package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/vantageinsurance/knowbase"
)

// apiError is a transport error with a stable machine-readable code.
// Handlers return it; the fiber error handler renders the envelope.
type apiError struct {
	status  int
	code    string
	message string
	fields  map[string]string
	cause   error
}

func (e *apiError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *apiError) Unwrap() error {
	return e.cause
}

func errBadRequest(msg string) *apiError {
	return &apiError{status: fiber.StatusBadRequest, code: "bad_request", message: msg}
}

func errValidation(fields map[string]string) *apiError {
	return &apiError{
		status:  fiber.StatusUnprocessableEntity,
		code:    "validation_failed",
		message: "request validation failed",
		fields:  fields,
	}
}

func errInternal(msg string, cause error) *apiError {
	return &apiError{
		status:  fiber.StatusInternalServerError,
		code:    "internal_error",
		message: msg,
		cause:   cause,
	}
}

// errorBody is the wire form of a failure.
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// mapEngineError translates engine sentinels into transport errors. A
// missing owner scope is 403, not 400: the request was understood and
// refused. Causes stay server-side; clients get the stable message.
func mapEngineError(err error) *apiError {
	switch {
	case errors.Is(err, knowbase.ErrEmptyQuery):
		return &apiError{status: fiber.StatusBadRequest, code: "empty_query",
			message: "query must not be empty", cause: err}
	case errors.Is(err, knowbase.ErrScopeViolation):
		return &apiError{status: fiber.StatusForbidden, code: "scope_violation",
			message: "retrieval requires an owner scope", cause: err}
	case errors.Is(err, knowbase.ErrNotInitialized), errors.Is(err, knowbase.ErrClosed):
		return &apiError{status: fiber.StatusServiceUnavailable, code: "engine_unavailable",
			message: "engine is not ready", cause: err}
	default:
		return errInternal("internal error", err)
	}
}

// newErrorHandler renders every error through the envelope. Server-side
// failures are logged with their cause; the client sees only the
// envelope.
func newErrorHandler(logger *knowbase.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ae *apiError
		if !errors.As(err, &ae) {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				ae = &apiError{status: fe.Code, code: "http_error", message: fe.Message}
			} else {
				ae = errInternal("internal error", err)
			}
		}

		if ae.status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				"request_id", requestIDFrom(c),
				"method", c.Method(),
				"path", c.Path(),
				"status", ae.status,
				"error", err)
		}

		return c.Status(ae.status).JSON(errorEnvelope{Error: errorBody{
			Code:    ae.code,
			Message: ae.message,
			Fields:  ae.fields,
		}})
	}
}

// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the mapping from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"budgetbook/internal/auth"
	"budgetbook/internal/cashcount"
	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

// errorBody is the payload of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail any    `json:"detail,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Data(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

var validationErrors = []error{
	core.ErrEmptyName,
	core.ErrInvalidColor,
	core.ErrInvalidCurrency,
	core.ErrInvalidAmount,
	core.ErrInvalidDate,
	core.ErrInvalidDay,
	core.ErrInvalidMonth,
	core.ErrInvalidRole,
	core.ErrInvalidEmail,
	core.ErrInvalidFieldType,
	core.ErrInvalidPeriod,
	core.ErrOutOfRange,
	cashcount.ErrInvalidDenomination,
	errInvalidQuery,
}

// StatusFor maps an error returned by a service to an HTTP status code.
func StatusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrFieldNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden), errors.Is(err, core.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrFieldExists), errors.Is(err, core.ErrInvitationPending):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvitationExpired), errors.Is(err, core.ErrInvitationUsed):
		return http.StatusGone
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// writeError logs server-side failures and writes the mapped status. Client
// errors carry the error text; internal ones a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorBody{Error: err.Error()}

	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err,
			applog.FieldPath, r.URL.Path,
			applog.FieldErrorType, applog.ErrorType(err))
		body.Error = http.StatusText(status)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldError, err,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, status)
	}
	NewJSONResponse().Status(status).Data(body).Write(w)
}

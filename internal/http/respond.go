// Package http provides the JSON API server and handler implementations.
//
// This file implements the response side of the API contract: a small
// builder for JSON responses and the mapping from domain errors to HTTP
// status codes. Every handler funnels its output through these helpers so
// the envelope stays consistent.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rroihans/dompetku-sub001/internal/core"
	applog "github.com/rroihans/dompetku-sub001/internal/log"
)

// errorEnvelope is the body of every non-2xx response.
type errorEnvelope struct {
	Error string `json:"error"`
}

// JSONResponse provides a fluent API for building JSON responses.
type JSONResponse struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponse {
	return &JSONResponse{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

// Body sets the value to be encoded as the response body.
func (b *JSONResponse) Body(v any) *JSONResponse {
	b.body = v
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Response encoding failed", "error", err)
	}
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponse {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorEnvelope{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponse {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponse {
	return ErrorResponse(http.StatusNotFound, message)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *JSONResponse {
	return ErrorResponse(http.StatusConflict, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponse {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// DomainError maps a domain error to its HTTP response: validation 400,
// not-found 404, conflict 409, configuration 422, everything else 500
// with the detail kept out of the body.
func DomainError(r *http.Request, err error) *JSONResponse {
	switch {
	case core.IsValidation(err):
		return BadRequestError(err.Error())
	case core.IsNotFound(err):
		return NotFoundError(err.Error())
	case core.IsConflict(err):
		return ConflictError(err.Error())
	case core.IsConfiguration(err):
		return ErrorResponse(http.StatusUnprocessableEntity, err.Error())
	default:
		sl := applog.NewStructuredLogger(applog.FromContext(r.Context()))
		sl.LogError(r.Context(), "Internal error", err, applog.ComponentHTTP, r.Method, applog.NewFields())
		return InternalServerError("internal error")
	}
}

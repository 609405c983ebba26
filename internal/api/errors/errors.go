// Package errors implements the API error-code taxonomy and the
// {success, data?, error?, code?, timestamp} response envelope shared
// by every route.
package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

// Code is one of the numeric error tags the API surface returns.
type Code int

const (
	CodeValidation  Code = 1001
	CodeAuthFailed  Code = 1002
	CodeAuthzFailed Code = 1003
	CodeNotFound    Code = 1004
	CodeDatabase    Code = 2001
	CodeNetwork     Code = 2002
	CodeRateLimited Code = 3001
	CodeInternal    Code = 5001
)

// APIError is a taxonomy error carrying its own HTTP status.
type APIError struct {
	Code    Code
	Message string
	status  int
}

func (e *APIError) Error() string { return e.Message }

// StatusCode returns the HTTP status associated with the error.
func (e *APIError) StatusCode() int { return e.status }

func newErr(code Code, status int, message string) *APIError {
	return &APIError{Code: code, Message: message, status: status}
}

// Validation builds a 1001/400 error (bad field, bad URL, interval out of range).
func Validation(message string) *APIError { return newErr(CodeValidation, http.StatusBadRequest, message) }

// AuthFailed builds a 1002/401 error (bad login password).
func AuthFailed(message string) *APIError { return newErr(CodeAuthFailed, http.StatusUnauthorized, message) }

// AuthzFailed builds a 1003/401 error (missing or invalid session).
func AuthzFailed(message string) *APIError { return newErr(CodeAuthzFailed, http.StatusUnauthorized, message) }

// NotFound builds a 1004/404 error (unknown monitor id).
func NotFound(message string) *APIError { return newErr(CodeNotFound, http.StatusNotFound, message) }

// Database builds a 2001/500 error (KV operation failed).
func Database(message string) *APIError { return newErr(CodeDatabase, http.StatusInternalServerError, message) }

// Network builds a 2002/500 error (unexpected I/O failure inside a handler).
func Network(message string) *APIError { return newErr(CodeNetwork, http.StatusInternalServerError, message) }

// RateLimited builds a 3001/429 error (too many failed logins, or general API throttling).
func RateLimited(message string) *APIError { return newErr(CodeRateLimited, http.StatusTooManyRequests, message) }

// Internal builds a 5001/500 error (uncaught exception).
func Internal(message string) *APIError { return newErr(CodeInternal, http.StatusInternalServerError, message) }

// Envelope is the uniform JSON response shape used by every API route.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      int    `json:"code,omitempty"`
	Timestamp string `json:"timestamp"`
}

// WriteData writes a successful envelope response.
func WriteData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteError writes an error envelope response. Any error that is not
// an *APIError is reported as 5001 internal without leaking internals,
// per the propagation policy.
func WriteError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*APIError)
	if !ok {
		apiErr = Internal("internal server error")
	}
	writeJSON(w, apiErr.StatusCode(), Envelope{
		Success:   false,
		Error:     apiErr.Message,
		Code:      int(apiErr.Code),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

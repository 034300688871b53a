// Package apperrors provides the unified error taxonomy for the core.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the six error categories the core ever surfaces.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
	KindInternal   Kind = "internal"
)

// ServiceError is a structured, tagged error. It is the only error shape
// that crosses a public method boundary in this core; nothing here panics
// or throws across a package boundary except genuine programmer bugs.
type ServiceError struct {
	Kind       Kind                   `json:"kind"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair and returns the receiver for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError with no wrapped cause.
func New(kind Kind, message string, httpStatus int) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a new ServiceError around an existing error.
func Wrap(kind Kind, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Validation errors (4xx, never retried).

func InvalidInput(field, reason string) *ServiceError {
	return New(KindValidation, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(KindValidation, "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func OutOfRange(field string, min, max interface{}) *ServiceError {
	return New(KindValidation, "value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("min", min).
		WithDetails("max", max)
}

// Auth errors (401/403).

func Unauthorized(message string) *ServiceError {
	return New(KindAuth, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(KindAuth, "invalid authentication token", http.StatusUnauthorized, err)
}

func TokenExpired() *ServiceError {
	return New(KindAuth, "authentication token has expired", http.StatusUnauthorized)
}

func Forbidden(message string) *ServiceError {
	return New(KindAuth, message, http.StatusForbidden)
}

// Not found (404).

func NotFound(resource, id string) *ServiceError {
	return New(KindNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Conflict (409, never retried by the core).

func Conflict(message string) *ServiceError {
	return New(KindConflict, message, http.StatusConflict)
}

func AlreadySettled(wagerNumber int64) *ServiceError {
	return New(KindConflict, "wager already settled", http.StatusConflict).
		WithDetails("wager_number", wagerNumber)
}

// Upstream (the upstream client failed; retried within a small budget by
// the caller for idempotent reads, then surfaced or degraded to local).

type UpstreamKind string

const (
	UpstreamTimeout     UpstreamKind = "timeout"
	UpstreamHTTP        UpstreamKind = "http"
	UpstreamParse       UpstreamKind = "parse"
	UpstreamBreakerOpen UpstreamKind = "breaker_open"
)

func Upstream(upstreamKind UpstreamKind, message string, err error) *ServiceError {
	return Wrap(KindUpstream, message, http.StatusServiceUnavailable, err).
		WithDetails("upstream_kind", string(upstreamKind))
}

// Internal (500; unexpected bugs, store outages, invariant violations).

func Internal(message string, err error) *ServiceError {
	return Wrap(KindInternal, message, http.StatusInternalServerError, err)
}

func StoreError(operation string, err error) *ServiceError {
	return Wrap(KindInternal, "store operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

// InvariantViolation additionally marks the error for the structured-alert
// path described in the error handling design: two matches on one queue
// item, a negative balance, a cache entry observed past its expiry.
func InvariantViolation(what string) *ServiceError {
	return New(KindInternal, "invariant violation", http.StatusInternalServerError).
		WithDetails("invariant", what).
		WithDetails("alert", true)
}

// Helpers

func IsServiceError(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr)
}

func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

func GetHTTPStatus(err error) int {
	if svcErr := GetServiceError(err); svcErr != nil {
		return svcErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func GetKind(err error) Kind {
	if svcErr := GetServiceError(err); svcErr != nil {
		return svcErr.Kind
	}
	return KindInternal
}

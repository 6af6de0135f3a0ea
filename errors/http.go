package errors

import (
	stderrors "errors"
	"net/http"
)

// Stable error codes returned to API callers.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotFound         = "NOT_FOUND"
	CodeTransportAuth    = "TRANSPORT_AUTH_FAILURE"
	CodeInternal         = "INTERNAL_ERROR"
)

// MapToHTTPStatus converts a domain error into its HTTP status.
func MapToHTTPStatus(err error) int {
	switch {
	case stderrors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrTransportAuth):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the stable machine-readable code for err.
func CodeOf(err error) string {
	switch {
	case stderrors.Is(err, ErrValidation):
		return CodeValidation
	case stderrors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case stderrors.Is(err, ErrNotFound):
		return CodeNotFound
	case stderrors.Is(err, ErrTransportAuth):
		return CodeTransportAuth
	default:
		return CodeInternal
	}
}

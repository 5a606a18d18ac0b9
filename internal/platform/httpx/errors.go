// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("state conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		ProblemKind(w, http.StatusNotFound, "not-found", "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		ProblemKind(w, http.StatusConflict, "state-conflict", "State Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		ProblemKind(w, http.StatusBadRequest, "validation-failed", "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		ProblemKind(w, http.StatusForbidden, "access-denied", "Access Denied", err.Error())
	case errors.Is(err, ErrUnauthorized):
		ProblemKind(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

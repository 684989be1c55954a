// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/warden/pkg/domain"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Messages for security-sensitive failures. Tenant mismatch and permission
// denial share one body so callers cannot tell them apart.
const (
	MessageUnauthenticated = "authentication required"
	MessageForbidden       = "forbidden"
	MessageNotFound        = "not found"
	MessageInternal        = "internal server error"
)

// StatusFor maps a domain error to its HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTenantMismatch), errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicateMembership),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrLastOwnerViolation),
		errors.Is(err, domain.ErrSlugTaken),
		errors.Is(err, domain.ErrParentNotFound),
		errors.Is(err, domain.ErrHierarchyCycle),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// WriteDomainError writes err using the status from StatusFor. Only 400
// responses carry the error text; everything else gets a fixed message.
func WriteDomainError(w http.ResponseWriter, err error) int {
	status := StatusFor(err)
	switch status {
	case http.StatusUnauthorized:
		WriteErrorMessage(w, status, MessageUnauthenticated)
	case http.StatusForbidden:
		WriteErrorMessage(w, status, MessageForbidden)
	case http.StatusBadRequest:
		WriteErrorMessage(w, status, err.Error())
	case http.StatusNotFound:
		WriteErrorMessage(w, status, MessageNotFound)
	default:
		WriteErrorMessage(w, status, MessageInternal)
	}
	return status
}

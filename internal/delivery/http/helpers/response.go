package helpers

import (
	"encoding/json"
	"errors"
	"net/http"

	"campushub/internal/domain"
)

// Error codes for API error responses that do not come from a domain error.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeForbidden     = "forbidden"
	ErrCodeNotFound      = "not_found"
	ErrCodeConflict      = "conflict"
	ErrCodeTooManyReqs   = "too_many_requests"
	ErrCodeInternalError = "internal_error"
)

// APIError is the error object in the standardized API response envelope.
// swagger:model APIError
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIResponse is the standardized envelope for all API responses.
// On success: Data is set, Error is nil. On error: Data is nil, Error is set.
// swagger:model APIResponse
type APIResponse struct {
	Data  any       `json:"data"`
	Error *APIError `json:"error"`
}

// WriteJSONSuccess sets Content-Type to application/json, writes statusCode, and
// encodes an APIResponse with the given data and error set to nil.
func WriteJSONSuccess(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{Data: data, Error: nil})
}

// WriteJSONError sets Content-Type to application/json, writes statusCode, and
// encodes an APIResponse with data nil and the given error code and message.
func WriteJSONError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Data:  nil,
		Error: &APIError{Code: code, Message: message},
	})
}

// StatusFor maps a domain error category to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteServiceError writes err using its domain code and message. It reports whether the
// error was unexpected (a 500), in which case the caller should log it.
func WriteServiceError(w http.ResponseWriter, err error) bool {
	var derr *domain.Error
	if errors.As(err, &derr) {
		WriteJSONError(w, StatusFor(derr), derr.Code, derr.Message)
		return false
	}
	switch status := StatusFor(err); status {
	case http.StatusBadRequest:
		WriteJSONError(w, status, ErrCodeBadRequest, err.Error())
	case http.StatusForbidden:
		WriteJSONError(w, status, ErrCodeForbidden, err.Error())
	case http.StatusNotFound:
		WriteJSONError(w, status, ErrCodeNotFound, err.Error())
	case http.StatusConflict:
		WriteJSONError(w, status, ErrCodeConflict, err.Error())
	default:
		WriteJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		return true
	}
	return false
}

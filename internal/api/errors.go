package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/portfolio-ledger/internal/errors"
	"github.com/portfolio-ledger/internal/logging"
	"github.com/portfolio-ledger/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// Error codes produced by the HTTP layer itself
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeRequestTooLong = "REQUEST_TOO_LARGE"
)

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondServiceError maps a service error to its status. Server-side failures
// are logged and their message is not exposed.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	cat := apperrors.Categorize(err)
	if cat.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("code", cat.Code).Error("Request failed")
		respondError(w, cat.StatusCode, cat.Code, "An internal error occurred", nil)
		return
	}
	respondError(w, cat.StatusCode, cat.Code, cat.Message, cat.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses a JSON request body, rejecting unknown fields.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Package errors maps service error codes onto categories and HTTP status codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/portfolio-ledger/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents malformed requests (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryAuthorization represents signer and ownership failures
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents missing records
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents state conflicts such as double initialization
	CategoryConflict ErrorCategory = "conflict"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError for API responses
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"limit": limit,
		},
	}
}

var codeCategories = map[string]struct {
	category ErrorCategory
	status   int
}{
	types.CodeInvalidPublicKey:          {CategoryUserInput, http.StatusBadRequest},
	types.CodeInvalidInstruction:        {CategoryUserInput, http.StatusBadRequest},
	types.CodeAddressMismatch:           {CategoryUserInput, http.StatusBadRequest},
	types.CodeAccountSpaceExceeded:      {CategoryUserInput, http.StatusUnprocessableEntity},
	types.CodeTipOverflow:               {CategoryUserInput, http.StatusUnprocessableEntity},
	types.CodeMissingSigner:             {CategoryAuthorization, http.StatusUnauthorized},
	types.CodeInvalidSignature:          {CategoryAuthorization, http.StatusUnauthorized},
	types.CodeStaleSignature:            {CategoryAuthorization, http.StatusUnauthorized},
	types.CodeReplayedSignature:         {CategoryConflict, http.StatusConflict},
	types.CodeUnauthorized:              {CategoryAuthorization, http.StatusForbidden},
	types.CodePortfolioNotFound:         {CategoryNotFound, http.StatusNotFound},
	types.CodeVouchRequestNotFound:      {CategoryNotFound, http.StatusNotFound},
	types.CodeAccountAlreadyInitialized: {CategoryConflict, http.StatusConflict},
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	c, ok := codeCategories[err.Code]
	if !ok {
		c.category, c.status = CategorySystem, http.StatusInternalServerError
	}
	return &CategorizedError{
		Category:   c.category,
		StatusCode: c.status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
		Cause:      err,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryDatabase, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// Package types provides common type definitions for the portfolio ledger.
package types

import (
	"errors"
	"fmt"
)

// InstructionName identifies one of the portfolio program instructions
type InstructionName string

const (
	// InstructionInitialize creates an empty portfolio at the owner's derived address
	InstructionInitialize InstructionName = "initialize"
	// InstructionCreatePortfolio replaces the portfolio biography
	InstructionCreatePortfolio InstructionName = "create_portfolio"
	// InstructionStoreLinks appends links to the portfolio
	InstructionStoreLinks InstructionName = "store_links"
	// InstructionStoreImage replaces the portfolio image URL
	InstructionStoreImage InstructionName = "store_image"
	// InstructionRequestVouch queues a vouch request
	InstructionRequestVouch InstructionName = "request_vouch"
	// InstructionApproveVouch turns a pending vouch request into a vouch
	InstructionApproveVouch InstructionName = "approve_vouch"
	// InstructionSendMessage appends a message from the signer
	InstructionSendMessage InstructionName = "send_message"
	// InstructionTip adds to the cumulative tip amount
	InstructionTip InstructionName = "tip"
)

// Error codes returned by the portfolio services
const (
	CodeInvalidPublicKey          = "INVALID_PUBLIC_KEY"
	CodeInvalidInstruction        = "INVALID_INSTRUCTION"
	CodeInvalidSignature          = "INVALID_SIGNATURE"
	CodeStaleSignature            = "STALE_SIGNATURE"
	CodeReplayedSignature         = "REPLAYED_SIGNATURE"
	CodeMissingSigner             = "MISSING_SIGNER"
	CodeUnauthorized              = "UNAUTHORIZED"
	CodePortfolioNotFound         = "PORTFOLIO_NOT_FOUND"
	CodeAccountAlreadyInitialized = "ACCOUNT_ALREADY_INITIALIZED"
	CodeAddressMismatch           = "ADDRESS_MISMATCH"
	CodeVouchRequestNotFound      = "VOUCH_REQUEST_NOT_FOUND"
	CodeAccountSpaceExceeded      = "ACCOUNT_SPACE_EXCEEDED"
	CodeTipOverflow               = "TIP_OVERFLOW"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError builds a ServiceError with a formatted message
func NewServiceError(code string, format string, args ...interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetail attaches a detail entry and returns the error for chaining
func (e *ServiceError) WithDetail(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsCode reports whether err is a ServiceError carrying the given code
func IsCode(err error, code string) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == code
}

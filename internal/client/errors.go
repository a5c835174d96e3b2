package client

import (
	"errors"
	"fmt"
)

// Error kinds every failure of this package is translated into.
var (
	// ErrSession means the token is invalid, expired, or the exam is outside
	// its allowed window.
	ErrSession = errors.New("exam session rejected")
	// ErrAlreadyAttempted means a completed attempt already exists.
	ErrAlreadyAttempted = errors.New("exam already attempted")
	// ErrTransport covers network failures, unexpected statuses, malformed
	// bodies, and any server error code not listed above.
	ErrTransport = errors.New("exam server request failed")
)

// Server error codes the client recognizes.
const (
	CodeSessionInvalid   = "SESSION_INVALID"
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeExamNotAvailable = "EXAM_NOT_AVAILABLE"
	CodeAlreadyAttempted = "ALREADY_ATTEMPTED"
)

// APIError is an error response returned by the exam server.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v: %s (%d): %s", e.kind, e.Code, e.Status, e.Message)
}

// Unwrap exposes the error kind for errors.Is.
func (e *APIError) Unwrap() error {
	return e.kind
}

// NewAPIError builds an APIError whose kind is derived from code.
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message, kind: classify(code)}
}

func classify(code string) error {
	switch code {
	case CodeSessionInvalid, CodeSessionExpired, CodeExamNotAvailable:
		return ErrSession
	case CodeAlreadyAttempted:
		return ErrAlreadyAttempted
	default:
		return ErrTransport
	}
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
}

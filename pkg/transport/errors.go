package transport

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/opac-search-client/pkg/catalog"
)

var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrNoSearch is returned by SearchGetPage while no search has succeeded
	// since the last Search call started.
	ErrNoSearch = catalog.ErrNoSearch
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassUnreachable represents a host that does not resolve.
	ErrorClassUnreachable ErrorClass = "unreachable"

	// ErrorClassDecode represents a response body that is not valid JSON.
	ErrorClassDecode ErrorClass = "decode"
)

// Error is a failed catalog request.
type Error struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// shouldRetry determines if a failure of the given class is worth retrying.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// Client errors, unknown hosts and bad bodies fail the same way again.
		return false
	}
}

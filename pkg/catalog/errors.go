package catalog

import (
	"errors"
	"fmt"
)

// ErrorCodeRedirect is the backend error code that marks a search which
// collapsed into a single record instead of a result list.
const ErrorCodeRedirect = "is_a_redirect"

var (
	// ErrRedirect matches any *RedirectError.
	ErrRedirect = errors.New("search redirected to a single record")

	// ErrNotReachable indicates the catalog host could not be reached.
	ErrNotReachable = errors.New("catalog host not reachable")

	// ErrNoSearch is returned by a transport asked for a page while it
	// holds no backend session for the current search.
	ErrNoSearch = errors.New("no active search session")
)

// RedirectError is returned by a transport when the backend skipped the
// result list and went straight to a record. ItemID is empty when the
// backend did not say which record.
type RedirectError struct {
	ItemID string
}

// Error implements the error interface.
func (e *RedirectError) Error() string {
	if e.ItemID == "" {
		return ErrRedirect.Error()
	}
	return fmt.Sprintf("%s (item %s)", ErrRedirect.Error(), e.ItemID)
}

// Is makes errors.Is(err, ErrRedirect) true for any RedirectError.
func (e *RedirectError) Is(target error) bool {
	return target == ErrRedirect
}

// ErrorCoder is implemented by transports that expose the backend's last
// error code after returning a nil page without an error.
type ErrorCoder interface {
	LastErrorCode() string
}

package search

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/Sternrassler/opac-search-client/pkg/catalog"
)

// RequestKind selects the transport entry point for a fetch.
type RequestKind int

const (
	// RequestNewSearch runs a new search with a query.
	RequestNewSearch RequestKind = iota
	// RequestPage fetches a page of the current search.
	RequestPage
)

// String returns the metric/log label of the kind.
func (k RequestKind) String() string {
	switch k {
	case RequestNewSearch:
		return "search"
	case RequestPage:
		return "page"
	default:
		return "unknown"
	}
}

// Request describes one fetch. Query is set for RequestNewSearch, Page for
// RequestPage.
type Request struct {
	Kind  RequestKind
	Query catalog.Query
	Page  int
}

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	// OutcomeSuccess carries a result page (possibly empty).
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRedirect means the backend went straight to a single record.
	OutcomeRedirect
	// OutcomeConnectivityFailure covers network trouble and backend-reported errors.
	OutcomeConnectivityFailure
	// OutcomeOtherFailure is any failure nobody anticipated.
	OutcomeOtherFailure
)

// String returns the metric/log label of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeConnectivityFailure:
		return "connectivity"
	case OutcomeOtherFailure:
		return "other"
	default:
		return "unknown"
	}
}

// FailureReason refines OutcomeConnectivityFailure.
type FailureReason string

const (
	// ReasonHostUnreachable is a DNS or host resolution failure.
	ReasonHostUnreachable FailureReason = "host_unreachable"
	// ReasonSocket is a low-level connection failure or timeout.
	ReasonSocket FailureReason = "socket"
	// ReasonBackend is a nil page with an error code from the backend.
	ReasonBackend FailureReason = "backend"
	// ReasonNoSearch means the transport holds no backend session for the
	// current search, for example because its search was cancelled.
	ReasonNoSearch FailureReason = "no_search"
)

// Outcome is the result of one fetch.
type Outcome struct {
	Kind OutcomeKind

	// Page is set for OutcomeSuccess.
	Page *catalog.ResultPage

	// ItemID is the redirect target for OutcomeRedirect; empty if unknown.
	ItemID string

	// Reason and Message are set for OutcomeConnectivityFailure. Message is
	// only filled for ReasonBackend, with the backend's error code.
	Reason  FailureReason
	Message string

	// Err is the underlying error for both failure kinds.
	Err error
}

// Classify converts what a transport call returned into an Outcome.
// coder may be nil; it is consulted only when the transport returned
// neither a page nor an error.
func Classify(page *catalog.ResultPage, err error, coder catalog.ErrorCoder) Outcome {
	if err == nil {
		if page != nil {
			return Outcome{Kind: OutcomeSuccess, Page: page}
		}
		code := ""
		if coder != nil {
			code = coder.LastErrorCode()
		}
		if code == catalog.ErrorCodeRedirect {
			return Outcome{Kind: OutcomeRedirect}
		}
		return Outcome{
			Kind:    OutcomeConnectivityFailure,
			Reason:  ReasonBackend,
			Message: code,
		}
	}

	var redirect *catalog.RedirectError
	if errors.As(err, &redirect) {
		return Outcome{Kind: OutcomeRedirect, ItemID: redirect.ItemID}
	}
	if errors.Is(err, catalog.ErrRedirect) {
		return Outcome{Kind: OutcomeRedirect}
	}

	if errors.Is(err, catalog.ErrNoSearch) {
		return Outcome{Kind: OutcomeConnectivityFailure, Reason: ReasonNoSearch, Err: err}
	}
	if isHostUnreachable(err) {
		return Outcome{Kind: OutcomeConnectivityFailure, Reason: ReasonHostUnreachable, Err: err}
	}
	if isSocketFailure(err) {
		return Outcome{Kind: OutcomeConnectivityFailure, Reason: ReasonSocket, Err: err}
	}

	return Outcome{Kind: OutcomeOtherFailure, Err: err}
}

func isHostUnreachable(err error) bool {
	if errors.Is(err, catalog.ErrNotReachable) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isSocketFailure(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

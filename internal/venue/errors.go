package venue

import (
	"errors"
	"fmt"

	"github.com/rickgao/book-aggregator/internal/model"
)

// Errors
var (
	// ErrCorrelationTimeout indicates no response carrying the request's
	// correlation id arrived within the polling budget. The connector
	// remains usable; a late response is left orphaned in the pending
	// table.
	ErrCorrelationTimeout = errors.New("no correlated response within polling budget")

	// ErrSessionStopped indicates the connector's liveness flag was
	// cleared while a request was outstanding.
	ErrSessionStopped = errors.New("session stopped")
)

// DecodeError reports a malformed or unexpectedly shaped payload. On the
// direct request path it is returned to the caller; on the unsolicited
// stream path it is logged and the frame skipped.
type DecodeError struct {
	Venue model.Venue
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode payload: %v", e.Venue, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

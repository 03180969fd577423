package journalwatch

import (
	"errors"

	"github.com/jpalmerr/journalwatch/internal/retry"
)

// Failure types returned by client calls. Use errors.As to inspect them.
type (
	// NetworkFailure reports that no HTTP response was received.
	NetworkFailure = retry.NetworkFailure

	// TransientFailure reports a 5xx response, or a 204 from the event
	// ingress, that was still failing when retries ran out.
	TransientFailure = retry.TransientFailure

	// TerminalFailure reports a 4xx response or a malformed body.
	TerminalFailure = retry.TerminalFailure
)

var (
	// ErrTimeoutExceeded is matched by failures returned after the retry
	// budget ran out.
	ErrTimeoutExceeded = retry.ErrTimeoutExceeded

	// ErrFindTimeout is returned by [FindEvent] when no matching event was
	// seen before the timeout.
	ErrFindTimeout = errors.New("no matching event found before timeout")

	// ErrMissingWorkspace is returned by registration calls when the client
	// has no consumer org, project and workspace configured.
	ErrMissingWorkspace = errors.New("consumer org id, project id and workspace id are required")

	// ErrMissingProvider is returned when neither the call nor the client
	// defaults name an event provider.
	ErrMissingProvider = errors.New("provider id is required")
)

package retry

import (
	"errors"
	"fmt"
)

// ErrTimeoutExceeded is matched (via errors.Is) by failures returned after
// the retry budget of a [Policy] ran out.
var ErrTimeoutExceeded = errors.New("retry budget exhausted")

// NetworkFailure reports that no HTTP response was received.
type NetworkFailure struct {
	// Err is the transport error of the last attempt.
	Err error

	// Attempts is the number of requests issued.
	Attempts int

	exhausted bool
}

func (e *NetworkFailure) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("network failure after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkFailure) Unwrap() []error {
	if e.exhausted {
		return []error{e.Err, ErrTimeoutExceeded}
	}
	return []error{e.Err}
}

// TransientFailure reports a response that may succeed if repeated, such as
// a 5xx status.
type TransientFailure struct {
	// StatusCode is the HTTP status code of the last response.
	StatusCode int

	// Status is the HTTP status line of the last response, e.g. "504 Gateway Timeout".
	Status string

	// Attempts is the number of requests issued.
	Attempts int

	exhausted bool
}

func (e *TransientFailure) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s (after %d attempts)", e.Status, e.Attempts)
	}
	return e.Status
}

func (e *TransientFailure) Unwrap() error {
	if e.exhausted {
		return ErrTimeoutExceeded
	}
	return nil
}

// TerminalFailure reports a response that will not succeed if repeated: a
// 4xx status or a body that cannot be decoded.
type TerminalFailure struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Status is the HTTP status line of the response.
	Status string

	// Err is the decoding error, if the failure was caused by a malformed body.
	Err error
}

func (e *TerminalFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Status, e.Err)
	}
	return e.Status
}

func (e *TerminalFailure) Unwrap() error {
	return e.Err
}

// InvalidRequest reports a request that could not be built. [Do] returns it
// without retrying.
func InvalidRequest(err error) *TerminalFailure {
	return &TerminalFailure{Status: "invalid request", Err: err}
}

// Kind is a coarse classification of a failure used in logs and metrics.
type Kind string

// Failure kinds.
const (
	KindNetwork   Kind = "network"
	KindTransient Kind = "transient"
	KindTerminal  Kind = "terminal"
	KindTimeout   Kind = "timeout"
	KindUnknown   Kind = "unknown"
)

// Classify reports the [Kind] of err. Exhausted retry budgets are reported
// as [KindTimeout] regardless of the last failure.
func Classify(err error) Kind {
	var (
		network   *NetworkFailure
		transient *TransientFailure
		terminal  *TerminalFailure
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeoutExceeded):
		return KindTimeout
	case errors.As(err, &network):
		return KindNetwork
	case errors.As(err, &transient):
		return KindTransient
	case errors.As(err, &terminal):
		return KindTerminal
	default:
		return KindUnknown
	}
}

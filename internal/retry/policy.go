// Package retry executes a single HTTP operation under a bounded-time,
// exponentially backing-off retry policy.
//
// The engine never decides by itself whether a failure is worth repeating:
// that is the job of the policy's [Classifier]. Anything the classifier
// rejects is handed back to the caller untouched.
package retry

import (
	"net/http"
	"time"
)

// Fallback constants used when [Options] leaves a field unset.
const (
	DefaultMaxElapsed   = 60 * time.Second
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMultiplier   = 2.0
)

// Classifier reports whether the outcome of an attempt should be retried.
// resp is nil when err is non-nil.
type Classifier func(resp *http.Response, err error) bool

// Policy governs one logical operation. Policies are plain values with no
// state; the attempt clock starts when [Do] is called.
//
// The zero Policy performs a single attempt and never retries.
type Policy struct {
	// MaxElapsed bounds the total time spent on the operation. No further
	// attempt is scheduled once the next wait would carry the elapsed time
	// past this limit. Zero or negative disables retries.
	MaxElapsed time.Duration

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// Multiplier grows the wait after every attempt. There is no ceiling on
	// the wait itself; MaxElapsed is the only cap.
	Multiplier float64

	// Retryable classifies each outcome. Nil means [DefaultClassifier].
	Retryable Classifier

	// Notify, if set, is called before every wait with the attempt number
	// that failed, the upcoming wait and the failure.
	Notify func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy returns the policy used by registration calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxElapsed:   DefaultMaxElapsed,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
		Retryable:    DefaultClassifier,
	}
}

// Disabled returns a pass-through policy: one attempt, whose outcome is
// returned as-is.
func Disabled() Policy {
	return Policy{}
}

// Enabled reports whether p may issue more than one attempt.
func (p Policy) Enabled() bool {
	return p.MaxElapsed > 0
}

// DefaultClassifier retries transport errors and 5xx responses. Client
// errors and successful responses are final.
func DefaultClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode >= 500
}

// SendClassifier is [DefaultClassifier] plus HTTP 204. The ingress answers
// 204 when it accepted an event that no registration was interested in yet,
// which means the event was dropped and must be sent again.
func SendClassifier(resp *http.Response, err error) bool {
	if DefaultClassifier(resp, err) {
		return true
	}
	return resp != nil && resp.StatusCode == http.StatusNoContent
}

// AllErrorsClassifier retries every outcome that is not a 2xx response.
func AllErrorsClassifier(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}
	return resp.StatusCode < 200 || resp.StatusCode > 299
}

// Options is the caller-facing retry configuration. The zero value selects
// the fallback constants.
type Options struct {
	// MaxElapsed bounds the total time spent retrying. Defaults to
	// [DefaultMaxElapsed].
	MaxElapsed time.Duration

	// InitialDelay is the first wait. Defaults to [DefaultInitialDelay].
	InitialDelay time.Duration

	// RetryAllErrors additionally retries every non-2xx response.
	RetryAllErrors bool

	// Disabled turns retries off entirely.
	Disabled bool
}

// Policy builds a [Policy] from o, classifying outcomes with base.
func (o Options) Policy(base Classifier) Policy {
	if o.Disabled {
		return Disabled()
	}
	if base == nil {
		base = DefaultClassifier
	}

	p := Policy{
		MaxElapsed:   o.MaxElapsed,
		InitialDelay: o.InitialDelay,
		Multiplier:   DefaultMultiplier,
		Retryable:    base,
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = DefaultMaxElapsed
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if o.RetryAllErrors {
		p.Retryable = func(resp *http.Response, err error) bool {
			return base(resp, err) || AllErrorsClassifier(resp, err)
		}
	}
	return p
}

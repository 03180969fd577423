package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxDrain bounds how much of a discarded response body is read so the
// connection can be reused.
const maxDrain = 64 << 10

// Attempt issues one request. Implementations must return a non-nil
// response whenever err is nil.
type Attempt func(ctx context.Context) (*http.Response, error)

// Do runs attempt until its outcome is not retryable under p, or until the
// retry budget is spent.
//
// An outcome the classifier does not retry is returned unchanged, even a
// non-2xx response: deciding what counts as success is up to the caller.
// A [*TerminalFailure] from attempt is returned as is; any other error is
// returned as a [*NetworkFailure].
//
// When the budget runs out, the last response body is closed and Do
// returns a [*TransientFailure] (last attempt got a response) or a
// [*NetworkFailure] (it did not). Both match [ErrTimeoutExceeded] once
// more than one attempt was made.
//
// Cancelling ctx interrupts a pending wait but never an in-flight attempt;
// the returned error then joins ctx.Err() with the last failure.
func Do(ctx context.Context, p Policy, attempt Attempt) (*http.Response, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultClassifier
	}

	b := p.backOff()

	for n := 1; ; n++ {
		resp, err := attempt(ctx)

		var terminal *TerminalFailure
		if errors.As(err, &terminal) {
			return nil, err
		}

		if b == nil || !retryable(resp, err) || (err != nil && ctx.Err() != nil) {
			if err != nil {
				return nil, &NetworkFailure{Err: err, Attempts: n}
			}
			return resp, nil
		}

		failure := newFailure(resp, err, n)
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if n > 1 {
				exhaust(failure)
			}
			return nil, failure
		}

		if p.Notify != nil {
			p.Notify(n, wait, failure)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ctx.Err(), failure)
		case <-timer.C:
		}
	}
}

// backOff returns the wait schedule for p, or nil if p never retries.
func (p Policy) backOff() *backoff.ExponentialBackOff {
	if !p.Enabled() {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultInitialDelay
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = DefaultMultiplier
	}
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()

	return b
}

// newFailure records the outcome of a failed attempt and releases its body.
func newFailure(resp *http.Response, err error, attempts int) error {
	if err != nil || resp == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return &NetworkFailure{Err: err, Attempts: attempts}
	}

	f := &TransientFailure{
		StatusCode: resp.StatusCode,
		Status:     StatusLine(resp),
		Attempts:   attempts,
	}
	Discard(resp)
	return f
}

func exhaust(err error) error {
	switch f := err.(type) {
	case *NetworkFailure:
		f.exhausted = true
	case *TransientFailure:
		f.exhausted = true
	}
	return err
}

// StatusLine returns resp.Status, or a status line built from the code when
// the response was constructed without one.
func StatusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// Discard drains a bounded amount of the body and closes it.
func Discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrain)
	_ = resp.Body.Close()
}

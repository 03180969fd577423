package journalwatch

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type findResult struct {
	event Event
	err   error
}

// FindEvent watches the journal at journalURL until an event satisfies
// match, and returns it.
//
// The timeout is checked at the start of every poll, so it is observed at
// the granularity of the poll interval. FindEvent fails with
// [ErrFindTimeout] once a poll starts after the deadline, with the error
// of the first failed poll, or with ctx.Err() if ctx is done first. In
// every case the watcher is stopped, and FindEvent returns only after it
// has fully stopped.
//
// opts configure the underlying watcher; handlers given there run as well.
func FindEvent(ctx context.Context, c *Client, journalURL string, timeout time.Duration, match func(Event) bool, opts ...WatchOption) (Event, error) {
	deadline := time.Now().Add(timeout)

	var (
		once    sync.Once
		result  = make(chan findResult, 1)
		watcher atomic.Pointer[Watcher]
	)
	settle := func(r findResult) {
		once.Do(func() {
			result <- r
			if w := watcher.Load(); w != nil {
				w.StopAsync()
			}
		})
	}

	opts = append(slices.Clone(opts),
		WithPollHandler(func() {
			switch {
			case ctx.Err() != nil:
				settle(findResult{err: ctx.Err()})
			case time.Now().After(deadline):
				settle(findResult{err: ErrFindTimeout})
			}
		}),
		WithEventHandler(func(ev Event) {
			if match(ev) {
				settle(findResult{event: ev})
			}
		}),
		WithErrorHandler(func(err error) {
			settle(findResult{err: err})
		}),
	)

	w, err := c.Watch(journalURL, opts...)
	if err != nil {
		return Event{}, err
	}
	watcher.Store(w)

	var r findResult
	select {
	case r = <-result:
	case <-ctx.Done():
		settle(findResult{err: ctx.Err()})
		r = <-result
	}

	// wait for the in-flight poll regardless of ctx
	_ = w.Stop(context.WithoutCancel(ctx))

	return r.event, r.err
}

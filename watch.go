package journalwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jpalmerr/journalwatch/internal/poller"
)

// DefaultInterval is the delay between polls of an empty journal when
// neither [WithInterval] nor a Retry-After hint applies, and the delay
// after a failed poll when no interval is set.
const DefaultInterval = poller.DefaultInterval

// State is the lifecycle state of a [Watcher].
type State = poller.State

// Watcher states.
const (
	StateIdle     = poller.StateIdle
	StatePolling  = poller.StatePolling
	StateStopping = poller.StateStopping
	StateStopped  = poller.StateStopped
)

// Cursor is a watcher's read position. Current resets to Origin after every
// failed poll.
type Cursor = poller.Cursor

type watchConfig struct {
	restart  string
	latest   bool
	interval time.Duration
	onEvent  []func(Event)
	onError  []func(error)
	onPoll   []func()
}

// WatchOption configures a [Watcher].
type WatchOption func(*watchConfig) error

// WithRestart starts reading at u, typically a next link saved from an
// earlier run, instead of the journal URL. Recovery after a failure still
// goes back to the journal URL.
//
// Returns an error if u is not an absolute http(s) URL.
func WithRestart(u string) WatchOption {
	return func(cfg *watchConfig) error {
		if u == "" {
			return nil
		}
		if err := validateBaseURL(u); err != nil {
			return fmt.Errorf("restart url: %w", err)
		}
		cfg.restart = u
		return nil
	}
}

// WithLatest starts at the newest events instead of the start of the
// retention window.
func WithLatest(latest bool) WatchOption {
	return func(cfg *watchConfig) error {
		cfg.latest = latest
		return nil
	}
}

// WithInterval fixes the delay after an empty page and after a failure,
// overriding Retry-After hints. Pages with events are always followed by
// an immediate poll. Zero restores the default behaviour.
//
// Returns an error if d is negative.
func WithInterval(d time.Duration) WatchOption {
	return func(cfg *watchConfig) error {
		if d < 0 {
			return errors.New("interval must not be negative")
		}
		cfg.interval = d
		return nil
	}
}

// WithEventHandler registers a function called for every event, in
// journal order.
//
// Handlers run synchronously on the watcher's goroutine and delay the next
// poll until they return. Panics are recovered and logged.
//
// Multiple handlers run in registration order. Nil handlers are ignored.
func WithEventHandler(fn func(Event)) WatchOption {
	return func(cfg *watchConfig) error {
		if fn != nil {
			cfg.onEvent = append(cfg.onEvent, fn)
		}
		return nil
	}
}

// WithErrorHandler registers a function called once for every failed poll.
// The watcher keeps running and restarts from the journal URL.
func WithErrorHandler(fn func(error)) WatchOption {
	return func(cfg *watchConfig) error {
		if fn != nil {
			cfg.onError = append(cfg.onError, fn)
		}
		return nil
	}
}

// WithPollHandler registers a function called at the start of every poll.
func WithPollHandler(fn func()) WatchOption {
	return func(cfg *watchConfig) error {
		if fn != nil {
			cfg.onPoll = append(cfg.onPoll, fn)
		}
		return nil
	}
}

// Watcher polls a journal until stopped. It is created running by
// [Client.Watch].
type Watcher struct {
	p *poller.Poller
}

// Watch starts polling the journal at journalURL.
//
// Returns an error if journalURL is not an absolute http(s) URL or if any
// option is invalid.
func (c *Client) Watch(journalURL string, opts ...WatchOption) (*Watcher, error) {
	if err := validateBaseURL(journalURL); err != nil {
		return nil, fmt.Errorf("journal url: %w", err)
	}

	cfg := &watchConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	origin := journalURL
	if cfg.latest {
		var err error
		if origin, err = appendQuery(journalURL, map[string]string{"latest": "true"}); err != nil {
			return nil, err
		}
	}

	p := poller.New(
		poller.FetcherFunc(c.fetchRaw),
		poller.Config{
			Origin:   origin,
			Restart:  cfg.restart,
			Interval: cfg.interval,
		},
		cfg.handlers(),
		c.logger.With("journal", redact(journalURL)),
		c.recorder,
	)

	return &Watcher{p: p}, nil
}

func (cfg *watchConfig) handlers() poller.Handlers {
	var h poller.Handlers

	if len(cfg.onPoll) > 0 {
		fns := cfg.onPoll
		h.OnPoll = func() {
			for _, fn := range fns {
				fn()
			}
		}
	}
	if len(cfg.onEvent) > 0 {
		fns := cfg.onEvent
		h.OnEvent = func(raw json.RawMessage) {
			ev := decodeEvent(raw)
			for _, fn := range fns {
				fn(ev)
			}
		}
	}
	if len(cfg.onError) > 0 {
		fns := cfg.onError
		h.OnError = func(err error) {
			for _, fn := range fns {
				fn(err)
			}
		}
	}

	return h
}

// Stop stops the watcher and waits until it has stopped. A poll in flight
// is not interrupted: it completes and its events are delivered first.
// ctx bounds the wait only.
//
// Stop is idempotent and safe for concurrent use. It must not be called
// from a handler; use [Watcher.StopAsync] there.
func (w *Watcher) Stop(ctx context.Context) error {
	return w.p.Stop(ctx)
}

// StopAsync requests a stop without waiting. It returns the channel
// returned by [Watcher.Done].
func (w *Watcher) StopAsync() <-chan struct{} {
	return w.p.StopAsync()
}

// Done returns a channel closed once the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.p.Done()
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	return w.p.State()
}

// Cursor returns the current read position.
func (w *Watcher) Cursor() Cursor {
	return w.p.Cursor()
}

// redact drops the query of a journal URL for logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

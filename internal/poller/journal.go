package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jpalmerr/journalwatch/internal/header"
	"github.com/jpalmerr/journalwatch/internal/retry"
	"github.com/jpalmerr/journalwatch/internal/telemetry"
)

// DefaultInterval is the idle delay used when a page is empty and neither a
// fixed interval nor a usable Retry-After hint is available.
const DefaultInterval = 2 * time.Second

// Page is one decoded journal response.
type Page struct {
	// Events holds the raw events in response order.
	Events []json.RawMessage

	// Next is the absolute URL of the next page, or empty if the response
	// carried no usable rel="next" link.
	Next string

	// RetryAfter is the server's wait hint. Only meaningful when
	// HasRetryAfter is true; it may be negative for a date in the past.
	RetryAfter    time.Duration
	HasRetryAfter bool
}

// Fetcher fetches a single journal page. Implementations must not retry:
// the poller is the retry loop.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// FetcherFunc adapts a function to [Fetcher].
type FetcherFunc func(ctx context.Context, url string) (Page, error)

// FetchPage calls f.
func (f FetcherFunc) FetchPage(ctx context.Context, url string) (Page, error) {
	return f(ctx, url)
}

// Cursor is where the poller reads from.
type Cursor struct {
	// Origin is where every recovery restarts from. It never changes.
	Origin string

	// Current is the URL of the next fetch.
	Current string
}

// State is the lifecycle state of a [Poller].
type State int

const (
	// StateIdle means the poller is waiting for the next cycle.
	StateIdle State = iota
	// StatePolling means a page fetch is in flight.
	StatePolling
	// StateStopping means a stop was requested during a fetch.
	StateStopping
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handlers receive notifications from the poll loop. All handlers run on
// the loop goroutine, one at a time. Nil handlers are skipped.
//
// A handler that needs to stop the poller must use [Poller.StopAsync]:
// [Poller.Stop] waits for the loop, which is blocked on the handler.
type Handlers struct {
	OnPoll  func()
	OnEvent func(json.RawMessage)
	OnError func(error)
}

// Config configures a [Poller].
type Config struct {
	// Origin is the journal URL every recovery restarts from.
	Origin string

	// Restart, if set, is fetched first instead of Origin.
	Restart string

	// Interval, if positive, is used as the delay after every empty page
	// and after every failure, overriding Retry-After hints.
	Interval time.Duration

	// DefaultInterval replaces [DefaultInterval] when positive.
	DefaultInterval time.Duration
}

// Poller reads a journal in a loop, one page at a time, until stopped.
//
// All methods are safe for concurrent use.
type Poller struct {
	fetcher  Fetcher
	handlers Handlers
	interval time.Duration
	idle     time.Duration
	logger   *slog.Logger
	recorder *telemetry.Recorder

	mu            sync.Mutex
	state         State
	cursor        Cursor
	stopRequested bool

	stopping chan struct{} // closed when a stop is requested
	done     chan struct{} // closed when the loop has exited
}

// New creates a [Poller] and starts it. The first fetch happens
// immediately on a background goroutine.
//
// logger may be nil, in which case slog.Default() is used. recorder may be
// nil.
func New(f Fetcher, cfg Config, h Handlers, logger *slog.Logger, recorder *telemetry.Recorder) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Poller{
		fetcher:  f,
		handlers: h,
		interval: cfg.Interval,
		idle:     cfg.DefaultInterval,
		logger:   logger,
		recorder: recorder,
		state:    StateIdle,
		cursor:   Cursor{Origin: cfg.Origin, Current: cfg.Origin},
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if p.idle <= 0 {
		p.idle = DefaultInterval
	}
	if cfg.Restart != "" {
		p.cursor.Current = cfg.Restart
	}

	go p.run()

	return p
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cursor returns a snapshot of the read position.
func (p *Poller) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Done returns a channel that is closed once the poller has stopped and no
// further handler will be called.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// StopAsync requests a stop and returns without waiting. It returns the
// same channel as [Poller.Done].
//
// If the poller is idle it moves to [StateStopped] before StopAsync
// returns and the pending cycle is cancelled. If a fetch is in flight it
// moves to [StateStopping]; the cycle finishes, its events are delivered,
// and then the loop exits.
func (p *Poller) StopAsync() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.stopRequested {
		p.stopRequested = true
		close(p.stopping)

		switch p.state {
		case StateIdle:
			p.state = StateStopped
		case StatePolling:
			p.state = StateStopping
		}
	}

	return p.done
}

// Stop requests a stop and waits until the poller has stopped. ctx bounds
// the wait only, never the in-flight fetch.
//
// Stop is idempotent; concurrent callers all return once the same
// completion is observed.
func (p *Poller) Stop(ctx context.Context) error {
	done := p.StopAsync()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.finish()

	var delay time.Duration
	for {
		if !p.sleep(delay) {
			return
		}

		p.mu.Lock()
		if p.stopRequested {
			p.mu.Unlock()
			return
		}
		p.state = StatePolling
		url := p.cursor.Current
		p.mu.Unlock()

		delay = p.cycle(url)

		p.mu.Lock()
		if p.stopRequested {
			p.mu.Unlock()
			return
		}
		p.state = StateIdle
		p.mu.Unlock()
	}
}

func (p *Poller) finish() {
	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()

	close(p.done)
}

// sleep waits for d, returning false if a stop was requested first.
func (p *Poller) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-p.stopping:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-p.stopping:
		return false
	}
}

// cycle runs one poll cycle against url and returns the delay before the
// next one.
func (p *Poller) cycle(url string) time.Duration {
	if h := p.handlers.OnPoll; h != nil {
		p.safeCall("poll", h)
	}

	p.mu.Lock()
	stop := p.stopRequested
	p.mu.Unlock()
	if stop {
		// a poll handler asked to stop; skip the fetch
		return 0
	}

	ctx, span := p.recorder.StartSpan(
		context.Background(),
		"journal.poll",
		attribute.String("journal.url", url),
	)
	defer span.End()

	p.recorder.Poll(ctx)
	p.logger.Debug("polling journal", "url", url)

	page, err := p.fetcher.FetchPage(ctx, url)
	if err != nil {
		kind := retry.Classify(err)
		p.recorder.Error(ctx, span, string(kind), err)
		p.logger.Warn("journal fetch failed, restarting from origin",
			"url", url,
			"kind", kind,
			"error", err,
		)

		if h := p.handlers.OnError; h != nil {
			p.safeCall("error", func() { h(err) })
		}

		p.mu.Lock()
		p.cursor.Current = p.cursor.Origin
		p.mu.Unlock()

		return p.failureDelay()
	}

	if page.Next != "" {
		p.mu.Lock()
		p.cursor.Current = page.Next
		p.mu.Unlock()
	}

	span.SetAttributes(attribute.Int("journal.events", len(page.Events)))
	p.recorder.Events(ctx, len(page.Events))

	if h := p.handlers.OnEvent; h != nil {
		for _, ev := range page.Events {
			p.safeCall("event", func() { h(ev) })
		}
	}

	delay := p.pageDelay(page)
	p.logger.Debug("journal page processed",
		"events", len(page.Events),
		"next", page.Next,
		"delay", delay,
	)
	return delay
}

// pageDelay is the delay after a successful fetch: zero when the page had
// events, otherwise the fixed interval, the Retry-After hint, or the idle
// default, in that order.
func (p *Poller) pageDelay(page Page) time.Duration {
	if len(page.Events) > 0 {
		return 0
	}
	if p.interval > 0 {
		return p.interval
	}
	if page.HasRetryAfter {
		if d := header.Clamp(page.RetryAfter); d > 0 {
			return d
		}
	}
	return p.idle
}

func (p *Poller) failureDelay() time.Duration {
	if p.interval > 0 {
		return p.interval
	}
	return p.idle
}

// safeCall invokes a handler with panic recovery. A panicking handler is
// logged with a correlation ID; the loop keeps running.
func (p *Poller) safeCall(hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			p.logger.Error("handler panic",
				"hook", hook,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)
		}
	}()
	fn()
}

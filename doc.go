// Package journalwatch is a client for HTTP event journals: append-only
// event logs that are read page by page by following rel="next" links.
//
// A [Client] reads journal pages, publishes events to the event ingress,
// and manages the providers and registrations that back a journal. A
// [Watcher] polls a journal in the background and hands every event to
// the caller, in order, until stopped.
//
// # Quick Start
//
// Watch a journal until SIGINT/SIGTERM:
//
//	client, _ := journalwatch.New(orgID, accessToken)
//	defer client.Close()
//
//	w, _ := client.Watch(journalURL,
//	    journalwatch.WithEventHandler(func(ev journalwatch.Event) {
//	        fmt.Println(ev.ID, ev.Code)
//	    }),
//	    journalwatch.WithErrorHandler(func(err error) {
//	        slog.Warn("poll failed", "error", err)
//	    }),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//	<-ctx.Done()
//
//	_ = w.Stop(context.Background())
//
// # Polling
//
// A watcher fetches the next page as soon as a page with events has been
// delivered. After an empty page it waits for the interval set with
// [WithInterval], else the server's Retry-After hint (capped at a minute),
// else [DefaultInterval].
//
// A failed poll is reported once to the error handler and the watcher
// restarts from the journal URL it was created with. Events already
// delivered may be delivered again; handlers should be idempotent.
//
// Handlers run on the watcher's goroutine. To stop from inside a handler
// use [Watcher.StopAsync]; [Watcher.Stop] would wait for itself.
//
// # Finding an Event
//
// [FindEvent] watches until a predicate matches, the timeout passes or a
// poll fails:
//
//	ev, err := journalwatch.FindEvent(ctx, client, journalURL, time.Minute,
//	    func(ev journalwatch.Event) bool { return ev.Code == "order.shipped" },
//	)
//
// # Errors
//
// Calls fail with one of three types, distinguishable with errors.As:
//
//   - [*NetworkFailure]: no HTTP response was received
//   - [*TransientFailure]: a 5xx response, or 204 from the ingress
//   - [*TerminalFailure]: any other unexpected status, or a malformed body
//
// Management and send calls retry network and transient failures with
// exponential backoff (see [RetryOptions]). When the budget runs out the
// error also matches [ErrTimeoutExceeded]. Journal reads are not retried.
//
// # Architecture
//
// The internal packages are not part of the public API:
//
//   - internal/header: Link and Retry-After parsing
//   - internal/retry: retry engine and failure classification
//   - internal/poller: HTTP client and the journal poll loop
//   - internal/telemetry: OpenTelemetry spans, counters and HTTP instrumentation
//   - internal/filter: CEL event filters used by the CLI
//   - internal/store, internal/server: the CLI's HTTP/SSE event relay
//   - internal/journaltest: in-memory journal for tests and demos
package journalwatch

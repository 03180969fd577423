// Package poller implements the journal polling loop for journalwatch.
//
// This package is internal to journalwatch. It owns the read cursor, fetches
// one page at a time through a [Fetcher], dispatches events to [Handlers]
// in response order, and restarts from the origin URL whenever a fetch
// fails.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with timeout and size limits
//   - [Poller]: the self-starting poll loop with cooperative stop
//   - [Page]: one decoded journal response
//   - [Cursor]: origin and current read position
//
// Users of the journalwatch library should not need to interact with this
// package directly. Configuration is done through the main journalwatch package.
package poller

// Package server relays journal events to HTTP clients.
//
// A relay lets browsers and other local tools follow a journal without
// holding its credentials:
//
//   - REST API: JSON endpoint at "/api/events" for the retained events
//   - Server-Sent Events: Live events at "/api/sse", resumable via Last-Event-ID
//   - Health: Watcher state and cursor at "/health"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server

// Package store retains relayed journal events and fans them out to
// subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining retention and subscription operations
//   - [MemoryStore]: Fixed-size in-memory ring implementing Store
//   - [Record]: One relayed event with its relay sequence number
//
// Retention is bounded and in-memory only. A restarted relay starts empty
// and resumes from whatever cursor its watcher is given.
package store

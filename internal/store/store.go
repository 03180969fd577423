package store

import (
	"encoding/json"
	"time"
)

// Record is one relayed journal event.
//
// Seq is assigned by the store on [Store.Append] and increases by one per
// record, so subscribers can detect gaps left by dropped updates.
type Record struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id,omitempty"`
	Code       string          `json:"code,omitempty"`
	Payload    json.RawMessage `json:"event"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Store keeps the most recent relayed events and fans new ones out to
// subscribers.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Append assigns the next sequence number to r, stores it and notifies
	// all subscribers. The stored record is returned.
	Append(r Record) Record

	// Recent returns the retained records, oldest first.
	// The returned slice is a snapshot; modifications do not affect the store.
	Recent() []Record

	// Since returns the retained records with Seq greater than seq, oldest
	// first.
	Since(seq int64) []Record

	// Subscribe returns a channel that receives appended records.
	// The returned channel has a buffer; slow consumers may miss records.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Record

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Record)
}

package store

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of records a [MemoryStore] retains when
// created with a non-positive capacity.
const DefaultCapacity = 100

// subscriberBuffer is the channel buffer given to each subscriber.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore retains the last capacity records in a ring. Subscribers
// receive records via buffered channels; sends are non-blocking, so a
// subscriber whose buffer is full misses records rather than blocking the
// watcher that appends them.
type MemoryStore struct {
	mu      sync.RWMutex
	ring    []Record
	next    int // ring index the next record is written to
	full    bool
	lastSeq int64

	subMu       sync.RWMutex
	subscribers map[chan Record]struct{}

	now func() time.Time
}

// NewMemoryStore creates a [MemoryStore] retaining up to capacity records.
// capacity <= 0 means [DefaultCapacity].
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		ring:        make([]Record, capacity),
		subscribers: make(map[chan Record]struct{}),
		now:         time.Now,
	}
}

// Append implements [Store]. A zero ReceivedAt is set to the current time.
func (m *MemoryStore) Append(r Record) Record {
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = m.now()
	}

	m.mu.Lock()
	m.lastSeq++
	r.Seq = m.lastSeq
	m.ring[m.next] = r
	m.next = (m.next + 1) % len(m.ring)
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	m.notifySubscribers(r)
	return r
}

// Recent implements [Store].
func (m *MemoryStore) Recent() []Record {
	return m.Since(0)
}

// Since implements [Store].
func (m *MemoryStore) Since(seq int64) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ordered []Record
	if m.full {
		ordered = append(ordered, m.ring[m.next:]...)
	}
	ordered = append(ordered, m.ring[:m.next]...)

	out := make([]Record, 0, len(ordered))
	for _, r := range ordered {
		if r.Seq > seq {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of retained records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return len(m.ring)
	}
	return m.next
}

// Subscribe implements [Store].
func (m *MemoryStore) Subscribe() <-chan Record {
	ch := make(chan Record, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe implements [Store].
func (m *MemoryStore) Unsubscribe(ch <-chan Record) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(r Record) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- r:
		default:
			// subscriber is slow, drop the record
		}
	}
}

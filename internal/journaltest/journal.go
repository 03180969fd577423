// Package journaltest provides an in-memory journal and event ingress for
// tests and local demos.
//
// The journal is served at /journal. Pages are linked with
// Link: </journal?since=N>; rel="next". When a reader has caught up the
// journal answers 204 with a self link and a Retry-After hint. Events are
// accepted at POST /api/events in the ingress wire format.
package journaltest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Paths served by [Journal].
const (
	JournalPath = "/journal"
	IngressPath = "/api/events"
)

// DefaultPageSize is the number of events per page when the request does
// not carry a limit.
const DefaultPageSize = 2

// Request is a request observed by a [Journal].
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	At     time.Time
}

// Journal is a scripted journal and ingress. The zero value is not usable;
// call [New].
type Journal struct {
	// PageSize limits the events per page. Defaults to DefaultPageSize.
	PageSize int

	// RetryAfter is the Retry-After header value sent with 204 responses.
	// Empty sends no header.
	RetryAfter string

	mu        sync.Mutex
	events    []json.RawMessage
	failures  []int // 0 means drop the connection
	sendCodes []int
	requests  []Request
}

// New returns an empty journal with a one second Retry-After hint.
func New() *Journal {
	return &Journal{
		PageSize:   DefaultPageSize,
		RetryAfter: "1",
	}
}

// Append adds an event to the journal and returns its id.
func (j *Journal) Append(code string, payload any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("journaltest: cannot marshal payload: %v", err))
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appendLocked(code, raw)
}

func (j *Journal) appendLocked(code string, payload json.RawMessage) string {
	id := uuid.NewString()

	ev, _ := json.Marshal(struct {
		ID        string          `json:"id"`
		Position  string          `json:"position"`
		EventCode string          `json:"event_code"`
		Event     json.RawMessage `json:"event"`
	}{
		ID:        id,
		Position:  strconv.Itoa(len(j.events)),
		EventCode: code,
		Event:     payload,
	})

	j.events = append(j.events, ev)
	return id
}

// Len returns the number of events in the journal.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.events)
}

// FailNext makes the next journal read answer with status.
func (j *Journal) FailNext(status int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failures = append(j.failures, status)
}

// FailNextNetwork makes the next journal read fail without a usable
// response: the connection is closed after a malformed status line.
func (j *Journal) FailNextNetwork() {
	j.FailNext(0)
}

// ScriptSend queues statuses for the next ingress requests. A request that
// consumes a non-200 status is not recorded in the journal.
func (j *Journal) ScriptSend(statuses ...int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sendCodes = append(j.sendCodes, statuses...)
}

// Requests returns the requests observed so far.
func (j *Journal) Requests() []Request {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Request(nil), j.requests...)
}

// ServeHTTP implements http.Handler.
func (j *Journal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}

	j.mu.Lock()
	j.requests = append(j.requests, Request{
		Method: r.Method,
		URL:    r.URL.String(),
		Header: r.Header.Clone(),
		Body:   body,
		At:     time.Now(),
	})
	j.mu.Unlock()

	switch {
	case r.URL.Path == JournalPath && r.Method == http.MethodGet:
		j.serveJournal(w, r)
	case r.URL.Path == IngressPath && r.Method == http.MethodPost:
		j.serveIngress(w, body)
	default:
		http.NotFound(w, r)
	}
}

func (j *Journal) serveJournal(w http.ResponseWriter, r *http.Request) {
	j.mu.Lock()
	if len(j.failures) > 0 {
		status := j.failures[0]
		j.failures = j.failures[1:]
		j.mu.Unlock()

		if status == 0 {
			dropConnection(w)
			return
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer j.mu.Unlock()

	q := r.URL.Query()

	since := 0
	if s := q.Get("since"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	} else if q.Get("latest") == "true" {
		since = len(j.events)
	}
	if since > len(j.events) {
		since = len(j.events)
	}

	size := j.PageSize
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			size = n
		}
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	end := since + size
	if end > len(j.events) {
		end = len(j.events)
	}

	w.Header().Set("Link", fmt.Sprintf(`<%s?since=%d>; rel="next"`, JournalPath, end))

	if since == end {
		if j.RetryAfter != "" {
			w.Header().Set("Retry-After", j.RetryAfter)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	page := struct {
		Events []json.RawMessage `json:"events"`
	}{
		Events: j.events[since:end],
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(page)
}

// ingressEvent is the ingress wire format.
type ingressEvent struct {
	UserGUID   string `json:"user_guid"`
	ProviderID string `json:"provider_id"`
	EventCode  string `json:"event_code"`
	Event      string `json:"event"`
}

func (j *Journal) serveIngress(w http.ResponseWriter, body []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := http.StatusOK
	if len(j.sendCodes) > 0 {
		status = j.sendCodes[0]
		j.sendCodes = j.sendCodes[1:]
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var in ingressEvent
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}
	if in.ProviderID == "" || in.EventCode == "" {
		http.Error(w, "provider_id and event_code are required", http.StatusBadRequest)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(in.Event)
	if err != nil || !json.Valid(payload) {
		http.Error(w, "event must be base64 encoded JSON", http.StatusBadRequest)
		return
	}

	j.appendLocked(in.EventCode, payload)
	w.WriteHeader(http.StatusOK)
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, buf, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	// a connection closed before any byte is written is replayed by the
	// client transport when it was reused, so break the response instead
	_, _ = buf.WriteString("HTTP/1.1 broken\r\n\r\n")
	_ = buf.Flush()
	_ = conn.Close()
}

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/journalwatch/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(ids ...string) *store.MemoryStore {
	st := store.NewMemoryStore(10)
	for _, id := range ids {
		st.Append(store.Record{ID: id, Code: "test.event", Payload: json.RawMessage(`{"id":"` + id + `"}`)})
	}
	return st
}

// parseSSEEvents extracts the records from an SSE body.
func parseSSEEvents(body string) []store.Record {
	var records []store.Record
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var rec store.Record
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records
}

func recordIDs(rs []store.Record) string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return strings.Join(ids, ",")
}

func TestHandleSSE_ReplaysRetained(t *testing.T) {
	st := newStore("a", "b")
	srv := NewServer(st, "", nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	body := rec.Body.String()
	if got := recordIDs(parseSSEEvents(body)); got != "a,b" {
		t.Errorf("replayed = %q, want a,b", got)
	}
	if !strings.Contains(body, "id: 1\n") || !strings.Contains(body, "id: 2\n") {
		t.Errorf("response should carry event ids, got: %s", body)
	}
}

func TestHandleSSE_ResumesAfterLastEventID(t *testing.T) {
	st := newStore("a", "b", "c")
	srv := NewServer(st, "", nil, testLogger())

	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header", header: "2", want: "c"},
		{name: "query", query: "?since=1", want: "b,c"},
		{name: "header wins", header: "2", query: "?since=0", want: "c"},
		{name: "past the end", header: "3", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			req := httptest.NewRequest(http.MethodGet, "/api/sse"+tt.query, nil).WithContext(ctx)
			if tt.header != "" {
				req.Header.Set("Last-Event-ID", tt.header)
			}
			rec := httptest.NewRecorder()

			srv.handleSSE(rec, req)

			if got := recordIDs(parseSSEEvents(rec.Body.String())); got != tt.want {
				t.Errorf("events = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleSSE_BadLastEventID(t *testing.T) {
	srv := NewServer(newStore(), "", nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	req.Header.Set("Last-Event-ID", "abc")
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	st := newStore()
	srv := NewServer(st, "", nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// give handler time to subscribe
	time.Sleep(50 * time.Millisecond)

	st.Append(store.Record{ID: "live", Payload: json.RawMessage(`{}`)})

	// give time for the record to be written
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	if got := recordIDs(parseSSEEvents(rec.Body.String())); got != "live" {
		t.Errorf("streamed = %q, want live", got)
	}
}

func TestHandleSSE_ClientDisconnect(t *testing.T) {
	srv := NewServer(newStore(), "", nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// simulate client disconnect
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	// allow existing goroutines to settle
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv := NewServer(newStore("a"), "", nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}

	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv := NewServer(newStore(), "", nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)

	// use a writer that doesn't support flushing
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, req)

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header {
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) {
	n.statusCode = statusCode
}

func TestHandleSSE_Headers(t *testing.T) {
	srv := NewServer(newStore(), "", nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	expectedHeaders := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}

	for key, expected := range expectedHeaders {
		if got := rec.Header().Get(key); got != expected {
			t.Errorf("header %s = %q, want %q", key, got, expected)
		}
	}
}

// --- Integration tests over a real connection ---
//
// These use httptest.Server so the response writer supports write deadlines.

func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	srv := NewServer(newStore("a"), "", nil, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// derive request context from server context (simulates BaseContext)
		r = r.WithContext(serverCtx)
		srv.handleSSE(w, r)
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	connDone := make(chan error, 1)
	go func() {
		resp, err := ts.Client().Get(ts.URL)
		if err != nil {
			connDone <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()

		// read until connection closes
		_, _ = io.Copy(io.Discard, resp.Body)
		connDone <- nil
	}()

	time.Sleep(100 * time.Millisecond)
	serverCancel()

	select {
	case <-connDone:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}
}

func TestHandleSSE_MultipleClientsShutdownIntegration(t *testing.T) {
	st := newStore("a")
	srv := NewServer(st, "", nil, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(serverCtx)
		srv.handleSSE(w, r)
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	numClients := 5
	var wg sync.WaitGroup
	started := make(chan struct{})
	var startedCount atomic.Int32

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := ts.Client().Get(ts.URL)
			if err != nil {
				return // server might have shut down
			}
			defer func() { _ = resp.Body.Close() }()

			if startedCount.Add(1) == int32(numClients) {
				close(started)
			}

			_, _ = io.Copy(io.Discard, resp.Body)
		}()
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Log("not all clients started, continuing anyway")
	}

	time.Sleep(100 * time.Millisecond)
	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all SSE clients disconnected after shutdown")
	}
}

func TestHandleEvents(t *testing.T) {
	srv := NewServer(newStore("a", "b", "c"), "", nil, testLogger())

	tests := []struct {
		name   string
		method string
		target string
		status int
		want   string
	}{
		{name: "all", method: http.MethodGet, target: "/api/events", status: http.StatusOK, want: "a,b,c"},
		{name: "since", method: http.MethodGet, target: "/api/events?since=2", status: http.StatusOK, want: "c"},
		{name: "bad since", method: http.MethodGet, target: "/api/events?since=-1", status: http.StatusBadRequest},
		{name: "post", method: http.MethodPost, target: "/api/events", status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.handleEvents(rec, httptest.NewRequest(tt.method, tt.target, nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var got []store.Record
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to parse JSON: %v", err)
			}
			if ids := recordIDs(got); ids != tt.want {
				t.Errorf("events = %q, want %q", ids, tt.want)
			}
		})
	}
}

func TestHandleEvents_EmptyIsArray(t *testing.T) {
	srv := NewServer(newStore(), "", nil, testLogger())

	rec := httptest.NewRecorder()
	srv.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name   string
		health HealthFunc
		status int
		state  string
	}{
		{name: "no reporter", status: http.StatusOK, state: "unknown"},
		{
			name:   "polling",
			health: func() Health { return Health{State: "polling", Cursor: "https://j/x?since=1", Relayed: 3} },
			status: http.StatusOK,
			state:  "polling",
		},
		{
			name:   "stopped",
			health: func() Health { return Health{State: "stopped"} },
			status: http.StatusServiceUnavailable,
			state:  "stopped",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(newStore(), "", tt.health, testLogger())

			rec := httptest.NewRecorder()
			srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var got Health
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to parse JSON: %v", err)
			}
			if got.State != tt.state {
				t.Errorf("State = %q, want %q", got.State, tt.state)
			}
		})
	}
}

func TestServer_SSEIntegration(t *testing.T) {
	st := newStore("retained")
	srv := NewServer(st, "127.0.0.1:0", nil, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	if err := srv.Start(serverCtx); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	if srv.Addr() == "" {
		t.Fatal("Addr() is empty after Start")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/sse")
	if err != nil {
		t.Fatalf("GET /api/sse: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	next := func() store.Record {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatal("stream closed")
				}
				if recs := parseSSEEvents(line); len(recs) == 1 {
					return recs[0]
				}
			case <-timeout:
				t.Fatal("no SSE event received")
			}
		}
	}

	if got := next(); got.ID != "retained" || got.Seq != 1 {
		t.Errorf("first event = %+v, want retained seq 1", got)
	}

	// the handler subscribes before the replay, so this is delivered live
	st.Append(store.Record{ID: "live", Payload: json.RawMessage(`{}`)})
	if got := next(); got.ID != "live" || got.Seq != 2 {
		t.Errorf("second event = %+v, want live seq 2", got)
	}
}

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	srv := NewServer(newStore(), "127.0.0.1:0", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	// occupy a port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	srv := NewServer(newStore(), ln.Addr().String(), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidAddr_ReturnsError(t *testing.T) {
	srv := NewServer(newStore(), "127.0.0.1:-1", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid address should return error")
	}
}

func TestHandler_Routes(t *testing.T) {
	ts := httptest.NewServer(NewServer(newStore("a"), "", nil, testLogger()).Handler())
	defer ts.Close()

	for _, path := range []string{"/api/events", "/health"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}

func BenchmarkHandleSSE_Replay(b *testing.B) {
	st := store.NewMemoryStore(10)
	for i := 0; i < 10; i++ {
		st.Append(store.Record{ID: "e", Payload: json.RawMessage(`{}`)})
	}

	srv := NewServer(st, "", nil, testLogger())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
		srv.handleSSE(httptest.NewRecorder(), req)
		cancel()
	}
}

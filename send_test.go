package journalwatch

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jpalmerr/journalwatch/internal/journaltest"
)

func TestSendEvent_WireFormat(t *testing.T) {
	j := journaltest.New()
	c, _ := newJournalClient(t, j)

	err := c.SendEvent(t.Context(), OutboundEvent{Code: "order.created", Payload: map[string]int{"total": 12}})
	if err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}

	reqs := j.Requests()
	if len(reqs) != 1 {
		t.Fatalf("len(Requests()) = %d, want 1", len(reqs))
	}
	if reqs[0].Method != http.MethodPost || reqs[0].URL != journaltest.IngressPath {
		t.Errorf("request = %s %s, want POST %s", reqs[0].Method, reqs[0].URL, journaltest.IngressPath)
	}
	if ct := reqs[0].Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var wire struct {
		UserGUID   string `json:"user_guid"`
		ProviderID string `json:"provider_id"`
		EventCode  string `json:"event_code"`
		Event      string `json:"event"`
	}
	if err := json.Unmarshal(reqs[0].Body, &wire); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if wire.UserGUID != "org@AdobeOrg" || wire.ProviderID != "provider-1" || wire.EventCode != "order.created" {
		t.Errorf("wire = %+v", wire)
	}
	payload, err := base64.StdEncoding.DecodeString(wire.Event)
	if err != nil {
		t.Fatalf("event is not base64: %v", err)
	}
	if string(payload) != `{"total":12}` {
		t.Errorf("payload = %s, want {\"total\":12}", payload)
	}

	if j.Len() != 1 {
		t.Errorf("journal has %d events, want 1", j.Len())
	}
}

func TestSendEvent_NilPayload(t *testing.T) {
	j := journaltest.New()
	c, _ := newJournalClient(t, j)

	if err := c.SendEvent(t.Context(), OutboundEvent{Code: "ping"}); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}
	if j.Len() != 1 {
		t.Errorf("journal has %d events, want 1", j.Len())
	}
}

func TestSendEvent_RetriesNoContent(t *testing.T) {
	j := journaltest.New()
	j.ScriptSend(http.StatusNoContent, http.StatusNoContent, http.StatusNoContent)
	c, _ := newJournalClient(t, j)

	if err := c.SendEvent(t.Context(), OutboundEvent{Code: "order.created"}); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}

	if n := len(j.Requests()); n != 4 {
		t.Errorf("requests = %d, want 4", n)
	}
	if j.Len() != 1 {
		t.Errorf("journal has %d events, want 1", j.Len())
	}
}

func TestSendEvent_RetryBudgetExhausted(t *testing.T) {
	j := journaltest.New()
	j.ScriptSend(http.StatusNoContent, http.StatusNoContent, http.StatusNoContent,
		http.StatusNoContent, http.StatusNoContent, http.StatusNoContent)
	c, _ := newJournalClient(t, j)

	err := c.SendEvent(t.Context(), OutboundEvent{Code: "order.created"},
		WithSendRetry(RetryOptions{MaxElapsed: 50 * time.Millisecond, InitialDelay: 10 * time.Millisecond}))
	if err == nil {
		t.Fatal("SendEvent() expected error, got nil")
	}

	if !errors.Is(err, ErrTimeoutExceeded) {
		t.Errorf("error = %v, want ErrTimeoutExceeded", err)
	}
	var f *TransientFailure
	if !errors.As(err, &f) || f.StatusCode != http.StatusNoContent {
		t.Errorf("error = %v, want TransientFailure 204", err)
	}
	if f != nil && f.Attempts < 2 {
		t.Errorf("Attempts = %d, want at least 2", f.Attempts)
	}
}

func TestSendEvent_WithoutRetry(t *testing.T) {
	j := journaltest.New()
	j.ScriptSend(http.StatusNoContent)
	c, _ := newJournalClient(t, j)

	err := c.SendEvent(t.Context(), OutboundEvent{Code: "order.created"}, WithoutRetry())

	var f *TransientFailure
	if !errors.As(err, &f) {
		t.Fatalf("error = %v, want TransientFailure", err)
	}
	if errors.Is(err, ErrTimeoutExceeded) {
		t.Error("a single attempt should not report ErrTimeoutExceeded")
	}
	if n := len(j.Requests()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestSendEvent_ClientErrorNotRetried(t *testing.T) {
	j := journaltest.New()
	j.ScriptSend(http.StatusBadRequest)
	c, _ := newJournalClient(t, j)

	err := c.SendEvent(t.Context(), OutboundEvent{Code: "order.created"})

	var f *TerminalFailure
	if !errors.As(err, &f) || f.StatusCode != http.StatusBadRequest {
		t.Fatalf("error = %v, want TerminalFailure 400", err)
	}
	if n := len(j.Requests()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestSendEvent_Validation(t *testing.T) {
	j := journaltest.New()
	c, _ := newJournalClient(t, j, WithDefaults(Defaults{}))

	if err := c.SendEvent(t.Context(), OutboundEvent{Code: "x"}); !errors.Is(err, ErrMissingProvider) {
		t.Errorf("missing provider: error = %v, want ErrMissingProvider", err)
	}
	if err := c.SendEvent(t.Context(), OutboundEvent{ProviderID: "p", Code: " "}); err == nil {
		t.Error("missing code: expected error, got nil")
	}
	if err := c.SendEvent(t.Context(), OutboundEvent{ProviderID: "p", Code: "x", Payload: func() {}}); err == nil {
		t.Error("unmarshallable payload: expected error, got nil")
	}
	if n := len(j.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jpalmerr/journalwatch/internal/journaltest"
)

// mockConfig starts a journaltest server and writes a config pointing at it.
func mockConfig(t *testing.T, j *journaltest.Journal) string {
	t.Helper()

	srv := httptest.NewServer(j)
	t.Cleanup(srv.Close)

	return writeConfig(t, fmt.Sprintf(`
org_id: org@AdobeOrg
access_token: opaque
client_id: cli-test
hosts:
  ingress: %[1]s
  api: %[1]s
journal:
  url: %[1]s%[2]s
  interval: 10ms
retry:
  max_elapsed: 2s
  initial_delay: 10ms
provider_id: prov-1
log_level: error
`, srv.URL, journaltest.JournalPath))
}

func quietJournal() *journaltest.Journal {
	j := journaltest.New()
	j.RetryAfter = ""
	return j
}

func TestFind_PrintsMatch(t *testing.T) {
	j := quietJournal()
	j.Append("order.created", map[string]int{"total": 5})
	id := j.Append("order.shipped", map[string]int{"total": 5})
	configPath := mockConfig(t, j)

	output, err := execute(t, "find", "-c", configPath, "--expr", `code == "order.shipped"`, "--timeout", "2s")
	if err != nil {
		t.Fatalf("find command error = %v", err)
	}
	if !strings.Contains(output, id) || !strings.Contains(output, "order.shipped") {
		t.Errorf("output = %q, want the shipped event", output)
	}
	if strings.Contains(output, "order.created") {
		t.Errorf("output = %q, printed a non-matching event", output)
	}
}

func TestFind_Timeout(t *testing.T) {
	configPath := mockConfig(t, quietJournal())

	_, err := execute(t, "find", "-c", configPath, "--expr", `code == "never"`, "--timeout", "50ms")
	if err == nil || !strings.Contains(err.Error(), "no event matched") {
		t.Errorf("find command error = %v, want timeout", err)
	}
}

func TestFind_RepeatedRunsGetFreshContext(t *testing.T) {
	j := quietJournal()
	j.Append("order.shipped", map[string]int{"total": 5})
	configPath := mockConfig(t, j)

	// each subtest context is cancelled when the subtest ends
	for _, name := range []string{"first", "second", "third"} {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, "find", "-c", configPath, "--expr", `code == "never"`, "--timeout", "50ms")
			if err == nil || !strings.Contains(err.Error(), "no event matched") {
				t.Errorf("find command error = %v, want timeout", err)
			}
		})
	}
}

func TestFind_InvalidExpression(t *testing.T) {
	configPath := mockConfig(t, quietJournal())

	_, err := execute(t, "find", "-c", configPath, "--expr", `code ==`)
	if err == nil {
		t.Error("find command expected error for invalid expression, got nil")
	}
}

func TestFind_NoJournal(t *testing.T) {
	configPath := writeConfig(t, "org_id: o\naccess_token: t\nclient_id: c\n")

	_, err := execute(t, "find", "-c", configPath, "--expr", "true")
	if err == nil || !strings.Contains(err.Error(), "journal.url") {
		t.Errorf("find command error = %v, want journal.url error", err)
	}
}

func TestTail_FilterAndCount(t *testing.T) {
	j := quietJournal()
	j.Append("tick", map[string]int{"n": 1})
	j.Append("tock", map[string]int{"n": 2})
	j.Append("tick", map[string]int{"n": 3})
	j.Append("tick", map[string]int{"n": 4})
	configPath := mockConfig(t, j)

	output, err := execute(t, "tail", "-c", configPath, "--filter", `code == "tick"`, "--count", "2", "--json")
	if err != nil {
		t.Fatalf("tail command error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Fatalf("printed %d lines, want 2\nGot: %s", len(lines), output)
	}
	if !strings.Contains(lines[0], `"n":1`) || !strings.Contains(lines[1], `"n":3`) {
		t.Errorf("lines = %q", lines)
	}
}

func TestTail_JournalFlagOverridesConfig(t *testing.T) {
	other := quietJournal()
	other.Append("from.flag", 1)
	srv := httptest.NewServer(other)
	defer srv.Close()

	configPath := mockConfig(t, quietJournal())

	output, err := execute(t, "tail", "-c", configPath, "--journal", srv.URL+journaltest.JournalPath, "--count", "1")
	if err != nil {
		t.Fatalf("tail command error = %v", err)
	}
	if !strings.Contains(output, "from.flag") {
		t.Errorf("output = %q, want the event of the flag journal", output)
	}
}

func TestSend(t *testing.T) {
	j := quietJournal()
	j.ScriptSend(http.StatusNoContent)
	configPath := mockConfig(t, j)

	output, err := execute(t, "send", "-c", configPath, "--code", "order.created", "--payload", `{"id": 7}`)
	if err != nil {
		t.Fatalf("send command error = %v", err)
	}
	if !strings.Contains(output, "sent order.created") {
		t.Errorf("output = %q", output)
	}
	if j.Len() != 1 {
		t.Errorf("journal has %d events, want 1", j.Len())
	}
}

func TestSend_InvalidPayload(t *testing.T) {
	configPath := mockConfig(t, quietJournal())

	_, err := execute(t, "send", "-c", configPath, "--code", "x", "--payload", "{nope")
	if err == nil || !strings.Contains(err.Error(), "valid JSON") {
		t.Errorf("send command error = %v, want payload error", err)
	}
}

func TestSend_NoRetry(t *testing.T) {
	j := quietJournal()
	j.ScriptSend(http.StatusNoContent)
	configPath := mockConfig(t, j)

	if _, err := execute(t, "send", "-c", configPath, "--code", "x", "--no-retry"); err == nil {
		t.Error("send command expected error for 204 without retry, got nil")
	}
	if j.Len() != 0 {
		t.Errorf("journal has %d events, want 0", j.Len())
	}
}

func TestColorFor_Stable(t *testing.T) {
	if colorFor("order.created") != colorFor("order.created") {
		t.Error("colorFor() is not stable for the same code")
	}
}

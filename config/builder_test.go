package config

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jpalmerr/journalwatch"
)

func TestBuildClient(t *testing.T) {
	cfg := &Config{
		OrgID:       "org@AdobeOrg",
		AccessToken: "opaque",
		ClientID:    "my-client",
		Environment: "stage",
		Retry:       RetryConfig{MaxElapsed: Duration(time.Second)},
		ProviderID:  "prov-1",
	}

	c, err := BuildClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("BuildClient() error = %v", err)
	}
	defer c.Close()

	if c.OrgID() != "org@AdobeOrg" {
		t.Errorf("OrgID() = %q", c.OrgID())
	}
	if c.ClientID() != "my-client" {
		t.Errorf("ClientID() = %q", c.ClientID())
	}
	if c.Environment() != journalwatch.Stage {
		t.Errorf("Environment() = %q, want stage", c.Environment())
	}
	if c.Hosts() != journalwatch.HostsFor(journalwatch.Stage) {
		t.Errorf("Hosts() = %+v", c.Hosts())
	}
}

func TestBuildClient_Hosts(t *testing.T) {
	cfg := &Config{
		OrgID:       "org",
		AccessToken: "opaque",
		ClientID:    "id",
		Hosts:       HostsConfig{Ingress: "http://localhost:1", API: "http://localhost:2"},
	}

	c, err := BuildClient(cfg, nil)
	if err != nil {
		t.Fatalf("BuildClient() error = %v", err)
	}
	want := journalwatch.Hosts{Ingress: "http://localhost:1", API: "http://localhost:2"}
	if c.Hosts() != want {
		t.Errorf("Hosts() = %+v, want %+v", c.Hosts(), want)
	}
}

func TestBuildClient_ExtraOptionsWin(t *testing.T) {
	cfg := &Config{OrgID: "org", AccessToken: "opaque", ClientID: "from-config"}

	c, err := BuildClient(cfg, nil, journalwatch.WithClientID("from-caller"))
	if err != nil {
		t.Fatalf("BuildClient() error = %v", err)
	}
	if c.ClientID() != "from-caller" {
		t.Errorf("ClientID() = %q, want from-caller", c.ClientID())
	}
}

func TestBuildClient_OpaqueTokenNeedsClientID(t *testing.T) {
	cfg := &Config{OrgID: "org", AccessToken: "opaque"}

	if _, err := BuildClient(cfg, nil); err == nil {
		t.Error("BuildClient() expected error for opaque token without client id, got nil")
	}
}

func TestBuildRetry(t *testing.T) {
	got := buildRetry(RetryConfig{
		MaxElapsed:     Duration(5 * time.Second),
		InitialDelay:   Duration(20 * time.Millisecond),
		RetryAllErrors: true,
		Disabled:       true,
	})
	want := journalwatch.RetryOptions{
		MaxElapsed:     5 * time.Second,
		InitialDelay:   20 * time.Millisecond,
		RetryAllErrors: true,
		Disabled:       true,
	}
	if got != want {
		t.Errorf("buildRetry() = %+v, want %+v", got, want)
	}
}

func TestWatchOptions(t *testing.T) {
	cfg := &Config{Journal: JournalConfig{
		URL:      "https://j.example.com/journal",
		Latest:   true,
		Restart:  "https://j.example.com/journal?since=4",
		Interval: Duration(time.Second),
	}}

	u, opts, err := WatchOptions(cfg)
	if err != nil {
		t.Fatalf("WatchOptions() error = %v", err)
	}
	if u != cfg.Journal.URL {
		t.Errorf("url = %q", u)
	}
	if len(opts) != 3 {
		t.Errorf("len(opts) = %d, want 3", len(opts))
	}

	u, opts, err = WatchOptions(&Config{Journal: JournalConfig{URL: "https://j.example.com/journal"}})
	if err != nil || u == "" || len(opts) != 0 {
		t.Errorf("WatchOptions(url only) = %q, %d opts, %v", u, len(opts), err)
	}
}

func TestWatchOptions_NoJournal(t *testing.T) {
	_, _, err := WatchOptions(&Config{})
	if !errors.Is(err, ErrNoJournal) {
		t.Errorf("WatchOptions() error = %v, want ErrNoJournal", err)
	}
}

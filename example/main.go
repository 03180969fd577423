package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/journalwatch"
)

const mockAddr = "localhost:9999"

func main() {
	// start mock journal (see mock_server.go)
	StartMockJournal(mockAddr)
	time.Sleep(100 * time.Millisecond)

	base := "http://" + mockAddr

	client, err := journalwatch.New("demo@AdobeOrg", "demo-token",
		journalwatch.WithClientID("demo-client"),
		journalwatch.WithHosts(journalwatch.Hosts{Ingress: base, API: base}),
		journalwatch.WithDefaults(journalwatch.Defaults{ProviderID: "demo-provider"}),
	)
	if err != nil {
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// publish one event of our own and wait for it to show up
	go func() {
		err := client.SendEvent(context.Background(), journalwatch.OutboundEvent{
			Code:    "demo.hello",
			Payload: map[string]string{"greeting": "hello journal"},
		})
		if err != nil {
			slog.Error("failed to send event", "error", err)
		}
	}()

	ev, err := journalwatch.FindEvent(context.Background(), client, base+"/journal", 10*time.Second,
		func(ev journalwatch.Event) bool { return ev.Code == "demo.hello" },
	)
	if err != nil {
		slog.Error("demo event not found", "error", err)
		os.Exit(1)
	}
	fmt.Printf("found our event %s\n\n", ev.ID)

	// tail the journal from its newest events
	w, err := client.Watch(base+"/journal",
		journalwatch.WithLatest(true),
		journalwatch.WithEventHandler(func(ev journalwatch.Event) {
			fmt.Printf("%s  %-14s %s\n", ev.ID, ev.Code, ev.Payload)
		}),
		journalwatch.WithErrorHandler(func(err error) {
			slog.Warn("poll failed, restarting", "error", err)
		}),
	)
	if err != nil {
		slog.Error("failed to watch journal", "error", err)
		os.Exit(1)
	}

	fmt.Println("Watching the mock journal. Press Ctrl+C to stop.")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Stop(shutdownCtx); err != nil {
		slog.Error("watcher did not stop", "error", err)
		os.Exit(1)
	}
	fmt.Printf("\nstopped at %s\n", w.Cursor().Current)
}

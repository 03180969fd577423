package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/journalwatch"
	"github.com/jpalmerr/journalwatch/config"
	"github.com/jpalmerr/journalwatch/internal/filter"
	"github.com/jpalmerr/journalwatch/internal/server"
	"github.com/jpalmerr/journalwatch/internal/store"
)

// relayCmd rebroadcasts journal events over HTTP.
var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Serve journal events over HTTP and Server-Sent Events",
	Long: `Watch the configured journal and serve its events locally.

Endpoints:
  GET /api/events   recent events as JSON (?since=<seq>)
  GET /api/sse      live event stream, resumable via Last-Event-ID
  GET /health       watcher state and cursor

Only the last relay.buffer events are kept for replay.

Example:
  journalwatch relay -c config.yaml --addr 127.0.0.1:8080 --filter 'code.startsWith("order.")'`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)
	addJournalFlags(relayCmd)

	relayCmd.Flags().String("addr", "", "listen address (overrides relay.addr)")
	relayCmd.Flags().Int("buffer", 0, "events retained for replay (overrides relay.buffer)")
	relayCmd.Flags().String("filter", "", "CEL expression selecting events to relay")
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	expr, _ := cmd.Flags().GetString("filter")
	match, err := filter.Compile(expr)
	if err != nil {
		return err
	}

	client, err := config.BuildClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	journalURL, opts, err := config.WatchOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.NewMemoryStore(cfg.Relay.Buffer)
	var relayed atomic.Int64

	opts = append(opts,
		journalwatch.WithEventHandler(func(ev journalwatch.Event) {
			if !match.Match(ev.ID, ev.Code, ev.Payload) {
				return
			}
			st.Append(store.Record{ID: ev.ID, Code: ev.Code, Payload: ev.Payload})
			relayed.Add(1)
		}),
		journalwatch.WithErrorHandler(func(err error) {
			logger.Warn("poll failed, restarting from journal url", "error", err)
		}),
	)

	w, err := client.Watch(journalURL, opts...)
	if err != nil {
		return err
	}

	health := func() server.Health {
		return server.Health{
			State:   w.State().String(),
			Cursor:  w.Cursor().Current,
			Relayed: relayed.Load(),
		}
	}

	// the server shuts down with srvCtx, after the watcher has stopped
	srvCtx, cancelSrv := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSrv()

	srv := server.NewServer(st, cfg.Relay.Addr, health, logger)
	if err := srv.Start(srvCtx); err != nil {
		_ = w.Stop(context.Background())
		return err
	}

	logger.Info("relay listening",
		"addr", srv.Addr(),
		"buffer", cfg.Relay.Buffer,
		"filter", match.String(),
	)

	select {
	case <-ctx.Done():
	case <-w.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
		return nil
	}

	logger.Info("stopped", "relayed", relayed.Load(), "cursor", w.Cursor().Current)
	return nil
}

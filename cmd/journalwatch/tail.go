package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/journalwatch"
	"github.com/jpalmerr/journalwatch/config"
	"github.com/jpalmerr/journalwatch/internal/filter"
)

const (
	shutdownTimeout = 10 * time.Second
)

// tailCmd prints journal events until interrupted.
var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print journal events as they arrive",
	Long: `Watch the configured journal and print every event.

The watcher runs until interrupted (Ctrl+C) or receives SIGTERM, then
finishes the poll in flight and logs the cursor it stopped at. Pass that
cursor back with --restart to resume.

Events can be filtered with a CEL expression over id, code, event (the
decoded payload) and text (the raw payload):

  journalwatch tail -c config.yaml --filter 'code == "order.created"'
  journalwatch tail -c config.yaml --filter 'event.event.total > 100' --count 1`,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
	addJournalFlags(tailCmd)

	tailCmd.Flags().String("filter", "", "CEL expression selecting events to print")
	tailCmd.Flags().Int("count", 0, "stop after printing this many events (0 = unlimited)")
	tailCmd.Flags().Bool("json", false, "print raw event JSON only")
}

// addJournalFlags registers the flags overriding the journal section.
func addJournalFlags(cmd *cobra.Command) {
	cmd.Flags().String("journal", "", "journal URL (overrides journal.url)")
	cmd.Flags().Bool("latest", false, "start at the newest events")
	cmd.Flags().String("restart", "", "resume from a saved next link")
	cmd.Flags().Duration("interval", 0, "fixed delay after empty pages and failures")
}

func runTail(cmd *cobra.Command, args []string) error {
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
	limit, _ := cmd.Flags().GetInt("count")
	asJSON, _ := cmd.Flags().GetBool("json")

	client, err := config.BuildClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	journalURL, opts, err := config.WatchOptions(cfg)
	if err != nil {
		return err
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := printer{out: cmd.OutOrStdout(), json: asJSON}
	var (
		printed atomic.Int64
		watcher atomic.Pointer[journalwatch.Watcher]
	)

	opts = append(opts,
		journalwatch.WithEventHandler(func(ev journalwatch.Event) {
			if limit > 0 && printed.Load() >= int64(limit) {
				return
			}
			if !match.Match(ev.ID, ev.Code, ev.Payload) {
				return
			}
			if err := p.print(ev); err != nil {
				logger.Error("failed to print event", "error", err)
			}
			if n := printed.Add(1); limit > 0 && n >= int64(limit) {
				if w := watcher.Load(); w != nil {
					w.StopAsync()
				} else {
					stop()
				}
			}
		}),
		journalwatch.WithErrorHandler(func(err error) {
			logger.Warn("poll failed, restarting from journal url", "error", err)
		}),
	)

	w, err := client.Watch(journalURL, opts...)
	if err != nil {
		return err
	}
	watcher.Store(w)

	logger.Info("watching journal", "filter", match.String())

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

	logger.Info("stopped", "events", printed.Load(), "cursor", w.Cursor().Current)
	return nil
}

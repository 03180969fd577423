package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/journalwatch"
	"github.com/jpalmerr/journalwatch/config"
	"github.com/jpalmerr/journalwatch/internal/filter"
)

// findCmd waits for the first event matching an expression.
var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Wait for an event matching an expression",
	Long: `Watch the configured journal until an event matches a CEL expression,
print it and exit.

Exit codes:
  0 - A matching event was found
  1 - Timeout, failed poll or invalid expression

Example:
  journalwatch find -c config.yaml --expr 'code == "order.shipped"' --timeout 1m`,
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)
	addJournalFlags(findCmd)

	findCmd.Flags().String("expr", "", "CEL expression the event must satisfy (required)")
	findCmd.Flags().Duration("timeout", 30*time.Second, "give up after this long")
	findCmd.Flags().Bool("json", false, "print raw event JSON only")
	_ = findCmd.MarkFlagRequired("expr")
}

func runFind(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	expr, _ := cmd.Flags().GetString("expr")
	match, err := filter.Compile(expr)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
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

	ev, err := journalwatch.FindEvent(cmd.Context(), client, journalURL, timeout,
		func(ev journalwatch.Event) bool { return match.Match(ev.ID, ev.Code, ev.Payload) },
		opts...,
	)
	if errors.Is(err, journalwatch.ErrFindTimeout) {
		return fmt.Errorf("no event matched %q within %s", expr, timeout)
	}
	if err != nil {
		return err
	}

	return printer{out: cmd.OutOrStdout(), json: asJSON}.print(ev)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/journalwatch"
	"github.com/jpalmerr/journalwatch/config"
)

// sendCmd publishes one event.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Publish an event",
	Long: `Publish one event through the event ingress.

The ingress answers 204 while nobody is registered for the event; those
responses are retried like server errors, under the retry section of the
config.

Example:
  journalwatch send -c config.yaml --code order.created --payload '{"id": 7}'`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("code", "", "event code (required)")
	sendCmd.Flags().String("payload", "{}", "event payload as JSON")
	sendCmd.Flags().String("provider", "", "provider id (overrides provider_id)")
	sendCmd.Flags().Bool("no-retry", false, "send exactly once")
	_ = sendCmd.MarkFlagRequired("code")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	code, _ := cmd.Flags().GetString("code")
	payload, _ := cmd.Flags().GetString("payload")
	if !json.Valid([]byte(payload)) {
		return errors.New("payload must be valid JSON")
	}
	noRetry, _ := cmd.Flags().GetBool("no-retry")

	client, err := config.BuildClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	var opts []journalwatch.SendOption
	if noRetry {
		opts = append(opts, journalwatch.WithoutRetry())
	}

	if err := client.SendEvent(cmd.Context(), journalwatch.OutboundEvent{
		Code:    code,
		Payload: json.RawMessage(payload),
	}, opts...); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", code)
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without contacting any service.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a journalwatch configuration without contacting any service.

This command parses the YAML, expands environment variables, applies
JOURNALWATCH_* overrides, and validates all fields. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  journalwatch validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	env := cfg.Environment
	if env == "" {
		env = "from access token"
	}
	journal := cfg.Journal.URL
	if journal == "" {
		journal = "(none)"
	}
	interval := "server hint"
	if cfg.Journal.Interval != 0 {
		interval = cfg.Journal.Interval.Duration().String()
	}
	retry := "default"
	switch {
	case cfg.Retry.Disabled:
		retry = "disabled"
	case cfg.Retry.MaxElapsed != 0:
		retry = "up to " + cfg.Retry.MaxElapsed.Duration().String()
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Org:         %s\n", cfg.OrgID)
	fmt.Printf("  Environment: %s\n", env)
	fmt.Printf("  Journal:     %s\n", journal)
	fmt.Printf("  Latest:      %t\n", cfg.Journal.Latest)
	fmt.Printf("  Interval:    %s\n", interval)
	fmt.Printf("  Retry:       %s\n", retry)
	fmt.Printf("  Relay:       %s (buffer %d)\n", cfg.Relay.Addr, cfg.Relay.Buffer)

	return nil
}

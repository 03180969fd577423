// Package main is the entry point for the journalwatch CLI.
//
// journalwatch can be used either as a library (SDK) or as a standalone
// binary with YAML configuration. This CLI provides the standalone binary
// approach.
//
// Usage:
//
//	journalwatch tail -c config.yaml                      # Print events as they arrive
//	journalwatch find -c config.yaml --expr 'code == "x"' # Wait for one event
//	journalwatch send -c config.yaml --code x --payload '{}'
//	journalwatch relay -c config.yaml --addr :8080         # Serve events over SSE
//	journalwatch validate -c config.yaml                  # Validate configuration
//	journalwatch version                                  # Show version info
//
// Every configuration key can also be set through a JOURNALWATCH_*
// environment variable, e.g. JOURNALWATCH_ACCESS_TOKEN or
// JOURNALWATCH_JOURNAL_URL. Environment variables override the file and
// flags override both.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jpalmerr/journalwatch/config"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const envPrefix = "JOURNALWATCH"

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "journalwatch",
	Short: "Read, search and publish journal events",
	Long: `journalwatch reads an HTTP event journal page by page, following its
rel="next" links, and publishes events to the event ingress.

Quick start:
  1. Create a config file (journalwatch.yaml)
  2. Run: journalwatch tail -c journalwatch.yaml

Example config:
  org_id: ${IMS_ORG_ID}
  access_token: ${IMS_ACCESS_TOKEN}
  journal:
    url: https://events-va6.adobe.io/events/organizations/...
    latest: true`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this journalwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("journalwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")

	rootCmd.AddCommand(versionCmd)
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"journal":   "journal.url",
	"latest":    "journal.latest",
	"restart":   "journal.restart",
	"interval":  "journal.interval",
	"provider":  "provider_id",
	"addr":      "relay.addr",
	"buffer":    "relay.buffer",
}

// newViper layers JOURNALWATCH_* environment variables and the command's
// flags over the config file.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		f := lookupFlag(cmd, name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return v, nil
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f
	}
	return cmd.InheritedFlags().Lookup(name)
}

// loadConfig reads the config file named by --config, if any, and applies
// environment and flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path == "" {
		return config.Parse(nil, v)
	}
	return config.Load(path, v)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level string) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
}

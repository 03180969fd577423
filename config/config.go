// Package config provides YAML configuration parsing for journalwatch.
//
// This package enables running journalwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	org_id: ${IMS_ORG_ID}
//	access_token: ${IMS_ACCESS_TOKEN}
//	environment: prod
//
//	journal:
//	  url: https://events-va6.adobe.io/events/organizations/o/integrations/i/r
//	  latest: true
//	  interval: 2s
//
//	retry:
//	  max_elapsed: 60s
//	  initial_delay: 100ms
//
//	provider_id: my-provider
//	log_level: info
//
//	relay:
//	  addr: 127.0.0.1:8080
//	  buffer: 500
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minInterval is the smallest fixed poll interval accepted.
const minInterval = 10 * time.Millisecond

// Relay defaults.
const (
	DefaultRelayAddr   = ":8080"
	DefaultRelayBuffer = 100
)

// Config is the root configuration structure for journalwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// OrgID is the IMS organization the client acts for. Required.
	OrgID string `yaml:"org_id"`

	// AccessToken authenticates every request. Required.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	AccessToken string `yaml:"access_token"`

	// ClientID is the API key. If empty it is read from the access token.
	ClientID string `yaml:"client_id"`

	// Environment is "prod" or "stage". If empty it is derived from the
	// access token.
	Environment string `yaml:"environment"`

	// Hosts overrides the ingress and API hosts, e.g. for a local mock.
	Hosts HostsConfig `yaml:"hosts"`

	Journal JournalConfig `yaml:"journal"`
	Retry   RetryConfig   `yaml:"retry"`

	// ProviderID is the default event provider for sending.
	ProviderID string `yaml:"provider_id"`

	// Workspace locates providers and registrations.
	Workspace WorkspaceConfig `yaml:"workspace"`

	Relay RelayConfig `yaml:"relay"`

	// LogLevel is debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level"`
}

// HostsConfig overrides the service hosts. Both must be set together.
type HostsConfig struct {
	Ingress string `yaml:"ingress"`
	API     string `yaml:"api"`
}

// JournalConfig defines the journal to read.
type JournalConfig struct {
	// URL is the journal URL. Required by the commands that read it.
	URL string `yaml:"url"`

	// Latest starts at the newest events.
	Latest bool `yaml:"latest"`

	// Restart is a saved next link to resume from.
	Restart string `yaml:"restart"`

	// Interval is a fixed delay after empty pages and failures. If not
	// specified, Retry-After hints and the 2s default apply.
	Interval Duration `yaml:"interval"`
}

// RetryConfig configures retries of send and management calls.
type RetryConfig struct {
	MaxElapsed     Duration `yaml:"max_elapsed"`
	InitialDelay   Duration `yaml:"initial_delay"`
	RetryAllErrors bool     `yaml:"retry_all_errors"`
	Disabled       bool     `yaml:"disabled"`
}

// WorkspaceConfig locates the workspace that owns providers and
// registrations.
type WorkspaceConfig struct {
	ConsumerOrgID string `yaml:"consumer_org_id"`
	ProjectID     string `yaml:"project_id"`
	WorkspaceID   string `yaml:"workspace_id"`
}

// RelayConfig configures the HTTP relay started by the relay command.
type RelayConfig struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string `yaml:"addr"`

	// Buffer is the number of recent events retained for replay.
	// Defaults to 100.
	Buffer int `yaml:"buffer"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Source supplies values that override the file, keyed by the dotted
// YAML path ("journal.url"). A *viper.Viper satisfies it.
type Source interface {
	IsSet(key string) bool
	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetDuration(key string) time.Duration
}

// Keys read from a [Source].
var (
	stringKeys = map[string]func(*Config) *string{
		"org_id":                    func(c *Config) *string { return &c.OrgID },
		"access_token":              func(c *Config) *string { return &c.AccessToken },
		"client_id":                 func(c *Config) *string { return &c.ClientID },
		"environment":               func(c *Config) *string { return &c.Environment },
		"hosts.ingress":             func(c *Config) *string { return &c.Hosts.Ingress },
		"hosts.api":                 func(c *Config) *string { return &c.Hosts.API },
		"journal.url":               func(c *Config) *string { return &c.Journal.URL },
		"journal.restart":           func(c *Config) *string { return &c.Journal.Restart },
		"provider_id":               func(c *Config) *string { return &c.ProviderID },
		"workspace.consumer_org_id": func(c *Config) *string { return &c.Workspace.ConsumerOrgID },
		"workspace.project_id":      func(c *Config) *string { return &c.Workspace.ProjectID },
		"workspace.workspace_id":    func(c *Config) *string { return &c.Workspace.WorkspaceID },
		"relay.addr":                func(c *Config) *string { return &c.Relay.Addr },
		"log_level":                 func(c *Config) *string { return &c.LogLevel },
	}
	boolKeys = map[string]func(*Config) *bool{
		"journal.latest":         func(c *Config) *bool { return &c.Journal.Latest },
		"retry.retry_all_errors": func(c *Config) *bool { return &c.Retry.RetryAllErrors },
		"retry.disabled":         func(c *Config) *bool { return &c.Retry.Disabled },
	}
	intKeys = map[string]func(*Config) *int{
		"relay.buffer": func(c *Config) *int { return &c.Relay.Buffer },
	}
	durationKeys = map[string]func(*Config) *Duration{
		"journal.interval":    func(c *Config) *Duration { return &c.Journal.Interval },
		"retry.max_elapsed":   func(c *Config) *Duration { return &c.Retry.MaxElapsed },
		"retry.initial_delay": func(c *Config) *Duration { return &c.Retry.InitialDelay },
	}
)

// Keys returns every key a [Source] may override.
func Keys() []string {
	keys := make([]string, 0, len(stringKeys)+len(boolKeys)+len(intKeys)+len(durationKeys))
	for k := range stringKeys {
		keys = append(keys, k)
	}
	for k := range boolKeys {
		keys = append(keys, k)
	}
	for k := range intKeys {
		keys = append(keys, k)
	}
	for k := range durationKeys {
		keys = append(keys, k)
	}
	return keys
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file, then applies
// overrides in order.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string, overrides ...Source) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, overrides...)
}

// Parse parses YAML configuration data, applies overrides in order and
// validates the result. Empty data is valid YAML, so a configuration may
// come entirely from overrides.
func Parse(data []byte, overrides ...Source) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	for _, src := range overrides {
		if err := cfg.apply(src); err != nil {
			return nil, err
		}
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Relay.Addr == "" {
		cfg.Relay.Addr = DefaultRelayAddr
	}
	if cfg.Relay.Buffer == 0 {
		cfg.Relay.Buffer = DefaultRelayBuffer
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expand substitutes environment variables in every string field.
func (c *Config) expand() error {
	for key, field := range stringKeys {
		p := field(c)
		expanded, err := expandEnvVars(*p)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*p = expanded
	}
	return nil
}

func (c *Config) apply(src Source) error {
	if src == nil {
		return nil
	}

	for key, field := range stringKeys {
		if src.IsSet(key) {
			*field(c) = src.GetString(key)
		}
	}
	for key, field := range boolKeys {
		if src.IsSet(key) {
			*field(c) = src.GetBool(key)
		}
	}
	for key, field := range intKeys {
		if src.IsSet(key) {
			*field(c) = src.GetInt(key)
		}
	}
	for key, field := range durationKeys {
		if !src.IsSet(key) {
			continue
		}
		// GetDuration yields 0 for unparseable input; surface the typo
		if raw := src.GetString(key); raw != "" {
			if _, err := time.ParseDuration(raw); err != nil {
				return fmt.Errorf("%s: invalid duration %q", key, raw)
			}
		}
		*field(c) = Duration(src.GetDuration(key))
	}
	return nil
}

// Validate reports the first problem with the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OrgID) == "" {
		return errors.New("org_id is required")
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.New("access_token is required")
	}

	switch c.Environment {
	case "", "prod", "stage":
	default:
		return fmt.Errorf("environment must be prod or stage, got %q", c.Environment)
	}

	if c.Hosts.Ingress != "" || c.Hosts.API != "" {
		if err := validateURL("hosts.ingress", c.Hosts.Ingress); err != nil {
			return err
		}
		if err := validateURL("hosts.api", c.Hosts.API); err != nil {
			return err
		}
	}

	if c.Journal.URL != "" {
		if err := validateURL("journal.url", c.Journal.URL); err != nil {
			return err
		}
	}
	if c.Journal.Restart != "" {
		if err := validateURL("journal.restart", c.Journal.Restart); err != nil {
			return err
		}
	}
	if iv := c.Journal.Interval.Duration(); iv != 0 && iv < minInterval {
		return fmt.Errorf("journal.interval must be at least %s, got %s", minInterval, iv)
	}

	if c.Retry.MaxElapsed < 0 {
		return fmt.Errorf("retry.max_elapsed cannot be negative, got %s", c.Retry.MaxElapsed.Duration())
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("retry.initial_delay cannot be negative, got %s", c.Retry.InitialDelay.Duration())
	}

	if c.Relay.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Relay.Addr); err != nil {
			return fmt.Errorf("relay.addr: %w", err)
		}
	}
	if c.Relay.Buffer < 0 {
		return fmt.Errorf("relay.buffer cannot be negative, got %d", c.Relay.Buffer)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
}

func validateURL(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(v)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", field, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%s: url must have a scheme (http:// or https://)", field)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: url scheme must be http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: url must have a host", field)
	}
	return nil
}

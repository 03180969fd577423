package journalwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpalmerr/journalwatch/internal/retry"
)

// RetryOptions configures retries of management and send calls. The zero
// value retries transport errors and 5xx responses for up to a minute,
// starting at 100ms and doubling.
type RetryOptions = retry.Options

// Defaults holds values used when a call does not specify them.
type Defaults struct {
	// ProviderID is the event provider used by [Client.SendEvent] and
	// [Client.RegisterEventType].
	ProviderID string

	// ProviderMetadata is the metadata sent with [Client.RegisterProvider].
	ProviderMetadata string

	// ConsumerOrgID, ProjectID and WorkspaceID locate the workspace that
	// owns providers and registrations.
	ConsumerOrgID string
	ProjectID     string
	WorkspaceID   string
}

// clientConfig holds mutable state during Client construction.
type clientConfig struct {
	httpClient     *http.Client
	logger         *slog.Logger
	retry          retry.Options
	hosts          *Hosts
	clientID       string
	env            Environment
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	defaults       Defaults
}

// Option is a function that configures a [Client] during construction.
//
// Options return an error if validation fails.
type Option func(*clientConfig) error

// WithHTTPClient sets the HTTP client used for every request.
//
// The client's Timeout bounds each attempt. Defaults to a pooled client with
// a 30 second timeout.
//
// Returns an error if hc is nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *clientConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the client and its watchers.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithRetry sets the default retry options of management and send calls.
// Journal reads are never retried; the watcher is the retry loop.
//
// Example:
//
//	client, err := journalwatch.New(org, token,
//	    journalwatch.WithRetry(journalwatch.RetryOptions{
//	        MaxElapsed:   10 * time.Second,
//	        InitialDelay: 250 * time.Millisecond,
//	    }),
//	)
//
// Returns an error if a duration is negative.
func WithRetry(o RetryOptions) Option {
	return func(cfg *clientConfig) error {
		if o.MaxElapsed < 0 || o.InitialDelay < 0 {
			return errors.New("retry durations must not be negative")
		}
		cfg.retry = o
		return nil
	}
}

// WithHosts overrides the service hosts, e.g. to point at a local mock.
//
// Returns an error if either host is not an absolute http(s) URL.
func WithHosts(h Hosts) Option {
	return func(cfg *clientConfig) error {
		for name, v := range map[string]string{"ingress": h.Ingress, "api": h.API} {
			if err := validateBaseURL(v); err != nil {
				return fmt.Errorf("%s host: %w", name, err)
			}
		}
		cfg.hosts = &h
		return nil
	}
}

// WithClientID sets the API key explicitly, so the access token is not
// decoded for it.
//
// Returns an error if id is empty.
func WithClientID(id string) Option {
	return func(cfg *clientConfig) error {
		if id == "" {
			return errors.New("client id cannot be empty")
		}
		cfg.clientID = id
		return nil
	}
}

// WithEnvironment selects the environment instead of deriving it from the
// access token.
//
// Returns an error for an unknown environment.
func WithEnvironment(env Environment) Option {
	return func(cfg *clientConfig) error {
		if env != Prod && env != Stage {
			return fmt.Errorf("unknown environment %q", env)
		}
		cfg.env = env
		return nil
	}
}

// WithTelemetry sets the OpenTelemetry providers. Nil providers fall back
// to the global ones.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(cfg *clientConfig) error {
		cfg.tracerProvider = tp
		cfg.meterProvider = mp
		return nil
	}
}

// WithDefaults sets the provider and workspace defaults.
func WithDefaults(d Defaults) Option {
	return func(cfg *clientConfig) error {
		cfg.defaults = d
		return nil
	}
}

func validateBaseURL(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) URL", v)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", v)
	}
	return nil
}

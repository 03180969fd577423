package config

import (
	"errors"
	"log/slog"

	"github.com/jpalmerr/journalwatch"
)

// ErrNoJournal is returned by [WatchOptions] when no journal URL is
// configured.
var ErrNoJournal = errors.New("journal.url is required")

// BuildClient converts parsed configuration into an SDK Client.
//
// extra options are applied after the ones derived from cfg, so they win.
func BuildClient(cfg *Config, logger *slog.Logger, extra ...journalwatch.Option) (*journalwatch.Client, error) {
	var opts []journalwatch.Option

	if logger != nil {
		opts = append(opts, journalwatch.WithLogger(logger))
	}
	if cfg.ClientID != "" {
		opts = append(opts, journalwatch.WithClientID(cfg.ClientID))
	}
	if cfg.Environment != "" {
		opts = append(opts, journalwatch.WithEnvironment(journalwatch.Environment(cfg.Environment)))
	}
	if cfg.Hosts.Ingress != "" || cfg.Hosts.API != "" {
		opts = append(opts, journalwatch.WithHosts(journalwatch.Hosts{
			Ingress: cfg.Hosts.Ingress,
			API:     cfg.Hosts.API,
		}))
	}

	opts = append(opts,
		journalwatch.WithRetry(buildRetry(cfg.Retry)),
		journalwatch.WithDefaults(journalwatch.Defaults{
			ProviderID:    cfg.ProviderID,
			ConsumerOrgID: cfg.Workspace.ConsumerOrgID,
			ProjectID:     cfg.Workspace.ProjectID,
			WorkspaceID:   cfg.Workspace.WorkspaceID,
		}),
	)
	opts = append(opts, extra...)

	return journalwatch.New(cfg.OrgID, cfg.AccessToken, opts...)
}

func buildRetry(rc RetryConfig) journalwatch.RetryOptions {
	return journalwatch.RetryOptions{
		MaxElapsed:     rc.MaxElapsed.Duration(),
		InitialDelay:   rc.InitialDelay.Duration(),
		RetryAllErrors: rc.RetryAllErrors,
		Disabled:       rc.Disabled,
	}
}

// WatchOptions converts the journal section into watcher options.
//
// Returns [ErrNoJournal] if no journal URL is configured.
func WatchOptions(cfg *Config) (string, []journalwatch.WatchOption, error) {
	jc := cfg.Journal
	if jc.URL == "" {
		return "", nil, ErrNoJournal
	}

	var opts []journalwatch.WatchOption
	if jc.Latest {
		opts = append(opts, journalwatch.WithLatest(true))
	}
	if jc.Restart != "" {
		opts = append(opts, journalwatch.WithRestart(jc.Restart))
	}
	if jc.Interval != 0 {
		opts = append(opts, journalwatch.WithInterval(jc.Interval.Duration()))
	}

	return jc.URL, opts, nil
}

package journalwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jpalmerr/journalwatch/internal/poller"
	"github.com/jpalmerr/journalwatch/internal/retry"
	"github.com/jpalmerr/journalwatch/internal/telemetry"
)

// Environment selects the set of hosts a [Client] talks to.
type Environment string

// Known environments.
const (
	Prod  Environment = "prod"
	Stage Environment = "stage"
)

// stageIssuer is the "as" claim of access tokens issued by the stage IMS.
const stageIssuer = "ims-na1-stg1"

// Hosts are the base URLs of the services a [Client] calls.
type Hosts struct {
	// Ingress receives published events.
	Ingress string

	// API serves provider, event type and registration management.
	API string
}

// HostsFor returns the well-known hosts of env.
func HostsFor(env Environment) Hosts {
	if env == Stage {
		return Hosts{
			Ingress: "https://eg-ingress-stage.adobe.io",
			API:     "https://api-stage.adobe.io",
		}
	}
	return Hosts{
		Ingress: "https://eg-ingress.adobe.io",
		API:     "https://api.adobe.io",
	}
}

// Client talks to the event journal and its management APIs on behalf of
// one organization.
//
// A Client is created with [New] and is safe for concurrent use. The
// typical lifecycle is:
//
//	client, err := journalwatch.New(orgID, accessToken)
//	if err != nil {
//	    slog.Error("failed to create client", "error", err)
//	    os.Exit(1)
//	}
//	defer client.Close()
//
//	w, err := client.Watch(journalURL,
//	    journalwatch.WithEventHandler(func(ev journalwatch.Event) {
//	        slog.Info("event", "id", ev.ID, "code", ev.Code)
//	    }),
//	)
//	...
//	_ = w.Stop(ctx)
type Client struct {
	orgID       string
	accessToken string
	clientID    string
	env         Environment
	hosts       Hosts
	defaults    Defaults

	http     *poller.Client
	retry    retry.Options
	logger   *slog.Logger
	recorder *telemetry.Recorder
}

// New creates a [Client] for orgID, authenticating with accessToken.
//
// Unless [WithClientID] is given, the token is decoded (without signature
// verification) to find its client_id, which is sent as the API key. The
// token's issuer also selects production or stage hosts, unless
// [WithEnvironment] or [WithHosts] says otherwise.
//
// Returns an error if orgID or accessToken is empty, if the token cannot be
// decoded and no client ID was given, or if any option is invalid.
func New(orgID, accessToken string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, errors.New("org id is required")
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("access token is required")
	}

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	clientID := cfg.clientID
	env := cfg.env
	if clientID == "" || env == "" {
		claims, err := decodeToken(accessToken)
		switch {
		case err != nil && clientID == "":
			return nil, err
		case err == nil:
			if clientID == "" {
				clientID = claims.clientID
			}
			if env == "" {
				env = claims.env
			}
		}
	}
	if env == "" {
		env = Prod
	}

	hosts := HostsFor(env)
	if cfg.hosts != nil {
		hosts = *cfg.hosts
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := telemetry.Provider{
		TracerProvider: cfg.tracerProvider,
		MeterProvider:  cfg.meterProvider,
	}

	// a caller-supplied client is used as is
	hc := cfg.httpClient
	if hc == nil {
		hc = poller.DefaultHTTPClient()
		hc.Transport = provider.Transport(hc.Transport)
	}

	return &Client{
		orgID:       orgID,
		accessToken: accessToken,
		clientID:    clientID,
		env:         env,
		hosts:       hosts,
		defaults:    cfg.defaults,
		http:        poller.NewClient(hc),
		retry:       cfg.retry,
		logger:      logger,
		recorder:    provider.Recorder(attribute.String("ims.org_id", orgID)),
	}, nil
}

// OrgID returns the organization the client acts for.
func (c *Client) OrgID() string { return c.orgID }

// ClientID returns the API key sent with every request.
func (c *Client) ClientID() string { return c.clientID }

// Environment returns the environment the client was configured for.
func (c *Client) Environment() Environment { return c.env }

// Hosts returns the service hosts in use.
func (c *Client) Hosts() Hosts { return c.hosts }

// Close releases idle connections. The client remains usable.
func (c *Client) Close() {
	c.http.Close()
}

// headers are sent with every journal and management request.
func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Authorization": "Bearer " + c.accessToken,
		"x-ims-org-id":  c.orgID,
	}
	if c.clientID != "" {
		h["x-api-key"] = c.clientID
	}
	return h
}

type tokenClaims struct {
	clientID string
	env      Environment
}

// decodeToken reads the claims of an IMS access token without verifying
// its signature. The token was issued to us; we only need its contents.
func decodeToken(token string) (tokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenClaims{}, fmt.Errorf("decode access token: %w", err)
	}

	id, _ := claims["client_id"].(string)
	if id == "" {
		return tokenClaims{}, errors.New("decode access token: no client_id claim")
	}

	env := Prod
	if as, _ := claims["as"].(string); as == stageIssuer {
		env = Stage
	}

	return tokenClaims{clientID: id, env: env}, nil
}

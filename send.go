package journalwatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jpalmerr/journalwatch/internal/poller"
	"github.com/jpalmerr/journalwatch/internal/retry"
)

// OutboundEvent is an event to publish.
type OutboundEvent struct {
	// ProviderID is the sending provider. Defaults to Defaults.ProviderID.
	ProviderID string

	// Code is the event type code. Required.
	Code string

	// Payload is marshalled to JSON. A nil payload is sent as {}.
	Payload any
}

// ingressEvent is the wire format of the event ingress.
type ingressEvent struct {
	UserGUID   string `json:"user_guid"`
	ProviderID string `json:"provider_id"`
	EventCode  string `json:"event_code"`
	Event      string `json:"event"`
}

type sendConfig struct {
	retry retry.Options
}

// SendOption configures a single [Client.SendEvent] call.
type SendOption func(*sendConfig)

// WithSendRetry overrides the client's retry options for this call.
func WithSendRetry(o RetryOptions) SendOption {
	return func(cfg *sendConfig) {
		cfg.retry = o
	}
}

// WithoutRetry sends the event exactly once.
func WithoutRetry() SendOption {
	return func(cfg *sendConfig) {
		cfg.retry = retry.Options{Disabled: true}
	}
}

// SendEvent publishes ev through the event ingress.
//
// Transport errors, 5xx responses and 204 responses are retried: the
// ingress answers 204 when nobody is registered for the event yet, and
// drops it. Only a 200 response is success.
func (c *Client) SendEvent(ctx context.Context, ev OutboundEvent, opts ...SendOption) error {
	cfg := sendConfig{retry: c.retry}
	for _, opt := range opts {
		opt(&cfg)
	}

	providerID := ev.ProviderID
	if providerID == "" {
		providerID = c.defaults.ProviderID
	}
	if providerID == "" {
		return ErrMissingProvider
	}
	if strings.TrimSpace(ev.Code) == "" {
		return errors.New("event code is required")
	}

	payload := ev.Payload
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	body, err := json.Marshal(ingressEvent{
		UserGUID:   c.orgID,
		ProviderID: providerID,
		EventCode:  ev.Code,
		Event:      base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, span := c.recorder.StartSpan(ctx, "event.send",
		attribute.String("event.code", ev.Code),
		attribute.String("event.provider_id", providerID),
	)
	defer span.End()

	policy := c.policy(ctx, "send", cfg.retry, retry.SendClassifier)
	endpoint := strings.TrimRight(c.hosts.Ingress, "/") + "/api/events"

	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (*http.Response, error) {
		req, err := c.http.BuildRequest(ctx, http.MethodPost, endpoint, c.headers(), body)
		if err != nil {
			return nil, retry.InvalidRequest(err)
		}
		return c.http.Send(req)
	})
	if err == nil {
		r := poller.Read(resp)
		switch {
		case r.StatusCode == http.StatusOK:
			c.logger.Debug("event sent", "code", ev.Code, "provider_id", providerID)
			return nil
		case r.StatusCode == http.StatusNoContent:
			err = &retry.TransientFailure{StatusCode: r.StatusCode, Status: retry.StatusLine(resp), Attempts: 1}
		default:
			err = statusError(resp, r.Body)
		}
	}

	c.recorder.Error(ctx, span, string(retry.Classify(err)), err)
	c.logger.Warn("event send failed", "code", ev.Code, "provider_id", providerID, "error", err)
	return fmt.Errorf("send event %q: %w", ev.Code, err)
}

// policy builds the retry policy of one call, counting and logging every
// retry.
func (c *Client) policy(ctx context.Context, op string, o retry.Options, base retry.Classifier) retry.Policy {
	p := o.Policy(base)
	p.Notify = func(attempt int, wait time.Duration, err error) {
		c.recorder.Retry(ctx, op)
		c.logger.Debug("retrying request",
			"operation", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}
	return p
}

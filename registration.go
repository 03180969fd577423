package journalwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jpalmerr/journalwatch/internal/poller"
	"github.com/jpalmerr/journalwatch/internal/retry"
)

// Provider is a registered event provider.
type Provider struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	DocsURL     string `json:"docs_url,omitempty"`
	Metadata    string `json:"provider_metadata,omitempty"`
	InstanceID  string `json:"instance_id,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
}

// ProviderInput describes a provider to register.
type ProviderInput struct {
	Label       string
	Description string
	DocsURL     string

	// Metadata defaults to Defaults.ProviderMetadata.
	Metadata   string
	InstanceID string
}

// ProviderResult is the outcome of [Client.RegisterProvider]. When the
// workspace already has the provider, Exists is set and Provider is empty.
type ProviderResult struct {
	Provider
	Exists bool
}

// EventType describes an event type to register for a provider.
type EventType struct {
	// ProviderID defaults to Defaults.ProviderID.
	ProviderID  string
	Code        string
	Label       string
	Description string
}

// EventMetadata is a registered event type.
type EventMetadata struct {
	EventCode   string `json:"event_code"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// JournalInput describes a journal registration to create.
type JournalInput struct {
	Name        string
	Description string

	// EventCodes are the event types the journal receives, all from
	// ProviderID (default Defaults.ProviderID).
	EventCodes []string
	ProviderID string
}

// Registration is a journal (or webhook) registration.
type Registration struct {
	ID          string `json:"registration_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ClientID    string `json:"client_id"`
	Delivery    string `json:"delivery_type"`
	Enabled     bool   `json:"enabled"`

	// JournalURL is where the registration's events can be read.
	JournalURL string `json:"-"`
}

// UnmarshalJSON lifts the journal link out of the HAL links.
func (r *Registration) UnmarshalJSON(data []byte) error {
	type plain Registration
	var wire struct {
		plain
		Links map[string]struct {
			Href string `json:"href"`
		} `json:"_links"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = Registration(wire.plain)
	r.JournalURL = wire.Links["rel:events"].Href
	return nil
}

type eventOfInterest struct {
	EventCode  string `json:"event_code"`
	ProviderID string `json:"provider_id"`
}

// RegisterProvider creates an event provider in the configured workspace.
// A conflict (the provider exists) is reported as
// ProviderResult{Exists: true} rather than an error.
func (c *Client) RegisterProvider(ctx context.Context, in ProviderInput) (ProviderResult, error) {
	base, err := c.workspaceURL()
	if err != nil {
		return ProviderResult{}, err
	}
	if strings.TrimSpace(in.Label) == "" {
		return ProviderResult{}, errors.New("provider label is required")
	}

	metadata := in.Metadata
	if metadata == "" {
		metadata = c.defaults.ProviderMetadata
	}

	body := map[string]string{
		"label":             in.Label,
		"description":       in.Description,
		"docs_url":          in.DocsURL,
		"provider_metadata": metadata,
		"instance_id":       in.InstanceID,
	}
	for k, v := range body {
		if v == "" {
			delete(body, k)
		}
	}

	var p Provider
	err = c.call(ctx, "provider.register", http.MethodPost, base+"/providers", body, &p)

	var terminal *TerminalFailure
	if errors.As(err, &terminal) && terminal.StatusCode == http.StatusConflict {
		c.logger.Info("event provider already exists",
			"consumer_org_id", c.defaults.ConsumerOrgID,
			"project_id", c.defaults.ProjectID,
			"workspace_id", c.defaults.WorkspaceID,
		)
		return ProviderResult{Exists: true}, nil
	}
	if err != nil {
		return ProviderResult{}, err
	}
	return ProviderResult{Provider: p}, nil
}

// ListProviders returns the providers of the configured consumer org.
func (c *Client) ListProviders(ctx context.Context) ([]Provider, error) {
	if c.defaults.ConsumerOrgID == "" {
		return nil, ErrMissingWorkspace
	}

	endpoint := fmt.Sprintf("%s/events/%s/providers",
		strings.TrimRight(c.hosts.API, "/"),
		url.PathEscape(c.defaults.ConsumerOrgID),
	)

	var out struct {
		Embedded struct {
			Providers []Provider `json:"providers"`
		} `json:"_embedded"`
	}
	if err := c.call(ctx, "provider.list", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Embedded.Providers, nil
}

// DeleteProvider deletes the provider with the given id.
func (c *Client) DeleteProvider(ctx context.Context, providerID string) error {
	base, err := c.workspaceURL()
	if err != nil {
		return err
	}
	if providerID == "" {
		return ErrMissingProvider
	}

	return c.call(ctx, "provider.delete", http.MethodDelete, base+"/providers/"+url.PathEscape(providerID), nil, nil)
}

// RegisterEventType registers an event type for a provider.
func (c *Client) RegisterEventType(ctx context.Context, et EventType) (EventMetadata, error) {
	base, err := c.workspaceURL()
	if err != nil {
		return EventMetadata{}, err
	}

	providerID := et.ProviderID
	if providerID == "" {
		providerID = c.defaults.ProviderID
	}
	if providerID == "" {
		return EventMetadata{}, ErrMissingProvider
	}
	if strings.TrimSpace(et.Code) == "" {
		return EventMetadata{}, errors.New("event code is required")
	}

	body := EventMetadata{EventCode: et.Code, Label: et.Label, Description: et.Description}
	if body.Label == "" {
		body.Label = et.Code
	}

	var out EventMetadata
	endpoint := base + "/providers/" + url.PathEscape(providerID) + "/eventmetadata"
	if err := c.call(ctx, "eventtype.register", http.MethodPost, endpoint, body, &out); err != nil {
		return EventMetadata{}, err
	}
	return out, nil
}

// CreateJournal creates a journal registration for the client's
// credentials. The returned registration's JournalURL can be passed to
// [Client.Watch].
func (c *Client) CreateJournal(ctx context.Context, in JournalInput) (Registration, error) {
	base, err := c.workspaceURL()
	if err != nil {
		return Registration{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return Registration{}, errors.New("journal name is required")
	}

	providerID := in.ProviderID
	if providerID == "" {
		providerID = c.defaults.ProviderID
	}
	if providerID == "" && len(in.EventCodes) > 0 {
		return Registration{}, ErrMissingProvider
	}

	interests := make([]eventOfInterest, 0, len(in.EventCodes))
	for _, code := range in.EventCodes {
		interests = append(interests, eventOfInterest{EventCode: code, ProviderID: providerID})
	}

	body := struct {
		ClientID         string            `json:"client_id"`
		Name             string            `json:"name"`
		Description      string            `json:"description"`
		EventsOfInterest []eventOfInterest `json:"events_of_interest"`
		DeliveryType     string            `json:"delivery_type"`
		Enabled          bool              `json:"enabled"`
	}{
		ClientID:         c.clientID,
		Name:             in.Name,
		Description:      in.Description,
		EventsOfInterest: interests,
		DeliveryType:     "journal",
		Enabled:          true,
	}

	var out Registration
	if err := c.call(ctx, "journal.create", http.MethodPost, base+"/registrations", body, &out); err != nil {
		return Registration{}, err
	}
	return out, nil
}

// ListRegistrations returns the registrations of the configured workspace.
func (c *Client) ListRegistrations(ctx context.Context) ([]Registration, error) {
	base, err := c.workspaceURL()
	if err != nil {
		return nil, err
	}

	var out struct {
		Embedded struct {
			Registrations []Registration `json:"registrations"`
		} `json:"_embedded"`
	}
	if err := c.call(ctx, "registration.list", http.MethodGet, base+"/registrations", nil, &out); err != nil {
		return nil, err
	}
	return out.Embedded.Registrations, nil
}

// DeleteJournal deletes a journal registration.
func (c *Client) DeleteJournal(ctx context.Context, registrationID string) error {
	base, err := c.workspaceURL()
	if err != nil {
		return err
	}
	if registrationID == "" {
		return errors.New("registration id is required")
	}

	return c.call(ctx, "journal.delete", http.MethodDelete, base+"/registrations/"+url.PathEscape(registrationID), nil, nil)
}

func (c *Client) workspaceURL() (string, error) {
	d := c.defaults
	if d.ConsumerOrgID == "" || d.ProjectID == "" || d.WorkspaceID == "" {
		return "", ErrMissingWorkspace
	}

	return fmt.Sprintf("%s/events/%s/%s/%s",
		strings.TrimRight(c.hosts.API, "/"),
		url.PathEscape(d.ConsumerOrgID),
		url.PathEscape(d.ProjectID),
		url.PathEscape(d.WorkspaceID),
	), nil
}

// call performs one management request under the client's retry options.
// Any 2xx response is success; its body, if any, is decoded into out.
func (c *Client) call(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
	}

	ctx, span := c.recorder.StartSpan(ctx, op,
		attribute.String("http.request.method", method),
		attribute.String("url.full", endpoint),
	)
	defer span.End()

	policy := c.policy(ctx, op, c.retry, retry.DefaultClassifier)
	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (*http.Response, error) {
		req, err := c.http.BuildRequest(ctx, method, endpoint, c.headers(), body)
		if err != nil {
			return nil, retry.InvalidRequest(err)
		}
		req.Header.Set("Accept", "application/hal+json")
		return c.http.Send(req)
	})

	if err == nil {
		r := poller.Read(resp)
		switch {
		case r.Error != nil:
			err = &retry.TerminalFailure{StatusCode: r.StatusCode, Status: retry.StatusLine(resp), Err: r.Error}
		case r.StatusCode < 200 || r.StatusCode > 299:
			err = statusError(resp, r.Body)
		case out != nil && len(r.Body) > 0:
			if uerr := json.Unmarshal(r.Body, out); uerr != nil {
				err = &retry.TerminalFailure{
					StatusCode: r.StatusCode,
					Status:     retry.StatusLine(resp),
					Err:        fmt.Errorf("malformed response: %w", uerr),
				}
			}
		}
	}

	if err != nil {
		c.recorder.Error(ctx, span, string(retry.Classify(err)), err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

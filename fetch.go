package journalwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jpalmerr/journalwatch/internal/header"
	"github.com/jpalmerr/journalwatch/internal/poller"
	"github.com/jpalmerr/journalwatch/internal/retry"
	"github.com/jpalmerr/journalwatch/internal/telemetry"
)

// PageQuery holds the optional query parameters of a journal read. Zero
// fields are not sent.
type PageQuery struct {
	// Latest starts reading at the newest events.
	Latest bool

	// Seek starts reading at a relative time, e.g. "-PT1H".
	Seek string

	// Limit caps the number of events returned.
	Limit int
}

func (q PageQuery) values() map[string]string {
	v := map[string]string{"seek": q.Seek}
	if q.Latest {
		v["latest"] = "true"
	}
	if q.Limit > 0 {
		v["limit"] = strconv.Itoa(q.Limit)
	}
	return v
}

// Page is one journal response.
type Page struct {
	// Events in response order. Empty when the journal had nothing new.
	Events []Event

	// Next is the absolute URL to read next, or empty if the response had
	// no rel="next" link.
	Next string

	// RetryAfter is the server's wait hint, valid when HasRetryAfter is
	// set. It is negative for a date in the past.
	RetryAfter    time.Duration
	HasRetryAfter bool
}

// FetchPage reads one page of the journal at journalURL, which may be the
// journal itself or a next link from a previous page.
//
// The read is a single attempt. A 200 response is decoded as
// {"events": [...]}; a 204 yields an empty page. Any other status fails
// with a [*TransientFailure] (5xx) or [*TerminalFailure] (everything else);
// a malformed body fails with a [*TerminalFailure] and a missing response
// with a [*NetworkFailure].
func (c *Client) FetchPage(ctx context.Context, journalURL string, q PageQuery) (Page, error) {
	u, err := appendQuery(journalURL, q.values())
	if err != nil {
		return Page{}, err
	}

	raw, err := c.fetchRaw(ctx, u)
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Events:        make([]Event, len(raw.Events)),
		Next:          raw.Next,
		RetryAfter:    raw.RetryAfter,
		HasRetryAfter: raw.HasRetryAfter,
	}
	for i, ev := range raw.Events {
		page.Events[i] = decodeEvent(ev)
	}
	return page, nil
}

// fetchRaw implements [poller.Fetcher] for the client's watchers.
func (c *Client) fetchRaw(ctx context.Context, pageURL string) (poller.Page, error) {
	ctx, span := c.recorder.StartSpan(ctx, "journal.fetch", attribute.String("journal.url", pageURL))
	defer span.End()

	page, err := c.readPage(ctx, pageURL)
	if err != nil {
		telemetry.Fail(span, err)
		return poller.Page{}, err
	}

	span.SetAttributes(attribute.Int("journal.events", len(page.Events)))
	return page, nil
}

func (c *Client) readPage(ctx context.Context, pageURL string) (poller.Page, error) {
	resp, err := retry.Do(ctx, retry.Disabled(), func(ctx context.Context) (*http.Response, error) {
		req, err := c.http.BuildRequest(ctx, http.MethodGet, pageURL, c.headers(), nil)
		if err != nil {
			return nil, retry.InvalidRequest(err)
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Send(req)
	})
	if err != nil {
		return poller.Page{}, err
	}

	r := poller.Read(resp)
	if r.Error != nil {
		return poller.Page{}, &retry.TerminalFailure{StatusCode: r.StatusCode, Status: retry.StatusLine(resp), Err: r.Error}
	}

	var page poller.Page
	switch r.StatusCode {
	case http.StatusOK:
		var body struct {
			Events []json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(r.Body, &body); err != nil {
			return poller.Page{}, &retry.TerminalFailure{
				StatusCode: r.StatusCode,
				Status:     retry.StatusLine(resp),
				Err:        fmt.Errorf("malformed journal page: %w", err),
			}
		}
		page.Events = body.Events
	case http.StatusNoContent:
	default:
		return poller.Page{}, statusError(resp, r.Body)
	}

	base := r.URL
	if base == "" {
		base = pageURL
	}
	page.Next = header.ParseLink(base, r.Header.Get("Link"))["next"]
	page.RetryAfter, page.HasRetryAfter = header.ParseRetryAfter(r.Header.Get("Retry-After"), time.Now())

	return page, nil
}

// statusError converts an unexpected response into a failure: 5xx into a
// [*TransientFailure], everything else into a [*TerminalFailure] carrying
// a snippet of the body.
func statusError(resp *http.Response, body []byte) error {
	status := retry.StatusLine(resp)

	if resp.StatusCode >= 500 {
		return &retry.TransientFailure{StatusCode: resp.StatusCode, Status: status, Attempts: 1}
	}

	f := &retry.TerminalFailure{StatusCode: resp.StatusCode, Status: status}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		if len(msg) > 256 {
			msg = msg[:256]
		}
		f.Err = errors.New(msg)
	}
	return f
}

// appendQuery adds params to rawURL, skipping empty values and keeping the
// existing query.
func appendQuery(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid journal url %q: %w", rawURL, err)
	}

	q := u.Query()
	changed := false
	for k, v := range params {
		if v == "" {
			continue
		}
		q.Set(k, v)
		changed = true
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

package journalwatch

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event is one journal event. Payload is the complete raw event object as
// received; ID and Code are lifted out of it for convenience and may be
// empty.
type Event struct {
	// ID is taken from the "id" field, falling back to "position".
	ID string

	// Code is taken from the "code", "type" or "event_code" field.
	Code string

	// Payload is the raw event.
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

func decodeEvent(raw json.RawMessage) Event {
	ev := Event{Payload: raw}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ev
	}

	ev.ID = firstString(fields, "id", "position")
	ev.Code = firstString(fields, "code", "type", "event_code")
	return ev
}

// firstString returns the first of keys holding a string or number.
func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}

		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}

		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&n); err == nil {
			return strings.TrimSpace(n.String())
		}
	}
	return ""
}

package model

import (
	"encoding/json"
	"time"
)

// Action classifies a normalized event. The set is closed.
type Action string

const (
	ActionPush        Action = "push"
	ActionPullRequest Action = "pull_request"
	ActionMerge       Action = "merge"
)

// TimestampLayout renders UTC instants with an explicit "+00:00" offset and
// fractional seconds only when they are non-zero.
const TimestampLayout = "2006-01-02T15:04:05.999999-07:00"

// Event is the canonical record every accepted webhook is mapped to.
type Event struct {
	ID         string
	RequestID  string
	Author     string
	Action     Action
	FromBranch *string
	ToBranch   string
	Timestamp  time.Time
}

type eventJSON struct {
	ID         string  `json:"id,omitempty"`
	RequestID  string  `json:"request_id"`
	Author     string  `json:"author"`
	Action     Action  `json:"action"`
	FromBranch *string `json:"from_branch"`
	ToBranch   string  `json:"to_branch"`
	Timestamp  string  `json:"timestamp"`
}

// FormatTimestamp returns the ISO-8601 wire form of t.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// MarshalJSON emits the wire shape used by every API response and published message.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:         e.ID,
		RequestID:  e.RequestID,
		Author:     e.Author,
		Action:     e.Action,
		FromBranch: e.FromBranch,
		ToBranch:   e.ToBranch,
		Timestamp:  FormatTimestamp(e.Timestamp),
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return err
	}
	*e = Event{
		ID:         raw.ID,
		RequestID:  raw.RequestID,
		Author:     raw.Author,
		Action:     raw.Action,
		FromBranch: raw.FromBranch,
		ToBranch:   raw.ToBranch,
		Timestamp:  ts.UTC(),
	}
	return nil
}

// Fields returns the record as a flat parameter map, with a null from_branch
// rendered as an empty string.
func (e Event) Fields() map[string]interface{} {
	from := ""
	if e.FromBranch != nil {
		from = *e.FromBranch
	}
	return map[string]interface{}{
		"id":          e.ID,
		"request_id":  e.RequestID,
		"author":      e.Author,
		"action":      string(e.Action),
		"from_branch": from,
		"to_branch":   e.ToBranch,
		"timestamp":   FormatTimestamp(e.Timestamp),
	}
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package worker

import (
	"encoding/json"

	"githubevents/pkg/model"
)

// MetadataDriver names the bus a message arrived on.
const MetadataDriver = "driver"

// Delivery is a stored event received from the bus.
type Delivery struct {
	Topic string
	// Driver is the bus the message arrived on, for example kafka.
	Driver string
	// Metadata carries action, request_id and event_id as published.
	Metadata map[string]string
	Event    model.Event
	Payload  json.RawMessage
}

package worker

import (
	"encoding/json"
	"fmt"

	"githubevents/internal"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Codec is an interface for decoding bus messages into a Delivery.
type Codec interface {
	// Decode transforms a Watermill message into a Delivery.
	Decode(topic string, msg *message.Message) (*Delivery, error)
}

// DefaultCodec decodes the JSON record written by the webhook server.
type DefaultCodec struct{}

// Decode unmarshals a Watermill message into a Delivery. The record id falls
// back to the event_id metadata when the body omits it.
func (DefaultCodec) Decode(topic string, msg *message.Message) (*Delivery, error) {
	d := &Delivery{
		Topic:    topic,
		Driver:   msg.Metadata.Get(MetadataDriver),
		Metadata: make(map[string]string, len(msg.Metadata)),
		Payload:  json.RawMessage(msg.Payload),
	}
	for key, value := range msg.Metadata {
		d.Metadata[key] = value
	}
	if err := json.Unmarshal(msg.Payload, &d.Event); err != nil {
		return nil, fmt.Errorf("decode %s message %s: %w", topic, msg.UUID, err)
	}
	if d.Event.ID == "" {
		d.Event.ID = msg.Metadata.Get(internal.MetadataEventID)
	}
	return d, nil
}

package worker

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// MiddlewareFromWatermill runs a watermill handler middleware, such as
// middleware.Recoverer or middleware.Timeout, around a worker handler. The
// middleware sees a copy of the delivery as a message.
func MiddlewareFromWatermill(m message.HandlerMiddleware) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, d *Delivery) error {
			msg := message.NewMessage(d.Event.ID, message.Payload(d.Payload))
			for key, value := range d.Metadata {
				msg.Metadata.Set(key, value)
			}
			msg.SetContext(ctx)
			_, err := m(func(msg *message.Message) ([]*message.Message, error) {
				return nil, next(msg.Context(), d)
			})(msg)
			return err
		}
	}
}

package worker

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Option configures a Worker.
type Option func(*Worker)

// WithSubscriber sets the bus messages are read from.
func WithSubscriber(sub message.Subscriber) Option {
	return func(w *Worker) { w.subscriber = sub }
}

// WithTopics subscribes to topics that have no topic handler of their own,
// typically every topic the notification rules emit.
func WithTopics(topics ...string) Option {
	return func(w *Worker) { w.topics = append(w.topics, topics...) }
}

// WithConcurrency sets the size of the handler pool. Values below one are ignored.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithCodec(c Codec) Option {
	return func(w *Worker) {
		if c != nil {
			w.codec = c
		}
	}
}

// WithMiddleware wraps every handler, first argument outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(w *Worker) { w.middleware = append(w.middleware, mw...) }
}

func WithErrorPolicy(p ErrorPolicy) Option {
	return func(w *Worker) {
		if p != nil {
			w.policy = p
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithListener(l Listener) Option {
	return func(w *Worker) { w.listeners = append(w.listeners, l) }
}

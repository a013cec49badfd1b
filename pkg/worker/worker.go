package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"githubevents/pkg/model"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Worker consumes published event records. A delivery goes to the handler of
// its topic, then to the handler of its action, then to the catch-all handler.
type Worker struct {
	subscriber  message.Subscriber
	codec       Codec
	policy      ErrorPolicy
	logger      *zap.Logger
	concurrency int
	topics      []string
	middleware  []Middleware
	listeners   []Listener

	byTopic  map[string]Handler
	byAction map[model.Action]Handler
	fallback Handler
}

type inbound struct {
	topic string
	msg   *message.Message
}

// New creates a worker. Without options it decodes with DefaultCodec, handles
// one message at a time and redelivers failed messages.
func New(opts ...Option) *Worker {
	w := &Worker{
		codec:       DefaultCodec{},
		policy:      RedeliverOnError{},
		logger:      zap.NewNop(),
		concurrency: 1,
		byTopic:     make(map[string]Handler),
		byAction:    make(map[model.Action]Handler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleTopic routes a topic to h and subscribes to it.
func (w *Worker) HandleTopic(topic string, h Handler) {
	if topic == "" || h == nil {
		return
	}
	w.byTopic[topic] = h
}

// HandleAction routes records with the given action to h.
func (w *Worker) HandleAction(action model.Action, h Handler) {
	if action == "" || h == nil {
		return
	}
	w.byAction[action] = h
}

// HandleAll sets the handler for records no other handler claims.
func (w *Worker) HandleAll(h Handler) {
	w.fallback = h
}

// Subscriptions lists the topics Run subscribes to: the configured topics
// followed by topics that only have a handler, sorted.
func (w *Worker) Subscriptions() []string {
	seen := make(map[string]struct{}, len(w.topics)+len(w.byTopic))
	var out []string
	add := func(topic string) {
		if _, ok := seen[topic]; ok || topic == "" {
			return
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	for _, topic := range w.topics {
		add(topic)
	}
	handled := make([]string, 0, len(w.byTopic))
	for topic := range w.byTopic {
		handled = append(handled, topic)
	}
	sort.Strings(handled)
	for _, topic := range handled {
		add(topic)
	}
	return out
}

// Run subscribes to every topic and processes messages with a fixed pool of
// goroutines until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if w.subscriber == nil {
		return errors.New("subscriber is required")
	}
	topics := w.Subscriptions()
	if len(topics) == 0 {
		return errors.New("at least one topic is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbox := make(chan inbound)
	var feeders sync.WaitGroup
	for _, topic := range topics {
		msgs, err := w.subscriber.Subscribe(ctx, topic)
		if err != nil {
			w.each(func(l Listener) { l.fail(ctx, nil, err) })
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		feeders.Add(1)
		go feed(ctx, topic, msgs, inbox, &feeders)
	}

	w.each(func(l Listener) { l.start(ctx) })
	defer w.each(func(l Listener) { l.exit(ctx) })

	var pool sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		pool.Add(1)
		go func() {
			defer pool.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case in := <-inbox:
					w.handleMessage(ctx, in.topic, in.msg)
				}
			}
		}()
	}

	<-ctx.Done()
	pool.Wait()
	feeders.Wait()
	return nil
}

func feed(ctx context.Context, topic string, msgs <-chan *message.Message, inbox chan<- inbound, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case inbox <- inbound{topic: topic, msg: msg}:
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}
}

// Close closes the subscriber.
func (w *Worker) Close() error {
	if w.subscriber == nil {
		return nil
	}
	return w.subscriber.Close()
}

func (w *Worker) route(d *Delivery) Handler {
	if h, ok := w.byTopic[d.Topic]; ok {
		return h
	}
	if h, ok := w.byAction[d.Event.Action]; ok {
		return h
	}
	return w.fallback
}

func (w *Worker) handleMessage(ctx context.Context, topic string, msg *message.Message) {
	d, err := w.codec.Decode(topic, msg)
	if err != nil {
		w.logger.Warn("undecodable message", zap.String("topic", topic), zap.String("message_id", msg.UUID), zap.Error(err))
		w.each(func(l Listener) { l.fail(ctx, nil, err) })
		w.finish(ctx, msg, nil, err)
		return
	}

	w.each(func(l Listener) { l.messageStart(ctx, d) })
	h := w.route(d)
	if h == nil {
		w.logger.Debug("no handler for event",
			zap.String("topic", topic),
			zap.String("action", string(d.Event.Action)),
		)
	} else {
		err = w.chain(h)(ctx, d)
	}
	w.each(func(l Listener) { l.messageFinish(ctx, d, err) })

	if err != nil {
		w.logger.Warn("event handler failed",
			zap.String("topic", topic),
			zap.String("event_id", d.Event.ID),
			zap.String("request_id", d.Event.RequestID),
			zap.Error(err),
		)
		w.each(func(l Listener) { l.fail(ctx, d, err) })
	}
	w.finish(ctx, msg, d, err)
}

func (w *Worker) finish(ctx context.Context, msg *message.Message, d *Delivery, err error) {
	if err != nil && w.policy.Settle(ctx, d, err) == Redeliver {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (w *Worker) chain(h Handler) Handler {
	for i := len(w.middleware) - 1; i >= 0; i-- {
		h = w.middleware[i](h)
	}
	return h
}

func (w *Worker) each(fn func(Listener)) {
	for _, l := range w.listeners {
		fn(l)
	}
}

package worker

import "context"

// Listener observes the worker. Unset hooks are skipped.
type Listener struct {
	OnStart         func(ctx context.Context)
	OnExit          func(ctx context.Context)
	OnMessageStart  func(ctx context.Context, d *Delivery)
	OnMessageFinish func(ctx context.Context, d *Delivery, err error)
	// OnError gets a nil delivery when the message could not be decoded.
	OnError func(ctx context.Context, d *Delivery, err error)
}

func (l Listener) start(ctx context.Context) {
	if l.OnStart != nil {
		l.OnStart(ctx)
	}
}

func (l Listener) exit(ctx context.Context) {
	if l.OnExit != nil {
		l.OnExit(ctx)
	}
}

func (l Listener) messageStart(ctx context.Context, d *Delivery) {
	if l.OnMessageStart != nil {
		l.OnMessageStart(ctx, d)
	}
}

func (l Listener) messageFinish(ctx context.Context, d *Delivery, err error) {
	if l.OnMessageFinish != nil {
		l.OnMessageFinish(ctx, d, err)
	}
}

func (l Listener) fail(ctx context.Context, d *Delivery, err error) {
	if l.OnError != nil {
		l.OnError(ctx, d, err)
	}
}

package worker

import "context"

// Settlement says how a failed message is finished.
type Settlement int

const (
	// Redeliver nacks the message so the bus offers it again.
	Redeliver Settlement = iota
	// Drop acks the message and loses it.
	Drop
)

// ErrorPolicy settles messages whose decoding or handling failed. d is nil
// for undecodable messages.
type ErrorPolicy interface {
	Settle(ctx context.Context, d *Delivery, err error) Settlement
}

// RedeliverOnError nacks every failed message.
type RedeliverOnError struct{}

func (RedeliverOnError) Settle(context.Context, *Delivery, error) Settlement { return Redeliver }

// DropOnError acks failed messages. Notifications are best effort, so the
// worker command uses it to keep a poison message from looping.
type DropOnError struct{}

func (DropOnError) Settle(context.Context, *Delivery, error) Settlement { return Drop }

package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// RiverJobKind is the kind of the jobs inserted by the river driver.
const RiverJobKind = "github_event"

// EventJobArgs is the River job inserted for each published event. Event holds
// the record JSON as published on the other drivers.
type EventJobArgs struct {
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Event    json.RawMessage   `json:"event"`
}

func (EventJobArgs) Kind() string { return RiverJobKind }

// riverPublisher inserts jobs through an insert-only River client.
type riverPublisher struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	opts   river.InsertOpts
}

func buildRiverPublisher(cfg WatermillConfig, _ watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.River.DSN == "" {
		return nil, nil, errors.New("river dsn is required")
	}
	pool, err := pgxpool.New(context.Background(), cfg.River.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("river pool: %w", err)
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("river client: %w", err)
	}
	return &riverPublisher{
		client: client,
		pool:   pool,
		opts: river.InsertOpts{
			Queue:       cfg.River.Queue,
			MaxAttempts: cfg.River.MaxAttempts,
			Priority:    cfg.River.Priority,
			Tags:        cfg.River.Tags,
		},
	}, nil, nil
}

func (p *riverPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		opts := p.opts
		if _, err := p.client.Insert(msg.Context(), riverJobArgs(topic, msg), &opts); err != nil {
			return fmt.Errorf("insert river job: %w", err)
		}
	}
	return nil
}

func (p *riverPublisher) Close() error {
	p.pool.Close()
	return nil
}

func riverJobArgs(topic string, msg *message.Message) EventJobArgs {
	args := EventJobArgs{Topic: topic, Event: json.RawMessage(msg.Payload)}
	if len(msg.Metadata) > 0 {
		args.Metadata = make(map[string]string, len(msg.Metadata))
		for key, value := range msg.Metadata {
			args.Metadata[key] = value
		}
	}
	return args
}

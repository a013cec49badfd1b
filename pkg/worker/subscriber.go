package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"githubevents/internal"

	"github.com/ThreeDotsLabs/watermill"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
)

// SubscriberFactory builds the consumer side of a publisher driver. The
// returned close func, if any, runs after the subscriber is closed.
type SubscriberFactory func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error)

var subscriberFactories = map[string]SubscriberFactory{
	"kafka": kafkaSubscriber,
	"nats":  natsSubscriber,
	"amqp":  amqpSubscriber,
	"sql":   sqlSubscriber,
}

// Publisher drivers a separate worker process can never read from.
var unconsumable = map[string]string{
	internal.DriverGoChannel: "in-process bus, only the serve process sees its messages",
	"http":                   "messages are posted to endpoints",
	"river":                  "jobs are worked by River clients",
}

// RegisterSubscriberDriver adds or replaces a driver factory.
func RegisterSubscriberDriver(name string, factory SubscriberFactory) {
	if name == "" || factory == nil {
		return
	}
	subscriberFactories[strings.ToLower(name)] = factory
}

// NewFromConfig creates a worker reading from the configured drivers.
func NewFromConfig(cfg internal.WatermillConfig, logger watermill.LoggerAdapter, opts ...Option) (*Worker, error) {
	sub, err := BuildSubscriber(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(append(opts, WithSubscriber(sub))...), nil
}

// BuildSubscriber subscribes to the same drivers the server publishes to.
// Drivers that cannot be consumed or built are skipped; it fails only when
// none remain. Messages carry the driver name under MetadataDriver.
func BuildSubscriber(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	var (
		subs    []driverSubscriber
		skipped error
	)
	for _, driver := range cfg.DriverNames() {
		factory, ok := subscriberFactories[driver]
		if !ok {
			reason := unconsumable[driver]
			if reason == "" {
				reason = "unsupported driver"
			}
			skipped = errors.Join(skipped, fmt.Errorf("%s: %s", driver, reason))
			logger.Info("skipping subscriber driver", watermill.LogFields{"driver": driver, "reason": reason})
			continue
		}
		built, err := internal.BuildWithRetry(cfg.PublishRetry, func() (driverSubscriber, error) {
			sub, closeFn, err := factory(cfg, logger.With(watermill.LogFields{"driver": driver}))
			return driverSubscriber{driver: driver, sub: sub, closeFn: closeFn}, err
		})
		if err != nil {
			skipped = errors.Join(skipped, fmt.Errorf("%s: %w", driver, err))
			logger.Error("subscriber init failed, skipping driver", err, watermill.LogFields{"driver": driver})
			continue
		}
		subs = append(subs, built)
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("no subscriber drivers available: %w", skipped)
	}
	return &fanIn{subs: subs, buffer: cfg.GoChannel.OutputChannelBuffer}, nil
}

func kafkaSubscriber(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, errors.New("kafka brokers are required")
	}
	sub, err := wmkafka.NewSubscriber(wmkafka.SubscriberConfig{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}, nil, wmkafka.DefaultMarshaler{}, logger)
	return sub, nil, err
}

func natsSubscriber(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	clientID, err := cfg.NATS.ConsumerClientID()
	if err != nil {
		return nil, nil, err
	}
	sub, err := wmnats.NewStreamingSubscriber(wmnats.StreamingSubscriberConfig{
		ClusterID:   cfg.NATS.ClusterID,
		ClientID:    clientID,
		DurableName: cfg.NATS.Durable,
		StanOptions: cfg.NATS.StanOptions(),
		Unmarshaler: wmnats.GobMarshaler{},
	}, logger)
	return sub, nil, err
}

func amqpSubscriber(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	if cfg.AMQP.URL == "" {
		return nil, nil, errors.New("amqp url is required")
	}
	amqpCfg, err := internal.AMQPConfigFromMode(cfg.AMQP.URL, cfg.AMQP.Mode)
	if err != nil {
		return nil, nil, err
	}
	sub, err := wmamqp.NewSubscriber(amqpCfg, logger)
	return sub, nil, err
}

func sqlSubscriber(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
		return nil, nil, errors.New("sql driver and dsn are required")
	}
	schema, offsets, err := internal.SQLAdapters(cfg.SQL.Dialect)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
	if err != nil {
		return nil, nil, err
	}
	sub, err := wmsql.NewSubscriber(db, wmsql.SubscriberConfig{
		ConsumerGroup:    cfg.SQL.ConsumerGroup,
		SchemaAdapter:    schema,
		OffsetsAdapter:   offsets,
		InitializeSchema: cfg.SQL.AutoInitializeSchema,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return sub, db.Close, nil
}

type driverSubscriber struct {
	driver  string
	sub     message.Subscriber
	closeFn func() error
}

// fanIn merges one topic from every driver into a single channel.
type fanIn struct {
	subs   []driverSubscriber
	buffer int64
}

func (f *fanIn) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	buffer := f.buffer
	if buffer <= 0 {
		buffer = 64
	}
	out := make(chan *message.Message, buffer)

	var wg sync.WaitGroup
	for _, s := range f.subs {
		msgs, err := s.sub.Subscribe(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.driver, err)
		}
		wg.Add(1)
		go func(driver string, msgs <-chan *message.Message) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					if msg.Metadata == nil {
						msg.Metadata = message.Metadata{}
					}
					msg.Metadata.Set(MetadataDriver, driver)
					select {
					case out <- msg:
					case <-ctx.Done():
						msg.Nack()
						return
					}
				}
			}
		}(s.driver, msgs)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (f *fanIn) Close() error {
	var err error
	for _, s := range f.subs {
		err = errors.Join(err, s.sub.Close())
		if s.closeFn != nil {
			err = errors.Join(err, s.closeFn())
		}
	}
	return err
}

package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"githubevents/internal"
	"githubevents/pkg/model"
	"githubevents/pkg/worker"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	workerTopics      []string
	workerConcurrency int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume published event notifications and log them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func init() {
	workerCmd.Flags().StringSliceVar(&workerTopics, "topic", nil, "topic to consume (defaults to every topic the rules emit)")
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 4, "messages processed in parallel")
	RootCmd.AddCommand(workerCmd)
}

func runWorker() error {
	cfg, logger, err := loadRuntime("worker")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	w, err := newEventWorker(cfg, logger, workerTopics, workerConcurrency)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", zap.Strings("topics", w.Subscriptions()))
	return w.Run(ctx)
}

// newEventWorker subscribes to topics, or to every topic the rules emit, and
// logs each event received.
func newEventWorker(cfg internal.Config, logger *zap.Logger, topics []string, concurrency int) (*worker.Worker, error) {
	if len(topics) == 0 {
		topics = worker.TopicsFromRules(cfg.Rules)
	}
	if len(topics) == 0 {
		return nil, errors.New("no topics: pass --topic or configure rules")
	}

	w, err := worker.NewFromConfig(cfg.Watermill, internal.NewWatermillLogger(logger.Named("watermill")),
		worker.WithTopics(topics...),
		worker.WithConcurrency(concurrency),
		worker.WithLogger(logger),
		worker.WithErrorPolicy(worker.DropOnError{}),
		worker.WithMiddleware(worker.MiddlewareFromWatermill(middleware.Recoverer)),
	)
	if err != nil {
		return nil, err
	}
	w.HandleAll(logDelivery(logger))
	return w, nil
}

func logDelivery(logger *zap.Logger) worker.Handler {
	return func(ctx context.Context, d *worker.Delivery) error {
		fields := []zap.Field{
			zap.String("topic", d.Topic),
			zap.String("driver", d.Driver),
			zap.String("event_id", d.Event.ID),
			zap.String("request_id", d.Event.RequestID),
			zap.String("action", string(d.Event.Action)),
			zap.String("author", d.Event.Author),
			zap.String("to_branch", d.Event.ToBranch),
			zap.String("timestamp", model.FormatTimestamp(d.Event.Timestamp)),
		}
		if d.Event.FromBranch != nil {
			fields = append(fields, zap.String("from_branch", *d.Event.FromBranch))
		}
		logger.Info("event received", fields...)
		return nil
	}
}

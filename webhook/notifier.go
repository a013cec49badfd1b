package webhook

import (
	"context"

	"githubevents/internal"
	"githubevents/pkg/model"

	"go.uber.org/zap"
)

// Notifier publishes stored events to the topics selected by the rule engine.
type Notifier struct {
	rules     *internal.RuleEngine
	publisher internal.Publisher
	metrics   *internal.Metrics
	logger    *zap.Logger
}

// NewNotifier returns a Notifier. A nil rule engine or publisher disables publishing.
func NewNotifier(rules *internal.RuleEngine, publisher internal.Publisher, metrics *internal.Metrics, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{rules: rules, publisher: publisher, metrics: metrics, logger: logger}
}

// Notify evaluates the rules for a stored event and publishes every match.
// Publish failures are logged and counted; they never reach the caller.
func (n *Notifier) Notify(ctx context.Context, eventType string, event model.Event, payload map[string]interface{}) int {
	if n == nil || n.publisher == nil || n.rules.Len() == 0 {
		return 0
	}

	matches := n.rules.Evaluate(internal.RuleParams(eventType, event, payload))
	if len(matches) == 0 {
		return 0
	}

	topics := make([]string, 0, len(matches))
	published := 0
	for _, match := range matches {
		topics = append(topics, match.Topic)
		err := n.publisher.PublishForDrivers(ctx, match.Topic, event, match.Drivers)
		n.metrics.IncPublish(match.Topic, err)
		if err != nil {
			n.logger.Error("publish failed",
				zap.String("topic", match.Topic),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		published++
	}
	n.logger.Debug("event notified",
		zap.String("event_id", event.ID),
		zap.Strings("topics", topics),
		zap.Int("published", published),
	)
	return published
}

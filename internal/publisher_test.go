package internal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"githubevents/pkg/model"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	published    int
	lastTopic    string
	lastPayload  []byte
	lastMetadata message.Metadata
	err          error
}

func (s *stubPublisher) Publish(topic string, msgs ...*message.Message) error {
	if s.err != nil {
		return s.err
	}
	s.published += len(msgs)
	s.lastTopic = topic
	if len(msgs) > 0 {
		s.lastPayload = append([]byte(nil), msgs[0].Payload...)
		s.lastMetadata = msgs[0].Metadata
	}
	return nil
}

func (s *stubPublisher) Close() error { return nil }

func registerStub(t *testing.T, name string, stub *stubPublisher, closeFn func() error) {
	t.Helper()
	orig, had := publisherFactories[name]
	t.Cleanup(func() {
		if had {
			publisherFactories[name] = orig
		} else {
			delete(publisherFactories, name)
		}
	})
	RegisterPublisherDriver(name, func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
		return stub, closeFn, nil
	})
}

func publishedMerge() model.Event {
	return model.Event{
		ID:         "evt-1",
		RequestID:  "merge_42",
		Author:     "octocat",
		Action:     model.ActionMerge,
		FromBranch: model.StringPtr("feature"),
		ToBranch:   "main",
		Timestamp:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRegisterPublisherDriver(t *testing.T) {
	stub := &stubPublisher{}
	closed := false
	registerStub(t, "custom", stub, func() error { closed = true; return nil })

	pub, err := NewPublisher(WatermillConfig{Driver: "custom"}, nil)
	require.NoError(t, err)

	require.NoError(t, pub.PublishForDrivers(context.Background(), "custom.topic", publishedMerge(), nil))
	assert.Equal(t, 1, stub.published)
	assert.Equal(t, "custom.topic", stub.lastTopic)

	require.NoError(t, pub.Close())
	assert.True(t, closed)
}

func TestPublishEncodesEventAndMetadata(t *testing.T) {
	stub := &stubPublisher{}
	registerStub(t, "payload", stub, nil)

	pub, err := NewPublisher(WatermillConfig{Driver: "payload"}, nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "merges", publishedMerge()))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(stub.lastPayload, &body))
	assert.Equal(t, "merge_42", body["request_id"])
	assert.Equal(t, "merge", body["action"])
	assert.Equal(t, "feature", body["from_branch"])
	assert.Equal(t, "2024-01-02T03:04:05+00:00", body["timestamp"])

	assert.Equal(t, "merge", stub.lastMetadata.Get(MetadataAction))
	assert.Equal(t, "merge_42", stub.lastMetadata.Get(MetadataRequestID))
	assert.Equal(t, "evt-1", stub.lastMetadata.Get(MetadataEventID))
}

func TestMultipleDrivers(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{}
	registerStub(t, "multi-a", a, nil)
	registerStub(t, "multi-b", b, nil)

	pub, err := NewPublisher(WatermillConfig{Drivers: []string{"multi-a", "MULTI-B", "multi-a"}}, nil)
	require.NoError(t, err)

	require.NoError(t, pub.PublishForDrivers(context.Background(), "all", publishedMerge(), nil))
	assert.Equal(t, 1, a.published)
	assert.Equal(t, 1, b.published)

	require.NoError(t, pub.PublishForDrivers(context.Background(), "only-b", publishedMerge(), []string{"multi-b"}))
	assert.Equal(t, 1, a.published)
	assert.Equal(t, 2, b.published)
	assert.Equal(t, "only-b", b.lastTopic)
}

func TestPublishJoinsDriverErrors(t *testing.T) {
	boom := errors.New("broker down")
	failing := &stubPublisher{err: boom}
	ok := &stubPublisher{}
	registerStub(t, "failing", failing, nil)
	registerStub(t, "healthy", ok, nil)

	pub, err := NewPublisher(WatermillConfig{Drivers: []string{"failing", "healthy"}}, nil)
	require.NoError(t, err)

	err = pub.PublishForDrivers(context.Background(), "t", publishedMerge(), []string{"failing", "healthy", "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "unknown driver missing")
	assert.Equal(t, 1, ok.published)
}

func TestNewPublisherSkipsBrokenDrivers(t *testing.T) {
	stub := &stubPublisher{}
	registerStub(t, "works", stub, nil)

	cfg := WatermillConfig{
		Drivers:      []string{"kafka", "works"},
		PublishRetry: PublishRetryConfig{Attempts: 1},
	}
	pub, err := NewPublisher(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "t", publishedMerge()))
	assert.Equal(t, 1, stub.published)

	_, err = NewPublisher(WatermillConfig{Driver: "kafka", PublishRetry: PublishRetryConfig{Attempts: 1}}, nil)
	assert.Error(t, err)
}

func TestGoChannelPublisher(t *testing.T) {
	cfg := WatermillConfig{Driver: "gochannel", GoChannel: GoChannelConfig{OutputChannelBuffer: 4}}
	pub, err := NewPublisher(cfg, nil)
	require.NoError(t, err)
	defer pub.Close()

	assert.NoError(t, pub.Publish(context.Background(), "events", publishedMerge()))
}

func TestHTTPURLTarget(t *testing.T) {
	url, err := httpTargetURL(HTTPConfig{Mode: "base_url", BaseURL: "http://localhost:8080/hooks/"}, "/topic")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/hooks/topic", url)

	url, err = httpTargetURL(HTTPConfig{Mode: "topic_url"}, "http://sink/merges")
	require.NoError(t, err)
	assert.Equal(t, "http://sink/merges", url)

	_, err = httpTargetURL(HTTPConfig{Mode: "topic_url"}, "")
	assert.Error(t, err)
	_, err = httpTargetURL(HTTPConfig{Mode: "bogus"}, "x")
	assert.Error(t, err)
}

func TestDriverConfigValidation(t *testing.T) {
	_, err := AMQPConfigFromMode("amqp://localhost", "fanout")
	assert.Error(t, err)
	_, err = AMQPConfigFromMode("amqp://localhost", "")
	assert.NoError(t, err)

	_, _, err = buildRiverPublisher(WatermillConfig{}, watermill.NopLogger{})
	assert.Error(t, err)

	_, _, err = buildSQLPublisher(WatermillConfig{}, watermill.NopLogger{})
	assert.Error(t, err)
	_, _, err = buildNATSPublisher(WatermillConfig{}, watermill.NopLogger{})
	assert.Error(t, err)
	_, _, err = buildAMQPPublisher(WatermillConfig{}, watermill.NopLogger{})
	assert.Error(t, err)
	_, _, err = buildHTTPPublisher(WatermillConfig{HTTP: HTTPConfig{Mode: "base_url"}}, watermill.NopLogger{})
	assert.Error(t, err)
}

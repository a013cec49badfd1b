package internal

import (
	"fmt"
	"strings"
	"time"

	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	stan "github.com/nats-io/stan.go"
)

// DriverGoChannel is the in-process bus. Messages never leave the serve
// process, so a separate worker cannot consume them.
const DriverGoChannel = "gochannel"

// DriverNames returns the configured drivers lowercased and deduplicated,
// Drivers first and then Driver. It falls back to gochannel.
func (c WatermillConfig) DriverNames() []string {
	seen := make(map[string]struct{}, len(c.Drivers)+1)
	var names []string
	for _, name := range append(append([]string(nil), c.Drivers...), c.Driver) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return []string{DriverGoChannel}
	}
	return names
}

// BuildWithRetry calls build until it succeeds or the configured attempts run
// out, sleeping DelayMS between attempts. It returns the last error.
func BuildWithRetry[T any](retry PublishRetryConfig, build func() (T, error)) (T, error) {
	attempts := retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(retry.DelayMS) * time.Millisecond

	var (
		out T
		err error
	)
	for i := 0; i < attempts; i++ {
		if out, err = build(); err == nil {
			return out, nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return out, err
}

// SQLAdapters picks the watermill schema and offsets adapters for a dialect.
func SQLAdapters(dialect string) (wmsql.SchemaAdapter, wmsql.OffsetsAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, wmsql.DefaultPostgreSQLOffsetsAdapter{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, wmsql.DefaultMySQLOffsetsAdapter{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
}

// StanOptions returns the NATS streaming connection options.
func (c NATSConfig) StanOptions() []stan.Option {
	if c.URL == "" {
		return nil
	}
	return []stan.Option{stan.NatsURL(c.URL)}
}

func (c NATSConfig) validate() error {
	if c.ClusterID == "" || c.ClientID == "" {
		return fmt.Errorf("nats cluster_id and client_id are required")
	}
	return nil
}

// ConsumerClientID is the NATS client id used by the worker. A streaming
// cluster rejects two connections with the same id.
func (c NATSConfig) ConsumerClientID() (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	return c.ClientID + c.ClientIDSuffix, nil
}

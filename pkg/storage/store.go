package storage

import (
	"context"
	"errors"

	"githubevents/pkg/model"
)

// DefaultListLimit is used when a caller asks for a non-positive limit.
const DefaultListLimit = 50

// ErrNotInitialized is returned by stores used before Open succeeded.
var ErrNotInitialized = errors.New("store is not initialized")

// EventStore defines append-only persistence for normalized webhook events.
type EventStore interface {
	InsertEvent(ctx context.Context, event model.Event) (string, error)
	ListEvents(ctx context.Context, limit int) ([]model.Event, error)
	CountEvents(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

package storage

import (
	"context"
	"fmt"
	"time"

	"githubevents/pkg/model"
)

// SampleEvents returns the demo records written by the setup command.
func SampleEvents(now time.Time) []model.Event {
	now = now.UTC()
	return []model.Event{
		{
			RequestID: "sample_push_1",
			Author:    "john_doe",
			Action:    model.ActionPush,
			ToBranch:  "main",
			Timestamp: now,
		},
		{
			RequestID:  "sample_pr_1",
			Author:     "jane_smith",
			Action:     model.ActionPullRequest,
			FromBranch: model.StringPtr("feature-branch"),
			ToBranch:   "main",
			Timestamp:  now,
		},
	}
}

// SeedIfEmpty inserts the sample events only when the store holds no events.
// It reports how many records were written.
func SeedIfEmpty(ctx context.Context, store EventStore, now time.Time) (int, error) {
	count, err := store.CountEvents(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	written := 0
	for _, event := range SampleEvents(now) {
		if _, err := store.InsertEvent(ctx, event); err != nil {
			return written, fmt.Errorf("seed %s: %w", event.RequestID, err)
		}
		written++
	}
	return written, nil
}

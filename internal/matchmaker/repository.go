// Package matchmaker pairs searching users by shared interests, with a
// wait-time fallback so nobody queues forever.
package matchmaker

import (
	"context"
	"time"
)

// Entry is a queued searcher.
type Entry struct {
	UserID     string
	EnqueuedAt time.Time
}

// Repo abstracts the search queue. Implementations must keep the
// original enqueue time on repeated Enqueue calls so wait-time
// measurement survives duplicate start_search events.
type Repo interface {
	// Enqueue inserts the user, keeping the existing timestamp if the
	// user is already queued.
	Enqueue(ctx context.Context, userID string, at time.Time) error
	// Remove drops the user from the queue. Removing an absent user is
	// a no-op.
	Remove(ctx context.Context, userID string) error
	// Contains reports whether the user is currently queued.
	Contains(ctx context.Context, userID string) (bool, error)
	// Snapshot returns all queued entries in enqueue order.
	Snapshot(ctx context.Context) ([]Entry, error)
}

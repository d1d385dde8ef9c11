// Package snapshots persists analyses so later runs can detect blocks and compare history.
package snapshots

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/f-sync/socialpulse/internal/analysis"
)

// DefaultCapacity is the number of snapshots retained before the oldest is evicted.
const DefaultCapacity = 10

// ErrSnapshotNotFound is returned when no snapshot matches the request.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store retains at most its capacity of snapshots, evicting the oldest first.
type Store interface {
	// Save stores a new snapshot of the analysis and returns its identifier.
	Save(ctx context.Context, result analysis.Analysis, label string) (string, error)
	// List returns the retained snapshots, most recent first.
	List(ctx context.Context) ([]analysis.Snapshot, error)
	Get(ctx context.Context, identifier string) (analysis.Snapshot, error)
	// Latest returns the most recently saved snapshot.
	Latest(ctx context.Context) (analysis.Snapshot, error)
	Remove(ctx context.Context, identifier string) error
	Clear(ctx context.Context) error
	Close() error
}

// Summary is the listing view of a snapshot.
type Summary struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Label          string    `json:"label,omitempty"`
	OverallScore   float64   `json:"overallScore"`
	TotalFollowers int       `json:"totalFollowers"`
	TotalFollowing int       `json:"totalFollowing"`
}

// Summarize condenses a snapshot into its listing view.
func Summarize(snapshot analysis.Snapshot) Summary {
	return Summary{
		ID:             snapshot.ID,
		Timestamp:      snapshot.Timestamp,
		Label:          snapshot.Label,
		OverallScore:   snapshot.Analysis.SocialHealth.OverallScore,
		TotalFollowers: snapshot.Analysis.Stats.TotalFollowers,
		TotalFollowing: snapshot.Analysis.Stats.TotalFollowing,
	}
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	capacity int
	now      func() time.Time
	newID    func() string
}

// WithCapacity overrides DefaultCapacity. Non-positive values are ignored.
func WithCapacity(capacity int) Option {
	return func(options *storeOptions) {
		if capacity > 0 {
			options.capacity = capacity
		}
	}
}

// WithClock overrides the clock used to timestamp snapshots.
func WithClock(clock func() time.Time) Option {
	return func(options *storeOptions) {
		if clock != nil {
			options.now = clock
		}
	}
}

// WithIDGenerator overrides the UUID generator used for snapshot identifiers.
func WithIDGenerator(generator func() string) Option {
	return func(options *storeOptions) {
		if generator != nil {
			options.newID = generator
		}
	}
}

func resolveOptions(options []Option) storeOptions {
	resolved := storeOptions{
		capacity: DefaultCapacity,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, option := range options {
		option(&resolved)
	}
	return resolved
}

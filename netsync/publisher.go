package netsync

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Publisher sends snapshots to observers. Publishing is fire and forget: an error is reported to
// the caller for logging and the snapshot is not retried.
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) error
}

type PublisherFunc func(ctx context.Context, s Snapshot) error

func (f PublisherFunc) Publish(ctx context.Context, s Snapshot) error {
	return f(ctx, s)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Snapshot) error { return nil }

// Discard drops every snapshot.
var Discard Publisher = noopPublisher{}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, s Snapshot) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Buffer keeps every published snapshot in memory.
type Buffer struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (b *Buffer) Publish(_ context.Context, s Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, s)
	return nil
}

func (b *Buffer) Snapshots() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.snapshots)
}

// Drain returns the buffered snapshots and empties the buffer.
func (b *Buffer) Drain() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.snapshots
	b.snapshots = nil
	return out
}

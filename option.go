package foundry

import (
	"time"

	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/registry"
	"pkg.world.dev/world-engine/foundry/storage"
	"pkg.world.dev/world-engine/foundry/world"
)

// Option configures either the foundry itself or the world it runs.
type Option struct {
	worldOption   world.Option
	foundryOption func(*Foundry)
}

// WithTickChannel sets the channel that decides when ticks run. If unset, the world ticks at the
// configured tick rate. Tests can pass in a channel they control for fine-grained control over
// when ticks are executed.
func WithTickChannel(ch <-chan time.Time) Option {
	return Option{
		foundryOption: func(f *Foundry) {
			f.tickChannel = ch
		},
	}
}

// WithStartHook runs hook once the world is loaded and the server started, right before the
// first tick.
func WithStartHook(hook func() error) Option {
	return Option{
		foundryOption: func(f *Foundry) {
			f.startHook = hook
		},
	}
}

// WithBlueprint registers an additional machine kind next to the built-in recycler.
func WithBlueprint(kind string, factory machine.Factory) Option {
	return Option{
		foundryOption: func(f *Foundry) {
			f.extra = append(f.extra, blueprint{kind: kind, factory: factory})
		},
	}
}

// WithStore replaces the store selected by the configuration. The foundry closes it on Stop.
func WithStore(s storage.Store) Option {
	return Option{
		foundryOption: func(f *Foundry) {
			f.store = s
		},
	}
}

// WithPublisher adds p to the destinations of machine snapshots.
func WithPublisher(p netsync.Publisher) Option {
	return Option{
		foundryOption: func(f *Foundry) {
			if p != nil {
				f.publishers = append(f.publishers, p)
			}
		},
	}
}

// WithCatalog replaces the catalog read from the configured catalog path.
func WithCatalog(c *registry.Catalog) Option {
	return Option{
		foundryOption: func(f *Foundry) {
			f.catalog = c
		},
	}
}

// WithSequencer sets the sequencer stamping snapshots, e.g. to pin the epoch in tests.
func WithSequencer(s *netsync.Sequencer) Option {
	return Option{
		worldOption: world.WithSequencer(s),
	}
}

// separateOptions separates the given options into foundry options and world options.
func separateOptions(opts []Option) ([]func(*Foundry), []world.Option) {
	foundryOpts := make([]func(*Foundry), 0)
	worldOpts := make([]world.Option, 0)

	for _, opt := range opts {
		if opt.foundryOption != nil {
			foundryOpts = append(foundryOpts, opt.foundryOption)
		}
		if opt.worldOption != nil {
			worldOpts = append(worldOpts, opt.worldOption)
		}
	}

	return foundryOpts, worldOpts
}

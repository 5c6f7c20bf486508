// Package observer runs a presentation-role copy of a foundry world. It mirrors the snapshots an
// authoritative world streams, ticks the mirrored machines locally so client-side effects keep
// running, and relays interaction events back to the authoritative world over HTTP.
package observer

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pkg.world.dev/world-engine/foundry/inventory"
	"pkg.world.dev/world-engine/foundry/log"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/registry"
	"pkg.world.dev/world-engine/foundry/types"
)

const (
	DefaultTickRate = 20
	snapshotBuffer  = 256
	relayTimeout    = 10 * time.Second
)

type Observer struct {
	blueprints *machine.Blueprints
	source     Source
	upstream   string
	client     *http.Client
	logger     zerolog.Logger

	tickRate    int
	tickChannel <-chan time.Time

	mu     sync.RWMutex
	mirror *netsync.Mirror
	tick   atomic.Uint64
}

type Option func(*Observer)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Observer) {
		o.logger = logger
	}
}

// WithTickRate sets how many local ticks run per second.
func WithTickRate(rate int) Option {
	return func(o *Observer) {
		if rate > 0 {
			o.tickRate = rate
		}
	}
}

// WithTickChannel replaces the ticker with ch, giving the caller control over local ticks.
func WithTickChannel(ch <-chan time.Time) Option {
	return func(o *Observer) {
		o.tickChannel = ch
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *Observer) {
		o.client = client
	}
}

// New returns an observer mirroring the snapshots of source. upstream is the base URL of the
// authoritative foundry server, e.g. http://localhost:4040.
func New(blueprints *machine.Blueprints, reg *registry.Registry, source Source, upstream string,
	opts ...Option,
) (*Observer, error) {
	if blueprints == nil || source == nil {
		return nil, eris.New("observer requires blueprints and a snapshot source")
	}
	o := &Observer{
		blueprints: blueprints,
		source:     source,
		upstream:   upstream,
		client:     &http.Client{Timeout: relayTimeout},
		logger:     zlog.Logger,
		tickRate:   DefaultTickRate,
	}
	for _, opt := range opts {
		opt(o)
	}

	machineOpts := []machine.Option{machine.WithLogger(o.logger)}
	if reg != nil {
		machineOpts = append(machineOpts, machine.WithInventoryOptions(
			inventory.WithIdentities(reg),
			inventory.WithStackLimits(reg),
		))
	}
	o.mirror = netsync.NewMirror(blueprints, o.logger, machineOpts...)
	return o, nil
}

// Run mirrors snapshots and ticks locally until ctx is done or the source fails.
func (o *Observer) Run(ctx context.Context) error {
	log.World(&o.logger, o, zerolog.InfoLevel)

	tickChannel := o.tickChannel
	if tickChannel == nil {
		ticker := time.NewTicker(time.Second / time.Duration(o.tickRate))
		defer ticker.Stop()
		tickChannel = ticker.C
	}

	snapshots := make(chan netsync.Snapshot, snapshotBuffer)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return o.source.Stream(ctx, func(s netsync.Snapshot) {
			select {
			case snapshots <- s:
			case <-ctx.Done():
			}
		})
	})
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case s := <-snapshots:
				o.apply(s)
			case <-tickChannel:
				o.localTick()
			}
		}
	})
	return eg.Wait()
}

func (o *Observer) apply(s netsync.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.mirror.Apply(s); err != nil {
		o.logger.Warn().Err(err).Str("key", s.Key.String()).Msg("failed to mirror snapshot")
	}
}

func (o *Observer) localTick() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.mirror.Tick()
	o.tick.Add(1)
}

// Inspect calls fn with the mirrored machine at key and reports whether there was one. fn must
// not keep the machine.
func (o *Observer) Inspect(key types.Key, fn func(m *machine.Machine)) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	m, ok := o.mirror.Get(key)
	if ok {
		fn(m)
	}
	return ok
}

func (o *Observer) Keys() []types.Key {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mirror.Keys()
}

// Applied returns the sequence number of the last snapshot mirrored for key.
func (o *Observer) Applied(key types.Key) uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mirror.Applied(key)
}

func (o *Observer) CurrentTick() uint64 {
	return o.tick.Load()
}

func (o *Observer) Blueprints() []string {
	return o.blueprints.Kinds()
}

func (o *Observer) MachineCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mirror.Len()
}

func (o *Observer) Role() types.Role {
	return types.RolePresentation
}

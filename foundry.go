// Package foundry runs an authoritative machine world: it loads the item catalog and the stored
// machines, ticks the world at a fixed rate, streams machine snapshots to observers and serves
// the HTTP interface players and automation use to interact with machines.
package foundry

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pkg.world.dev/world-engine/foundry/config"
	"pkg.world.dev/world-engine/foundry/events"
	flog "pkg.world.dev/world-engine/foundry/log"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/recycler"
	"pkg.world.dev/world-engine/foundry/registry"
	"pkg.world.dev/world-engine/foundry/server"
	"pkg.world.dev/world-engine/foundry/statsd"
	"pkg.world.dev/world-engine/foundry/storage"
	"pkg.world.dev/world-engine/foundry/storage/redis"
	"pkg.world.dev/world-engine/foundry/storage/sqlite"
	"pkg.world.dev/world-engine/foundry/world"
	"pkg.world.dev/world-engine/foundry/worldstage"
)

const (
	RedisDialTimeOut = 150
	finalSaveTimeout = 30 * time.Second
)

type blueprint struct {
	kind    string
	factory machine.Factory
}

type Foundry struct {
	config      config.Config
	tickChannel <-chan time.Time
	startHook   func() error

	catalog    *registry.Catalog
	registry   *registry.Registry
	blueprints *machine.Blueprints
	extra      []blueprint
	store      storage.Store
	publishers []netsync.Publisher
	nats       *netsync.Client

	world  *world.World
	hub    *events.Hub
	server *server.Server
	stage  *worldstage.Manager
	tracer trace.Tracer

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool

	subscribers []chan uint64
	mu          *sync.RWMutex
}

// New builds a foundry from the configuration and opts. Nothing runs until Start is called.
func New(opts ...Option) (*Foundry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, eris.Wrap(err, "Failed to load config to start foundry")
	}
	foundryOpts, worldOpts := separateOptions(opts)

	if err := flog.Configure(&log.Logger, cfg.LogLevel, cfg.LogPretty); err != nil {
		return nil, eris.Wrap(err, "failed to configure logger")
	}
	if cfg.StatsdAddress != "" {
		if err := statsd.Init(cfg.StatsdAddress, []string{"namespace:" + cfg.Namespace}); err != nil {
			return nil, eris.Wrap(err, "failed to init statsd")
		}
	}

	f := &Foundry{
		config:     *cfg,
		blueprints: machine.NewBlueprints(),
		stage:      worldstage.NewManager(),
		tracer:     otel.Tracer("foundry"),
		mu:         &sync.RWMutex{},
	}
	for _, opt := range foundryOpts {
		opt(f)
	}

	if err := f.setup(worldOpts); err != nil {
		f.closeResources()
		return nil, err
	}
	return f, nil
}

func (f *Foundry) setup(worldOpts []world.Option) error {
	if f.catalog == nil {
		catalog, err := loadCatalog(f.config.CatalogPath)
		if err != nil {
			return err
		}
		f.catalog = catalog
	}
	f.registry = registry.New(f.catalog)

	if err := recycler.Register(f.blueprints, f.registry, f.registry); err != nil {
		return eris.Wrap(err, "failed to register recycler blueprint")
	}
	for _, b := range f.extra {
		if err := f.blueprints.Register(b.kind, b.factory); err != nil {
			return eris.Wrapf(err, "failed to register blueprint %s", b.kind)
		}
	}

	if f.store == nil {
		store, err := newStore(f.config)
		if err != nil {
			return err
		}
		f.store = store
	}

	f.hub = events.NewHub(f.config.SnapshotCacheBytes)
	publishers := append([]netsync.Publisher{f.hub}, f.publishers...)
	if f.config.SyncNATS {
		client, err := netsync.NewClient()
		if err != nil {
			return eris.Wrap(err, "failed to connect snapshot sync")
		}
		f.nats = client
		publishers = append(publishers, netsync.NewNATSPublisher(client.Conn, f.config.Namespace))
	}

	defaults := []world.Option{
		world.WithStore(f.store),
		world.WithPublisher(netsync.Fanout(publishers)),
		world.WithSaveInterval(f.config.SaveInterval),
	}
	f.world = world.New(f.blueprints, f.registry, append(defaults, worldOpts...)...)

	s, err := server.New(f.world, f.hub, f.stage, server.WithPort(f.config.Port))
	if err != nil {
		return eris.Wrap(err, "failed to create server")
	}
	f.server = s
	return nil
}

func loadCatalog(path string) (*registry.Catalog, error) {
	if path == "" {
		return registry.DefaultCatalog(), nil
	}
	catalog, err := registry.LoadCatalog(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load catalog %s", path)
	}
	return catalog, nil
}

func newStore(cfg config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, eris.Wrap(err, "failed to open sqlite store")
		}
		return store, nil
	case config.StorageRedis:
		return redis.NewStore(redis.Options{
			Addr:        cfg.RedisAddress,
			Password:    cfg.RedisPassword,
			DB:          0,                              // use default DB
			DialTimeout: RedisDialTimeOut * time.Second, // Increase startup dial timeout
		}, cfg.Namespace), nil
	default:
		return nil, eris.Errorf("unknown storage type %q", cfg.Storage)
	}
}

// Start loads the world and runs the server and the tick loop. It blocks until Stop is called,
// a termination signal arrives or either loop fails. The world is saved before Start returns.
func (f *Foundry) Start() error {
	f.lifecycle.Lock()
	if f.closed {
		f.lifecycle.Unlock()
		return eris.New("foundry is stopped")
	}
	if err := f.stage.Advance(worldstage.Starting); err != nil {
		f.lifecycle.Unlock()
		return eris.Wrap(err, "foundry was already started")
	}
	var ctx context.Context
	ctx, f.cancel = context.WithCancel(context.Background())
	f.done = make(chan struct{})
	f.lifecycle.Unlock()
	defer close(f.done)

	err := f.run(ctx)
	f.shutdown()
	return err
}

func (f *Foundry) run(ctx context.Context) error {
	if err := f.stage.Advance(worldstage.Loading); err != nil {
		return err
	}
	if err := f.world.Init(ctx); err != nil {
		return eris.Wrap(err, "failed to init world")
	}
	if err := f.stage.Advance(worldstage.Running); err != nil {
		return err
	}

	// Handles SIGINT and SIGTERM signals and starts the shutdown process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("Received termination signal")
			f.cancel()
		case <-ctx.Done():
		}
	}()

	// A custom tick channel gives tests manual control over when ticks run.
	if f.tickChannel == nil {
		ticker := time.NewTicker(time.Second / time.Duration(f.config.TickRate))
		defer ticker.Stop()
		f.tickChannel = ticker.C
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return f.server.Serve(ctx)
	})

	if f.startHook != nil {
		if err := f.startHook(); err != nil {
			f.cancel()
			_ = eg.Wait()
			return eris.Wrap(err, "failed to run start hook")
		}
	}

	eg.Go(func() error {
		return f.tickLoop(ctx)
	})
	return eg.Wait()
}

func (f *Foundry) tickLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-f.tickChannel:
			if !ok {
				return nil
			}
			if err := f.nextTick(ctx); err != nil {
				return eris.Wrap(err, "failed to apply tick")
			}
		}
	}
}

func (f *Foundry) nextTick(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "world.tick")
	defer span.End()

	startTime := time.Now()
	tick := f.world.CurrentTick()
	span.SetAttributes(attribute.Int64("tick", int64(tick))) //nolint:gosec // ticks stay far below MaxInt64

	if err := f.world.Tick(ctx); err != nil {
		span.SetStatus(codes.Error, eris.ToString(err, true))
		span.RecordError(err)
		return eris.Wrap(err, "failed to tick world")
	}
	f.hub.Flush()

	f.publishTick(ctx, tick)

	log.Debug().
		Uint64("tick", tick).
		Dur("duration", time.Since(startTime)).
		Int("machines", f.world.MachineCount()).
		Msg("Tick completed")
	return nil
}

// shutdown rejects further events, saves every machine and releases the resources. It runs on
// the goroutine that ran the tick loop, after the loop exited.
func (f *Foundry) shutdown() {
	if err := f.stage.Advance(worldstage.ShuttingDown); err != nil {
		log.Warn().Err(err).Msg("unexpected stage on shutdown")
	}
	f.world.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
	defer cancel()
	if err := f.world.SaveAll(ctx); err != nil {
		log.Error().Err(err).Msg("failed to save world on shutdown")
	} else {
		log.Info().Int("machines", f.world.MachineCount()).Msg("Saved world")
	}

	f.closeSubscribers()
	f.closeResources()
	if err := f.stage.Advance(worldstage.ShutDown); err != nil {
		log.Warn().Err(err).Msg("unexpected stage on shutdown")
	}
}

func (f *Foundry) closeResources() {
	if f.hub != nil {
		f.hub.Shutdown()
	}
	if f.nats != nil {
		f.nats.Close()
	}
	if f.store != nil {
		if err := f.store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
}

// Subscribe returns a channel receiving the number of every completed tick. The channel is
// closed once the foundry stopped. Subscribers must keep receiving or the tick loop stalls.
func (f *Foundry) Subscribe() <-chan uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isClosed() {
		return nil
	}

	r := make(chan uint64)
	f.subscribers = append(f.subscribers, r)
	return r
}

func (f *Foundry) isClosed() bool {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	return f.closed
}

func (f *Foundry) publishTick(ctx context.Context, tick uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- tick:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Foundry) closeSubscribers() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = nil
}

// Stop stops a running foundry and waits until its world was saved. Stopping a foundry that was
// never started only releases its resources.
func (f *Foundry) Stop() {
	f.lifecycle.Lock()
	if f.closed {
		f.lifecycle.Unlock()
		return
	}
	f.closed = true
	cancel, done := f.cancel, f.done
	f.lifecycle.Unlock()

	if cancel == nil {
		_ = f.stage.Advance(worldstage.ShuttingDown)
		f.world.Shutdown()
		f.closeSubscribers()
		f.closeResources()
		_ = f.stage.Advance(worldstage.ShutDown)
		return
	}
	cancel()
	<-done
}

func (f *Foundry) World() *world.World {
	return f.world
}

func (f *Foundry) Registry() *registry.Registry {
	return f.registry
}

func (f *Foundry) Blueprints() *machine.Blueprints {
	return f.blueprints
}

func (f *Foundry) Hub() *events.Hub {
	return f.hub
}

func (f *Foundry) Stage() worldstage.Stage {
	return f.stage.Current()
}

func (f *Foundry) Config() config.Config {
	return f.config
}

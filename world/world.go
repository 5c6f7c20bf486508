// Package world owns every authoritative machine and runs them on a single tick goroutine.
//
// Nothing outside the tick goroutine touches a machine. Servers and subscribers Submit events,
// which are applied at the start of the next tick, and slow work runs in background tasks whose
// results are applied on the tick goroutine as well.
package world

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/foundry/inventory"
	"pkg.world.dev/world-engine/foundry/log"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/registry"
	"pkg.world.dev/world-engine/foundry/search"
	"pkg.world.dev/world-engine/foundry/statsd"
	"pkg.world.dev/world-engine/foundry/storage"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

const (
	DefaultSaveInterval = 100
	resultBufferSize    = 256

	registryMeta = "registry"
)

var (
	ErrMachineExists   = eris.New("a machine already exists at this key")
	ErrMachineNotFound = eris.New("no machine at this key")
	ErrNotUsable       = eris.New("requester may not use this machine")
	ErrWorldStopped    = eris.New("world is no longer accepting events")
)

type Option func(*World)

func WithStore(s storage.Store) Option {
	return func(w *World) {
		w.store = s
	}
}

// WithPublisher sets where snapshots go. Snapshots are discarded by default.
func WithPublisher(p netsync.Publisher) Option {
	return func(w *World) {
		if p != nil {
			w.publisher = p
		}
	}
}

func WithSequencer(s *netsync.Sequencer) Option {
	return func(w *World) {
		w.sequencer = s
	}
}

// WithSaveInterval sets how many ticks pass between saves of unsaved machines. Zero disables
// periodic saves; the world is still saved by SaveAll.
func WithSaveInterval(ticks uint64) Option {
	return func(w *World) {
		w.saveInterval = ticks
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

type World struct {
	blueprints *machine.Blueprints
	registry   *registry.Registry
	store      storage.Store
	publisher  netsync.Publisher
	sequencer  *netsync.Sequencer
	grid       *PowerGrid
	logger     zerolog.Logger

	saveInterval uint64

	// Machines are ticked in the order they were placed.
	machines map[types.Key]*machine.Machine
	order    []types.Key
	ids      map[types.Key]uint32
	keys     map[uint32]types.Key
	nextID   uint32
	unsaved  bitmap.Bitmap
	deleted  []types.Key
	removals []netsync.Snapshot

	// Set when the registry was changed by an event and the change is not stored yet.
	registryChanged bool

	// Last published state of every machine, the source of the search index.
	states       map[types.Key]tag.Compound
	indexChanged bool
	index        atomic.Pointer[search.Index]

	mu      sync.Mutex
	pending []submission
	stopped bool
	results chan func(*World)
	done    chan struct{}
	running sync.WaitGroup

	tick atomic.Uint64
}

func New(blueprints *machine.Blueprints, reg *registry.Registry, opts ...Option) *World {
	w := &World{
		blueprints:   blueprints,
		registry:     reg,
		publisher:    netsync.Discard,
		sequencer:    netsync.NewSequencer(),
		grid:         NewPowerGrid(),
		logger:       zlog.Logger,
		saveInterval: DefaultSaveInterval,
		machines:     make(map[types.Key]*machine.Machine),
		order:        make([]types.Key, 0),
		ids:          make(map[types.Key]uint32),
		keys:         make(map[uint32]types.Key),
		states:       make(map[types.Key]tag.Compound),
		pending:      make([]submission, 0),
		results:      make(chan func(*World), resultBufferSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.index.Store(search.NewIndex(nil))
	return w
}

func (w *World) Registry() *registry.Registry {
	return w.registry
}

func (w *World) Grid() *PowerGrid {
	return w.grid
}

// Blueprints returns the kinds machines can be placed as.
func (w *World) Blueprints() []string {
	return w.blueprints.Kinds()
}

func (w *World) MachineCount() int {
	return len(w.machines)
}

func (w *World) Role() types.Role {
	return types.RoleAuthoritative
}

func (w *World) CurrentTick() uint64 {
	return w.tick.Load()
}

// Get returns the machine at key. It may only be called from the tick goroutine.
func (w *World) Get(key types.Key) (*machine.Machine, bool) {
	m, ok := w.machines[key]
	return m, ok
}

// Keys returns the keys of every machine in tick order. It may only be called from the tick
// goroutine.
func (w *World) Keys() []types.Key {
	return slices.Clone(w.order)
}

// Search runs p against the machine states published by the last tick. It is safe to call from
// any goroutine.
func (w *World) Search(p search.Param) ([]search.Document, error) {
	return w.index.Load().Search(p)
}

// machineOptions are the options every machine the world builds receives.
func (w *World) machineOptions() []machine.Option {
	return []machine.Option{
		machine.WithEnvironment(w.grid),
		machine.WithLogger(w.logger),
		machine.WithInventoryOptions(inventory.WithIdentities(w.registry), inventory.WithStackLimits(w.registry)),
	}
}

func (w *World) build(kind string, key types.Key) (*machine.Machine, error) {
	return w.blueprints.New(kind, key, w.machineOptions()...)
}

// Layouts returns the layout of every registered blueprint.
func (w *World) Layouts() ([]machine.Layout, error) {
	kinds := w.blueprints.Kinds()
	layouts := make([]machine.Layout, 0, len(kinds))
	for _, kind := range kinds {
		probe, err := w.build(kind, types.Key{})
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, probe.Layout())
	}
	return layouts, nil
}

// Init checks every blueprint layout against the stored one and loads the stored machines.
// Loaded machines are synced to observers on the first tick.
func (w *World) Init(ctx context.Context) error {
	if w.store == nil {
		w.logger.Warn().Msg("No storage configured, machines will not be persisted")
		return nil
	}

	layouts, err := w.Layouts()
	if err != nil {
		return err
	}
	for _, layout := range layouts {
		bz, err := json.Marshal(layout)
		if err != nil {
			return eris.Wrap(err, "failed to marshal layout")
		}
		if err := storage.CheckLayout(ctx, w.store, layout.Kind, bz); err != nil {
			return err
		}
	}

	if err := w.restoreRegistry(ctx); err != nil {
		return err
	}

	records, err := w.store.Load(ctx)
	if err != nil {
		return err
	}
	slices.SortFunc(records, func(a, b storage.Record) int {
		return types.CompareKeys(a.Key, b.Key)
	})
	for _, r := range records {
		m, err := w.build(r.Kind, r.Key)
		if err != nil {
			w.logger.Error().Err(err).Str("machine", r.Key.String()).Msg("skipping stored machine")
			continue
		}
		m.ReadState(r.State, tag.All)
		m.ForceSync()
		w.add(m)
		if r.Tick > w.tick.Load() {
			w.tick.Store(r.Tick)
		}
	}
	w.logger.Info().Int("machines", len(records)).Uint64("tick", w.tick.Load()).Msg("Loaded machines")
	log.World(&w.logger, w, zerolog.DebugLevel)
	return nil
}

// restoreRegistry reapplies the matter registrations and blacklist entries stored by Save, so
// the input predicates that depend on them hold again before any machine runs.
func (w *World) restoreRegistry(ctx context.Context) error {
	bz, err := w.store.GetMeta(ctx, registryMeta)
	if eris.Is(err, storage.ErrNoMetaFound) {
		return nil
	} else if err != nil {
		return err
	}
	var changes registry.Changes
	if err := json.Unmarshal(bz, &changes); err != nil {
		w.logger.Error().Err(err).Msg("ignoring malformed stored registry changes")
		return nil
	}
	if err := w.registry.Restore(changes); err != nil {
		w.logger.Warn().Err(err).Msg("some stored registry changes no longer apply")
	}
	w.logger.Info().
		Int("registered", len(changes.Matter)).
		Int("blacklisted", len(changes.Blacklist)).
		Msg("Restored registry changes")
	return nil
}

func (w *World) saveRegistry(ctx context.Context) error {
	bz, err := json.Marshal(w.registry.Changes())
	if err != nil {
		return eris.Wrap(err, "failed to marshal registry changes")
	}
	if err := w.store.SetMeta(ctx, registryMeta, bz); err != nil {
		return err
	}
	w.registryChanged = false
	return nil
}

func (w *World) add(m *machine.Machine) {
	key := m.Key()
	w.machines[key] = m
	w.order = append(w.order, key)
	id := w.nextID
	w.nextID++
	w.ids[key] = id
	w.keys[id] = key
	w.deleted = slices.DeleteFunc(w.deleted, func(k types.Key) bool { return k == key })
}

func (w *World) remove(key types.Key) (*machine.Machine, bool) {
	m, ok := w.machines[key]
	if !ok {
		return nil, false
	}
	m.Invalidate()
	delete(w.machines, key)
	w.order = slices.DeleteFunc(w.order, func(k types.Key) bool { return k == key })
	id := w.ids[key]
	w.unsaved.Remove(id)
	delete(w.ids, key)
	delete(w.keys, id)
	delete(w.states, key)
	w.deleted = append(w.deleted, key)
	w.indexChanged = true
	return m, true
}

// Tick applies queued events and finished background results, ticks every machine, publishes a
// snapshot of every machine that asked for a sync and saves unsaved machines when the save
// interval is reached.
func (w *World) Tick(ctx context.Context) error {
	start := time.Now()

	eventsStart := time.Now()
	w.applyEvents()
	w.applyResults()
	for _, s := range w.removals {
		w.publish(ctx, s)
	}
	w.removals = w.removals[:0]
	statsd.EmitTickStat(eventsStart, "events")

	machinesStart := time.Now()
	published := 0
	for _, key := range slices.Clone(w.order) {
		m, ok := w.machines[key]
		if !ok {
			continue
		}
		m.Tick(types.RoleAuthoritative)
		if m.TakeChanged() || m.IsActive() {
			w.unsaved.Set(w.ids[key])
		}
		if m.NeedsSync() {
			w.publishState(ctx, m)
			published++
		}
	}
	statsd.EmitTickStat(machinesStart, "machines")
	statsd.EmitCount("snapshots", int64(published))

	tick := w.tick.Add(1)

	if w.saveInterval > 0 && tick%w.saveInterval == 0 {
		saveStart := time.Now()
		if err := w.Save(ctx); err != nil {
			return err
		}
		statsd.EmitTickStat(saveStart, "save")
	}

	if w.indexChanged {
		w.rebuildIndex()
	}

	statsd.EmitGauge("machines", float64(len(w.machines)))
	statsd.EmitTickStat(start, "full_tick")
	return nil
}

func (w *World) publishState(ctx context.Context, m *machine.Machine) {
	state := m.Snapshot()
	w.states[m.Key()] = state.Clone()
	w.indexChanged = true
	w.publish(ctx, netsync.Snapshot{Key: m.Key(), Kind: m.Kind(), State: state})
}

func (w *World) publish(ctx context.Context, s netsync.Snapshot) {
	s.Tick = w.tick.Load()
	w.sequencer.Stamp(&s)
	if err := w.publisher.Publish(ctx, s); err != nil {
		w.logger.Warn().Err(err).Str("machine", s.Key.String()).Msg("failed to publish snapshot")
	}
}

func (w *World) rebuildIndex() {
	docs := make([]search.Document, 0, len(w.states))
	for _, key := range w.order {
		m := w.machines[key]
		state, ok := w.states[key]
		if !ok {
			continue
		}
		docs = append(docs, search.Document{
			Key:        key,
			Kind:       m.Kind(),
			Components: m.ComponentNames(),
			State:      state,
		})
	}
	w.index.Store(search.NewIndex(docs))
	w.indexChanged = false
}

// Save writes every unsaved machine and deletes removed ones.
func (w *World) Save(ctx context.Context) error {
	if w.store == nil {
		w.unsaved.Clear()
		w.deleted = w.deleted[:0]
		w.registryChanged = false
		return nil
	}

	if w.registryChanged {
		if err := w.saveRegistry(ctx); err != nil {
			return err
		}
	}

	records := make([]storage.Record, 0, w.unsaved.Count())
	w.unsaved.Range(func(id uint32) {
		key, ok := w.keys[id]
		if !ok {
			return
		}
		records = append(records, w.record(w.machines[key]))
	})
	if err := w.store.Save(ctx, records); err != nil {
		return err
	}
	if err := w.store.Delete(ctx, w.deleted...); err != nil {
		return err
	}
	w.logger.Debug().Int("saved", len(records)).Int("deleted", len(w.deleted)).Msg("Saved machines")
	w.unsaved.Clear()
	w.deleted = w.deleted[:0]
	return nil
}

// SaveAll writes every machine regardless of whether it changed.
func (w *World) SaveAll(ctx context.Context) error {
	for _, id := range w.ids {
		w.unsaved.Set(id)
	}
	return w.Save(ctx)
}

func (w *World) record(m *machine.Machine) storage.Record {
	state := tag.New()
	m.WriteState(state, tag.All)
	return storage.Record{Key: m.Key(), Kind: m.Kind(), Tick: w.tick.Load(), State: state}
}

// Shutdown stops accepting events and waits for background tasks to finish. Results of tasks
// that finish after the last tick are dropped.
func (w *World) Shutdown() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.done)
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, s := range pending {
		s.reply <- Result{Err: ErrWorldStopped}
	}
	w.running.Wait()
}

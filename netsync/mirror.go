package netsync

import (
	"slices"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

// Mirror is the presentation-side copy of the world. It is not safe for concurrent use; the
// owner applies snapshots and ticks it from one goroutine.
type Mirror struct {
	blueprints *machine.Blueprints
	opts       []machine.Option
	logger     zerolog.Logger

	machines map[types.Key]*machine.Machine
	last     map[types.Key]Snapshot
	applied  map[types.Key]uint64
}

func NewMirror(blueprints *machine.Blueprints, logger zerolog.Logger, opts ...machine.Option) *Mirror {
	return &Mirror{
		blueprints: blueprints,
		opts:       opts,
		logger:     logger,
		machines:   make(map[types.Key]*machine.Machine),
		last:       make(map[types.Key]Snapshot),
		applied:    make(map[types.Key]uint64),
	}
}

// Apply replaces the machine at s.Key with one rebuilt from s. Snapshots that do not supersede
// the last one applied for the key are dropped and Apply returns false.
func (m *Mirror) Apply(s Snapshot) (bool, error) {
	if last, ok := m.last[s.Key]; ok && !s.Supersedes(last) {
		m.logger.Debug().
			Str("key", s.Key.String()).
			Uint64("seq", s.Seq).
			Uint64("last_seq", last.Seq).
			Msg("dropping stale snapshot")
		return false, nil
	}

	if s.Removed {
		if existing, ok := m.machines[s.Key]; ok {
			existing.Invalidate()
		}
		delete(m.machines, s.Key)
		m.last[s.Key] = Snapshot{Key: s.Key, Epoch: s.Epoch, Seq: s.Seq, Removed: true}
		return true, nil
	}

	rebuilt, err := m.blueprints.New(s.Kind, s.Key, m.opts...)
	if err != nil {
		return false, eris.Wrapf(err, "failed to rebuild machine at %s", s.Key)
	}
	state := s.State
	if state == nil {
		state = tag.New()
	}
	rebuilt.ReadState(state, tag.All)

	if existing, ok := m.machines[s.Key]; ok {
		existing.Invalidate()
	}
	m.machines[s.Key] = rebuilt
	m.last[s.Key] = Snapshot{Key: s.Key, Kind: s.Kind, Epoch: s.Epoch, Seq: s.Seq, Tick: s.Tick}
	m.applied[s.Key]++
	return true, nil
}

func (m *Mirror) Get(key types.Key) (*machine.Machine, bool) {
	mach, ok := m.machines[key]
	return mach, ok
}

// Applied counts the snapshots applied for key since the mirror was created.
func (m *Mirror) Applied(key types.Key) uint64 {
	return m.applied[key]
}

func (m *Mirror) Len() int {
	return len(m.machines)
}

// Keys returns the keys of the mirrored machines in a stable order.
func (m *Mirror) Keys() []types.Key {
	keys := make([]types.Key, 0, len(m.machines))
	for k := range m.machines {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, types.CompareKeys)
	return keys
}

// Tick runs a presentation tick on every mirrored machine.
func (m *Mirror) Tick() {
	for _, key := range m.Keys() {
		m.machines[key].Tick(types.RolePresentation)
	}
}

package netsync_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/energy"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/recycler"
	"pkg.world.dev/world-engine/foundry/registry"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

func newBlueprints(t *testing.T) *machine.Blueprints {
	t.Helper()
	reg := registry.New(registry.DefaultCatalog())
	b := machine.NewBlueprints()
	require.NoError(t, recycler.Register(b, reg, reg))
	return b
}

func snapshotOf(m *machine.Machine, seq *netsync.Sequencer) netsync.Snapshot {
	s := netsync.Snapshot{Key: m.Key(), Kind: m.Kind(), State: m.Snapshot()}
	seq.Stamp(&s)
	return s
}

func TestMirror_AppliesOnlyNewerSnapshots(t *testing.T) {
	b := newBlueprints(t)
	key := types.Key{X: 3}
	authoritative, err := b.New(recycler.Kind, key)
	require.NoError(t, err)
	stored, _ := energy.Of(authoritative)
	seq := netsync.NewSequencerWithEpoch(1)

	stored.Receive(authoritative, 100, false)
	older := snapshotOf(authoritative, seq)
	stored.Receive(authoritative, 100, false)
	newer := snapshotOf(authoritative, seq)

	mirror := netsync.NewMirror(b, zerolog.Nop())
	applied, err := mirror.Apply(newer)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = mirror.Apply(older)
	require.NoError(t, err)
	assert.False(t, applied, "out of order snapshot is dropped")

	applied, err = mirror.Apply(newer)
	require.NoError(t, err)
	assert.False(t, applied, "duplicate is dropped")

	replica, ok := mirror.Get(key)
	require.True(t, ok)
	replicaStorage, _ := energy.Of(replica)
	assert.Equal(t, 200, replicaStorage.Stored())
	assert.Equal(t, uint64(1), mirror.Applied(key))
}

func TestMirror_RebuildsWholesale(t *testing.T) {
	b := newBlueprints(t)
	key := types.Key{X: 3}
	authoritative, err := b.New(recycler.Kind, key)
	require.NoError(t, err)
	r, _ := recycler.Of(authoritative)
	seq := netsync.NewSequencerWithEpoch(1)

	require.True(t, authoritative.Inventory().Insert(r.InputSlot(), types.NewItemStack("dirt", 4)))
	mirror := netsync.NewMirror(b, zerolog.Nop())
	_, err = mirror.Apply(snapshotOf(authoritative, seq))
	require.NoError(t, err)
	first, _ := mirror.Get(key)

	authoritative.Inventory().Take(r.InputSlot())
	_, err = mirror.Apply(snapshotOf(authoritative, seq))
	require.NoError(t, err)

	second, _ := mirror.Get(key)
	assert.NotSame(t, first, second)
	assert.False(t, first.Valid())
	assert.True(t, second.Inventory().Get(r.InputSlot()).IsEmpty(), "no merge with the previous state")
}

func TestMirror_Removal(t *testing.T) {
	b := newBlueprints(t)
	key := types.Key{X: 3}
	mirror := netsync.NewMirror(b, zerolog.Nop())

	applied, err := mirror.Apply(netsync.Snapshot{Key: key, Kind: recycler.Kind, Epoch: 1, Seq: 1, State: tag.New()})
	require.NoError(t, err)
	require.True(t, applied)
	existing, _ := mirror.Get(key)

	applied, err = mirror.Apply(netsync.Snapshot{Key: key, Epoch: 1, Seq: 2, Removed: true})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 0, mirror.Len())
	assert.False(t, existing.Valid())

	applied, err = mirror.Apply(netsync.Snapshot{Key: key, Kind: recycler.Kind, Epoch: 1, Seq: 1})
	require.NoError(t, err)
	assert.False(t, applied, "a removal supersedes older placements")
}

func TestMirror_UnknownKind(t *testing.T) {
	mirror := netsync.NewMirror(newBlueprints(t), zerolog.Nop())
	_, err := mirror.Apply(netsync.Snapshot{Key: types.Key{}, Kind: "teleporter", Epoch: 1, Seq: 1})
	assert.ErrorIs(t, err, machine.ErrUnknownBlueprint)
}

func TestMirror_TickMaintainsAmbience(t *testing.T) {
	b := newBlueprints(t)
	key := types.Key{X: 3}
	authoritative, err := b.New(recycler.Kind, key)
	require.NoError(t, err)
	r, _ := recycler.Of(authoritative)
	stored, _ := energy.Of(authoritative)
	require.True(t, authoritative.Inventory().Insert(r.InputSlot(), types.NewItemStack("dirt", 4)))
	stored.Receive(authoritative, recycler.EnergyCapacity, false)
	authoritative.ForceSync()

	mirror := netsync.NewMirror(b, zerolog.Nop())
	_, err = mirror.Apply(snapshotOf(authoritative, netsync.NewSequencerWithEpoch(1)))
	require.NoError(t, err)
	mirror.Tick()

	replica, _ := mirror.Get(key)
	assert.True(t, replica.Ambience().Playing)
	assert.Equal(t, uint64(1), replica.RenderRevision())
	assert.False(t, replica.NeedsSync())
	assert.DeepEqual(t, []types.Key{key}, mirror.Keys())
}

func TestMirror_KeepsItemsValuedOnlyByTheAuthoritativeRegistry(t *testing.T) {
	authoritativeReg := registry.New(registry.DefaultCatalog())
	require.NoError(t, authoritativeReg.Register("matter_recycler", 50))
	authoritativeBlueprints := machine.NewBlueprints()
	require.NoError(t, recycler.Register(authoritativeBlueprints, authoritativeReg, authoritativeReg))

	key := types.Key{X: 5}
	authoritative, err := authoritativeBlueprints.New(recycler.Kind, key)
	require.NoError(t, err)
	r, _ := recycler.Of(authoritative)
	require.True(t, authoritative.Inventory().Insert(r.InputSlot(), types.NewItemStack("matter_recycler", 1)))

	mirror := netsync.NewMirror(newBlueprints(t), zerolog.Nop())
	_, err = mirror.Apply(snapshotOf(authoritative, netsync.NewSequencerWithEpoch(1)))
	require.NoError(t, err)

	replica, ok := mirror.Get(key)
	require.True(t, ok)
	assert.Equal(t, "matter_recycler", replica.Inventory().Get(r.InputSlot()).Kind)
}

package machine_test

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

func populatedMachine(t *testing.T) *machine.Machine {
	t.Helper()
	m, c := newTestMachine(machine.WithEnvironment(power{testKey: 1}))
	c.step = 3
	c.count = 42
	require.True(t, m.SetRedstoneMode(types.RedstoneLow))
	require.True(t, m.Claim(machine.NewSecurityProtocol(uuid.New())))
	require.True(t, m.Inventory().Insert(c.slot, types.NewItemStack("iron_ingot", 7)))
	require.True(t, m.Inventory().Insert(m.UpgradeSlots()[1], types.NewItemStack("power_upgrade", 1)))
	m.SetMatterValue(99)
	m.Tick(types.RoleAuthoritative)
	return m
}

func TestState_RoundTripForEveryCategorySubset(t *testing.T) {
	for _, cats := range tag.Subsets() {
		t.Run(cats.String(), func(t *testing.T) {
			m := populatedMachine(t)

			written := tag.New()
			m.WriteState(written, cats)

			restored, _ := newTestMachine()
			restored.ReadState(written, cats)

			rewritten := tag.New()
			restored.WriteState(rewritten, cats)
			assert.DeepEqual(t, written, rewritten)
		})
	}
}

func TestState_FullRoundTripRestoresFields(t *testing.T) {
	m := populatedMachine(t)
	owner, _ := m.Owner()

	restored, c := newTestMachine()
	restored.ReadState(m.Snapshot(), tag.All)

	got, ok := restored.Owner()
	require.True(t, ok)
	assert.Equal(t, owner, got)
	assert.Equal(t, types.RedstoneLow, restored.RedstoneMode())
	assert.True(t, restored.RedstoneState())
	assert.Equal(t, 99, restored.MatterValue())
	assert.Equal(t, 42, c.count)
	assert.Equal(t, 3, c.step)
	assert.DeepEqual(t, m.Inventory().Items(), restored.Inventory().Items())
}

func TestWriteState_ClearsForcedUpdateEvenForPartialWrites(t *testing.T) {
	m, _ := newTestMachine()
	m.ForceSync()

	c := tag.New()
	m.WriteState(c, tag.Of(tag.Config))
	assert.False(t, m.NeedsSync())
	assert.False(t, c.Has("forceClientUpdate"))
}

func TestWriteState_RemovesStaleOwner(t *testing.T) {
	m, _ := newTestMachine()
	c := tag.New()
	c.SetString("Owner", uuid.NewString())

	m.WriteState(c, tag.Of(tag.Data))
	assert.False(t, c.Has("Owner"))
}

func TestReadState_MalformedOwnerIsLoggedAndAbsent(t *testing.T) {
	var buf bytes.Buffer
	m, _ := newTestMachine(machine.WithLogger(zerolog.New(&buf)))

	c := tag.New()
	c.SetString("Owner", "not-a-uuid")
	c.SetBool("redstoneState", true)

	require.NotPanics(t, func() { m.ReadState(c, tag.All) })
	assert.False(t, m.HasOwner())
	assert.True(t, m.RedstoneState(), "the rest of the read continues")
	assert.Contains(t, buf.String(), "invalid owner id")
}

func TestReadState_MissingKeysAreSkipped(t *testing.T) {
	m := populatedMachine(t)
	owner, _ := m.Owner()

	m.ReadState(tag.New(), tag.Of(tag.Config))
	assert.Equal(t, types.RedstoneLow, m.RedstoneMode())

	m.ReadState(tag.New(), tag.Of(tag.Data))
	got, ok := m.Owner()
	assert.True(t, ok)
	assert.Equal(t, owner, got)
}

func TestReadState_InvalidRedstoneModeFallsBackToDefault(t *testing.T) {
	m, _ := newTestMachine(machine.WithRedstoneMode(types.RedstoneDisabled))
	require.True(t, m.SetRedstoneMode(types.RedstoneHigh))

	c := tag.New()
	c.SetByte("redstoneMode", 9)
	m.ReadState(c, tag.Of(tag.Config))
	assert.Equal(t, types.RedstoneDisabled, m.RedstoneMode())
}

func TestClaimUnclaim_MutuallyExclusive(t *testing.T) {
	m, _ := newTestMachine()
	alice, bob := uuid.New(), uuid.New()

	assert.False(t, m.Unclaim(machine.NewSecurityProtocol(alice)), "nothing to unclaim")
	assert.True(t, m.Claim(machine.NewSecurityProtocol(alice)))
	assert.True(t, m.NeedsSync())

	assert.False(t, m.Claim(machine.NewSecurityProtocol(bob)))
	assert.False(t, m.Unclaim(machine.NewSecurityProtocol(bob)))
	assert.False(t, m.Unclaim(types.NewItemStack(machine.SecurityProtocolKind, 1)))

	owner, ok := m.Owner()
	require.True(t, ok)
	assert.Equal(t, alice, owner)

	assert.True(t, m.Unclaim(machine.NewSecurityProtocol(alice)))
	assert.False(t, m.HasOwner())
}

func TestClaim_RejectsTokensWithoutValidOwner(t *testing.T) {
	m, _ := newTestMachine()

	bad := types.NewItemStack(machine.SecurityProtocolKind, 1)
	assert.False(t, m.Claim(bad))

	bad.Tag = tag.New()
	bad.Tag.SetString("Owner", "not-a-uuid")
	assert.False(t, m.Claim(bad))
	assert.False(t, m.HasOwner())
	assert.False(t, m.NeedsSync())
}

func TestIsUsableBy(t *testing.T) {
	m, _ := newTestMachine()
	owner, stranger := uuid.New(), uuid.New()

	assert.True(t, m.IsUsableBy(machine.Requester{ID: stranger}), "unowned machines are usable by anyone")
	require.True(t, m.Claim(machine.NewSecurityProtocol(owner)))

	assert.True(t, m.IsUsableBy(machine.Requester{ID: owner}))
	assert.True(t, m.IsUsableBy(machine.Requester{ID: stranger, Privileged: true}))
	assert.False(t, m.IsUsableBy(machine.Requester{ID: stranger}))

	unbound := machine.NewSecurityProtocol(owner)
	unbound.Damage = 0
	assert.False(t, m.IsUsableBy(machine.Requester{ID: stranger, Items: []types.ItemStack{unbound}}))

	malformed := machine.NewSecurityProtocol(owner)
	malformed.Tag.SetString("Owner", "garbage")
	assert.False(t, m.IsUsableBy(machine.Requester{ID: stranger, Items: []types.ItemStack{malformed}}))

	credential := machine.NewSecurityProtocol(owner)
	assert.True(t, m.IsUsableBy(machine.Requester{ID: stranger, Items: []types.ItemStack{
		types.NewItemStack("iron_ingot", 3), credential,
	}}))
}

func TestDropItemAndPlaceFrom(t *testing.T) {
	m := populatedMachine(t)
	owner, _ := m.Owner()

	drop := m.DropItem()
	assert.Equal(t, testKind, drop.Kind)

	placed, c := newTestMachine()
	placed.PlaceFrom(drop)

	got, ok := placed.Owner()
	require.True(t, ok)
	assert.Equal(t, owner, got)
	assert.Equal(t, types.RedstoneLow, placed.RedstoneMode())
	assert.Equal(t, 42, c.count)
	assert.Equal(t, 7, placed.Inventory().Get(c.slot).Count)
	assert.Equal(t, "power_upgrade", placed.Inventory().Get(placed.UpgradeSlots()[1]).Kind)

	untouched, _ := newTestMachine()
	untouched.PlaceFrom(types.NewItemStack(testKind, 1))
	assert.False(t, untouched.HasOwner())
}

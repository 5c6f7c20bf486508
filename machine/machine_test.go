package machine_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/inventory"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

const testKind = "test_machine"

type upgradeTable map[string]map[types.UpgradeType]float64

func (u upgradeTable) Upgrades(item types.ItemStack) (map[types.UpgradeType]float64, bool) {
	m, ok := u[item.Kind]
	return m, ok
}

var testUpgrades = upgradeTable{
	"speed_upgrade": {types.UpgradeSpeed: 0.5, types.UpgradePowerUsage: 1.5},
	"power_upgrade": {types.UpgradePowerStorage: 2},
}

// flagSetter raises a flag every tick.
type flagSetter struct {
	machine.Base
	raised bool
}

func (*flagSetter) Name() string { return "flag_setter" }

func (f *flagSetter) Update(*machine.Machine) { f.raised = true }

// flagReader records whether the flag setter had already run when it was updated.
type flagReader struct {
	machine.Base
	sawFlag []bool
}

func (*flagReader) Name() string { return "flag_reader" }

func (f *flagReader) Update(m *machine.Machine) {
	setter, ok := machine.GetComponent[*flagSetter](m)
	f.sawFlag = append(f.sawFlag, ok && setter.raised)
}

// counter owns a slot, a config and a data field, and can be switched on.
type counter struct {
	count        int
	step         int
	on           bool
	activeFlips  int
	slot         int
	upgradeTypes []types.UpgradeType
}

func (*counter) Name() string { return "counter" }

func (c *counter) RegisterSlots(inv *inventory.Inventory) {
	c.slot = inv.AddSlot(inventory.NewSlot(true))
}

func (c *counter) Update(*machine.Machine) {
	if c.on {
		c.count += c.step
	}
}

func (c *counter) ReadState(_ *machine.Machine, t tag.Compound, cats tag.Categories) {
	if cats.Has(tag.Config) && t.HasNumber("Step") {
		c.step = t.GetInt("Step")
	}
	if cats.Has(tag.Data) {
		c.count = t.GetInt("Count")
	}
}

func (c *counter) WriteState(_ *machine.Machine, t tag.Compound, cats tag.Categories) {
	if cats.Has(tag.Config) {
		t.SetInt("Step", c.step)
	}
	if cats.Has(tag.Data) {
		t.SetInt("Count", c.count)
	}
}

func (c *counter) IsActive(*machine.Machine) bool { return c.on }

func (c *counter) OnActiveChange(m *machine.Machine) {
	c.activeFlips++
	m.ForceSync()
}

func (c *counter) AffectedBy(t types.UpgradeType) bool {
	for _, u := range c.upgradeTypes {
		if u == t {
			return true
		}
	}
	return false
}

func (*counter) SoundVolume() float64 { return 0.8 }

type power map[types.Key]int

func (p power) PowerInput(key types.Key) int { return p[key] }

var testKey = types.Key{X: 4, Y: 70, Z: -2}

func newTestMachine(opts ...machine.Option) (*machine.Machine, *counter) {
	c := &counter{step: 1, upgradeTypes: []types.UpgradeType{types.UpgradeSpeed}}
	m := machine.New(testKind, testKey, append([]machine.Option{
		machine.WithComponents(c),
		machine.WithUpgradeSlots(2, testUpgrades),
	}, opts...)...)
	return m, c
}

func TestNew_RegistersComponentSlotsBeforeUpgradeSlots(t *testing.T) {
	m, c := newTestMachine()

	assert.Equal(t, 0, c.slot)
	assert.DeepEqual(t, []int{1, 2}, m.UpgradeSlots())
	assert.DeepEqual(t, machine.Layout{
		Kind:       testKind,
		Slots:      []string{"generic", "upgrade", "upgrade"},
		Components: []string{"counter"},
	}, m.Layout())
}

func TestComponents_LaterComponentSeesEarlierUpdateInSameTick(t *testing.T) {
	setter, reader := &flagSetter{}, &flagReader{}
	m := machine.New(testKind, testKey, machine.WithComponents(setter, reader))

	m.Tick(types.RoleAuthoritative)
	assert.DeepEqual(t, []bool{true}, reader.sawFlag)
}

func TestComponentRegistry(t *testing.T) {
	m, c := newTestMachine()
	setter, other := &flagSetter{}, &flagSetter{}
	m.AddComponent(setter)
	m.AddComponent(other)

	got, ok := machine.GetComponent[*flagSetter](m)
	require.True(t, ok)
	assert.Same(t, setter, got)

	_, ok = machine.GetComponent[*flagReader](m)
	assert.False(t, ok)

	first, ok := m.ComponentAt(0)
	require.True(t, ok)
	assert.Same(t, c, first)

	assert.True(t, m.RemoveComponent(setter))
	assert.False(t, m.RemoveComponent(setter))
	got, ok = machine.GetComponent[*flagSetter](m)
	require.True(t, ok)
	assert.Same(t, other, got)

	removed, ok := m.RemoveComponentAt(0)
	require.True(t, ok)
	assert.Same(t, c, removed)
	_, ok = m.RemoveComponentAt(5)
	assert.False(t, ok)
	assert.DeepEqual(t, []string{"flag_setter"}, m.ComponentNames())
}

func TestTick_RedstoneRecomputedOnlyWhenDirty(t *testing.T) {
	env := power{}
	m, _ := newTestMachine(machine.WithEnvironment(env))

	m.Tick(types.RoleAuthoritative)
	assert.False(t, m.RedstoneState())
	assert.False(t, m.NeedsSync())

	env[testKey] = 15
	m.Tick(types.RoleAuthoritative)
	assert.False(t, m.RedstoneState(), "power changes are only seen after a neighbour change")

	m.NeighborChanged()
	m.Tick(types.RoleAuthoritative)
	assert.True(t, m.RedstoneState())
	assert.True(t, m.NeedsSync())
	assert.True(t, m.TakeChanged())
	assert.False(t, m.TakeChanged())
}

func TestTick_ActiveChangeHookFiresOncePerFlip(t *testing.T) {
	m, c := newTestMachine()

	m.Tick(types.RoleAuthoritative)
	assert.Equal(t, 0, c.activeFlips)

	c.on = true
	m.Tick(types.RoleAuthoritative)
	m.Tick(types.RoleAuthoritative)
	assert.Equal(t, 1, c.activeFlips)
	assert.Equal(t, 2, c.count)

	c.on = false
	m.Tick(types.RoleAuthoritative)
	assert.Equal(t, 2, c.activeFlips)
}

func TestTick_PresentationOnlyMaintainsLocalEffects(t *testing.T) {
	m, c := newTestMachine()
	c.on = true
	m.ForceSync()

	m.Tick(types.RolePresentation)
	assert.Equal(t, 0, c.count, "components are not updated on the presentation side")
	assert.Equal(t, 0, c.activeFlips)
	assert.Equal(t, machine.Ambience{Playing: true, Volume: 0.8}, m.Ambience())
	assert.Equal(t, uint64(1), m.RenderRevision())
	assert.False(t, m.NeedsSync())

	c.on = false
	m.Tick(types.RolePresentation)
	assert.Equal(t, machine.Ambience{}, m.Ambience())
	assert.Equal(t, uint64(1), m.RenderRevision())
}

func TestRedstoneActive(t *testing.T) {
	env := power{testKey: 3}
	m, _ := newTestMachine(machine.WithEnvironment(env), machine.WithRedstoneMode(types.RedstoneLow))
	m.Tick(types.RoleAuthoritative)
	assert.False(t, m.RedstoneActive())

	assert.True(t, m.SetRedstoneMode(types.RedstoneHigh))
	assert.True(t, m.RedstoneActive())
	assert.True(t, m.SetRedstoneMode(types.RedstoneDisabled))
	assert.True(t, m.RedstoneActive())
	assert.False(t, m.SetRedstoneMode(types.RedstoneMode(7)))
	assert.Equal(t, types.RedstoneDisabled, m.RedstoneMode())
}

func TestUpgradeMultiplier(t *testing.T) {
	m, _ := newTestMachine()
	slots := m.UpgradeSlots()

	assert.Equal(t, 1.0, m.UpgradeMultiplier(types.UpgradeSpeed))
	require.True(t, m.Inventory().Insert(slots[0], types.NewItemStack("speed_upgrade", 1)))
	require.True(t, m.Inventory().Insert(slots[1], types.NewItemStack("speed_upgrade", 1)))

	assert.Equal(t, 0.25, m.UpgradeMultiplier(types.UpgradeSpeed))
	assert.Equal(t, 1.0, m.UpgradeMultiplier(types.UpgradePowerUsage), "machine is not affected by power usage")
}

func TestCanInsertAndExtract_DefaultsWithoutSidedAccess(t *testing.T) {
	m, c := newTestMachine()
	assert.True(t, m.CanInsert(c.slot, types.NewItemStack("iron_ingot", 1)))
	assert.False(t, m.CanInsert(m.UpgradeSlots()[0], types.NewItemStack("iron_ingot", 1)))
	assert.False(t, m.CanExtract(c.slot))
}

func TestBlueprints(t *testing.T) {
	bp := machine.NewBlueprints()
	factory := func(key types.Key, opts ...machine.Option) *machine.Machine {
		m, _ := newTestMachine(opts...)
		return m
	}
	assert.NilError(t, bp.Register(testKind, factory))
	assert.ErrorIs(t, bp.Register(testKind, factory), machine.ErrBlueprintExists)

	m, err := bp.New(testKind, testKey)
	assert.NilError(t, err)
	assert.Equal(t, testKind, m.Kind())

	_, err = bp.New("missing", testKey)
	assert.ErrorIs(t, err, machine.ErrUnknownBlueprint)
	assert.DeepEqual(t, []string{testKind}, bp.Kinds())

	bp.Reset()
	assert.False(t, bp.Has(testKind))
}

func TestSecurityProtocolHelper(t *testing.T) {
	owner := uuid.New()
	item := machine.NewSecurityProtocol(owner)
	assert.Equal(t, machine.SecurityProtocolKind, item.Kind)
	assert.Equal(t, owner.String(), item.Tag.GetString("Owner"))
}

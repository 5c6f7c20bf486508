package energy_test

import (
	"testing"

	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/energy"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

type batteryUpgrades struct{}

func (batteryUpgrades) Upgrades(item types.ItemStack) (map[types.UpgradeType]float64, bool) {
	if item.Kind != "battery_upgrade" {
		return nil, false
	}
	return map[types.UpgradeType]float64{types.UpgradePowerStorage: 2}, true
}

type storageAffinity struct{ machine.Base }

func (storageAffinity) Name() string { return "storage_affinity" }

func (storageAffinity) AffectedBy(t types.UpgradeType) bool { return t == types.UpgradePowerStorage }

func newPowered(s *energy.Storage) *machine.Machine {
	return machine.New("battery", types.Key{},
		machine.WithComponents(s, storageAffinity{}),
		machine.WithUpgradeSlots(1, batteryUpgrades{}),
	)
}

func TestStorage_ReceiveAndExtractAreBounded(t *testing.T) {
	s := energy.NewStorage(1000, 300, 200)
	m := newPowered(s)

	assert.Equal(t, 300, s.Receive(m, 500, false))
	assert.Equal(t, 300, s.Receive(m, 500, true), "simulated receive")
	assert.Equal(t, 300, s.Stored())

	for i := 0; i < 3; i++ {
		s.Receive(m, 300, false)
	}
	assert.Equal(t, 1000, s.Stored())
	assert.Equal(t, 0, s.Receive(m, 1, false))

	assert.Equal(t, 200, s.Extract(500, false))
	assert.Equal(t, 800, s.Stored())
	assert.Equal(t, 0, s.Extract(-1, false))
}

func TestStorage_CapacityScalesWithUpgrades(t *testing.T) {
	s := energy.NewStorage(1000, 5000, 5000)
	m := newPowered(s)
	slot := m.UpgradeSlots()[0]

	assert.True(t, m.Inventory().Insert(slot, types.NewItemStack("battery_upgrade", 1)))
	assert.Equal(t, 2000, s.Capacity(m))
	assert.Equal(t, 2000, s.Receive(m, 5000, false))

	m.Inventory().Take(slot)
	m.Tick(types.RoleAuthoritative)
	assert.Equal(t, 1000, s.Stored(), "energy above the capacity is dropped")
}

func TestStorage_PersistsEnergyAsData(t *testing.T) {
	s := energy.NewStorage(1000, 1000, 1000)
	m := newPowered(s)
	s.Receive(m, 640, false)

	c := tag.New()
	m.WriteState(c, tag.Of(tag.Config, tag.Inventory))
	assert.False(t, c.Has("Energy"))
	m.WriteState(c, tag.Of(tag.Data))
	assert.Equal(t, 640, c.GetInt("Energy"))

	restored := energy.NewStorage(1000, 1000, 1000)
	newPowered(restored).ReadState(c, tag.All)
	assert.Equal(t, 640, restored.Stored())

	got, ok := energy.Of(m)
	assert.True(t, ok)
	assert.Same(t, s, got)
}

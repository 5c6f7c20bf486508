package recycler

import (
	"pkg.world.dev/world-engine/foundry/energy"
	"pkg.world.dev/world-engine/foundry/inventory"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/types"
)

const (
	Kind = "matter_recycler"

	EnergyCapacity   = 512000
	UpgradeSlotCount = 4
)

// Blueprint returns the factory for recycler machines. Matter values come from matter and
// upgrade items are resolved through upgrades.
func Blueprint(matter MatterTable, upgrades inventory.UpgradeSource) machine.Factory {
	return func(key types.Key, opts ...machine.Option) *machine.Machine {
		return machine.New(Kind, key, append([]machine.Option{
			machine.WithComponents(
				New(matter),
				energy.NewStorage(EnergyCapacity, EnergyCapacity, EnergyCapacity),
			),
			machine.WithUpgradeSlots(UpgradeSlotCount, upgrades),
			machine.WithRedstoneMode(types.RedstoneLow),
		}, opts...)...)
	}
}

func Register(b *machine.Blueprints, matter MatterTable, upgrades inventory.UpgradeSource) error {
	return b.Register(Kind, Blueprint(matter, upgrades))
}

// Of returns the recycler component of m.
func Of(m *machine.Machine) (*Recycler, bool) {
	return machine.GetComponent[*Recycler](m)
}

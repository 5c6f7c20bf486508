package machine

import (
	"pkg.world.dev/world-engine/foundry/inventory"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

// Component is a unit of behaviour attached to a single machine. Components are updated in the
// order they were added, so a component sees every change made by the components before it in
// the same tick.
type Component interface {
	Name() string
	// RegisterSlots is called once while the machine is built.
	RegisterSlots(inv *inventory.Inventory)
	Update(m *Machine)
	ReadState(m *Machine, c tag.Compound, cats tag.Categories)
	WriteState(m *Machine, c tag.Compound, cats tag.Categories)
}

// Activator is implemented by components that decide whether the machine is working.
type Activator interface {
	IsActive(m *Machine) bool
}

// ActiveChangeListener is notified when the machine's active state flips.
type ActiveChangeListener interface {
	OnActiveChange(m *Machine)
}

// UpgradeAffinity declares which upgrade types affect the machine.
type UpgradeAffinity interface {
	AffectedBy(t types.UpgradeType) bool
}

// SidedAccess restricts which slots automation may insert into or extract from.
type SidedAccess interface {
	CanInsert(slot int) bool
	CanExtract(slot int) bool
}

// Ambient is implemented by components that produce a running sound on the presentation side.
type Ambient interface {
	SoundVolume() float64
}

// Base provides no-op implementations of the optional Component hooks.
type Base struct{}

func (Base) RegisterSlots(*inventory.Inventory)                {}
func (Base) Update(*Machine)                                   {}
func (Base) ReadState(*Machine, tag.Compound, tag.Categories)  {}
func (Base) WriteState(*Machine, tag.Compound, tag.Categories) {}

// Package energy provides the energy buffer component shared by powered machines.
package energy

import (
	"math"

	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

const (
	Name      = "energy_storage"
	energyKey = "Energy"
)

var _ machine.Component = (*Storage)(nil)

// Storage buffers energy for the machine it is attached to. The effective capacity grows with the
// power_storage upgrades installed in the machine.
type Storage struct {
	machine.Base

	capacity   int
	maxReceive int
	maxExtract int
	stored     int
}

func NewStorage(capacity, maxReceive, maxExtract int) *Storage {
	return &Storage{
		capacity:   capacity,
		maxReceive: maxReceive,
		maxExtract: maxExtract,
	}
}

func (*Storage) Name() string {
	return Name
}

// Capacity is the base capacity scaled by the machine's power_storage multiplier.
func (s *Storage) Capacity(m *machine.Machine) int {
	return int(math.Round(float64(s.capacity) * m.UpgradeMultiplier(types.UpgradePowerStorage)))
}

func (s *Storage) Stored() int {
	return s.stored
}

func (s *Storage) MaxReceive() int {
	return s.maxReceive
}

func (s *Storage) MaxExtract() int {
	return s.maxExtract
}

// Receive adds up to amount energy and returns how much was accepted. With simulate set nothing
// changes.
func (s *Storage) Receive(m *machine.Machine, amount int, simulate bool) int {
	if amount <= 0 {
		return 0
	}
	accepted := min(amount, s.maxReceive, max(s.Capacity(m)-s.stored, 0))
	if !simulate {
		s.stored += accepted
	}
	return accepted
}

// Extract removes up to amount energy and returns how much was removed.
func (s *Storage) Extract(amount int, simulate bool) int {
	if amount <= 0 {
		return 0
	}
	extracted := min(amount, s.maxExtract, s.stored)
	if !simulate {
		s.stored -= extracted
	}
	return extracted
}

// Update drops energy above the capacity, which happens when a power_storage upgrade is removed.
func (s *Storage) Update(m *machine.Machine) {
	if capacity := s.Capacity(m); s.stored > capacity {
		s.stored = capacity
	}
}

func (s *Storage) ReadState(_ *machine.Machine, c tag.Compound, cats tag.Categories) {
	if cats.Has(tag.Data) {
		s.stored = max(c.GetInt(energyKey), 0)
	}
}

func (s *Storage) WriteState(_ *machine.Machine, c tag.Compound, cats tag.Categories) {
	if cats.Has(tag.Data) {
		c.SetInt(energyKey, s.stored)
	}
}

// Of returns the energy storage of m.
func Of(m *machine.Machine) (*Storage, bool) {
	return machine.GetComponent[*Storage](m)
}

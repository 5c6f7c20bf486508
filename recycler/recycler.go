// Package recycler implements the matter recycler: a powered machine that breaks any item with a
// matter value down into matter dust.
package recycler

import (
	"math"

	"pkg.world.dev/world-engine/foundry/energy"
	"pkg.world.dev/world-engine/foundry/inventory"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

const (
	Name = "matter_recycler"

	// DustKind is the item every recycled item turns into. Its damage value carries the matter.
	DustKind = "matter_dust"

	SpeedPerMatter  = 80
	EnergyPerMatter = 1000

	recycleTimeKey = "RecycleTime"
)

// MatterTable resolves the matter value of an item kind.
type MatterTable interface {
	Matter(kind string) (int, bool)
}

var (
	_ machine.Component            = (*Recycler)(nil)
	_ machine.Activator            = (*Recycler)(nil)
	_ machine.ActiveChangeListener = (*Recycler)(nil)
	_ machine.UpgradeAffinity      = (*Recycler)(nil)
	_ machine.SidedAccess          = (*Recycler)(nil)
	_ machine.Ambient              = (*Recycler)(nil)
)

type Recycler struct {
	matter MatterTable

	input  int
	output int

	recycleTime int
	progress    int
}

func New(matter MatterTable) *Recycler {
	return &Recycler{matter: matter}
}

func (*Recycler) Name() string {
	return Name
}

func (r *Recycler) RegisterSlots(inv *inventory.Inventory) {
	r.input = inv.AddSlot(inventory.NewInputSlot(r.recyclable, true))
	r.output = inv.AddSlot(inventory.NewOutputSlot(false))
}

func (r *Recycler) InputSlot() int {
	return r.input
}

func (r *Recycler) OutputSlot() int {
	return r.output
}

func (r *Recycler) RecycleTime() int {
	return r.recycleTime
}

// Progress is the completion of the current item in percent.
func (r *Recycler) Progress() int {
	return r.progress
}

func (r *Recycler) recyclable(item types.ItemStack) bool {
	return r.itemMatter(item) > 0
}

func (r *Recycler) itemMatter(item types.ItemStack) int {
	if item.IsEmpty() || item.Kind == DustKind || r.matter == nil {
		return 0
	}
	matter, ok := r.matter.Matter(item.Kind)
	if !ok {
		return 0
	}
	return matter
}

func (r *Recycler) inputMatter(m *machine.Machine) int {
	return r.itemMatter(m.Inventory().Get(r.input))
}

// Speed is the number of ticks the item in the input slot takes to recycle.
func (r *Recycler) Speed(m *machine.Machine) int {
	matter := math.Log1p(float64(r.inputMatter(m)))
	matter *= matter
	if matter <= 0 {
		return 1
	}
	return max(int(math.Round(SpeedPerMatter*matter*m.UpgradeMultiplier(types.UpgradeSpeed))), 1)
}

// DrainMax is the total energy recycling the input item costs.
func (r *Recycler) DrainMax(m *machine.Machine) int {
	matter := r.inputMatter(m)
	return int(math.Round(float64(matter*EnergyPerMatter) * m.UpgradeMultiplier(types.UpgradePowerUsage)))
}

// Drain is the energy one tick of recycling costs.
func (r *Recycler) Drain(m *machine.Machine) int {
	return r.DrainMax(m) / r.Speed(m)
}

// Recycling reports whether there is something to recycle and room for the dust.
func (r *Recycler) Recycling(m *machine.Machine) bool {
	return r.inputMatter(m) > 0 && r.canOutput(m)
}

func (r *Recycler) dust(m *machine.Machine) types.ItemStack {
	dust := types.NewItemStack(DustKind, 1)
	dust.Damage = min(r.inputMatter(m), math.MaxInt16)
	return dust
}

func (r *Recycler) canOutput(m *machine.Machine) bool {
	current := m.Inventory().Get(r.output)
	if current.IsEmpty() {
		return true
	}
	dust := r.dust(m)
	return current.SameItem(dust) && current.Count+dust.Count <= m.Inventory().MaxStack(r.output, dust)
}

func (r *Recycler) stored(m *machine.Machine) int {
	if s, ok := energy.Of(m); ok {
		return s.Stored()
	}
	return 0
}

// IsActive reports whether the recycler makes progress this tick: redstone lets it run, an item
// is waiting, the dust fits and there is energy for a full tick.
func (r *Recycler) IsActive(m *machine.Machine) bool {
	return m.RedstoneActive() && r.Recycling(m) && r.stored(m) >= r.Drain(m)
}

func (r *Recycler) Update(m *machine.Machine) {
	if r.IsActive(m) {
		drain := r.Drain(m)
		if s, ok := energy.Of(m); ok {
			s.Extract(drain, false)
		}
		r.recycleTime++
		speed := r.Speed(m)
		r.progress = int(math.Round(float64(r.recycleTime) / float64(speed) * 100))
		if r.recycleTime >= speed {
			r.recycleTime = 0
			r.recycleItem(m)
		}
	}
	if !r.Recycling(m) {
		r.recycleTime = 0
		r.progress = 0
	}
}

func (r *Recycler) recycleItem(m *machine.Machine) {
	if !r.Recycling(m) {
		return
	}
	if !m.Inventory().Produce(r.output, r.dust(m)) {
		return
	}
	m.Inventory().Decrement(r.input, 1)
	m.ForceSync()
}

func (*Recycler) OnActiveChange(m *machine.Machine) {
	m.ForceSync()
}

func (*Recycler) AffectedBy(t types.UpgradeType) bool {
	return t == types.UpgradeSpeed || t == types.UpgradePowerStorage || t == types.UpgradePowerUsage
}

func (r *Recycler) CanInsert(slot int) bool {
	return slot != r.output
}

func (r *Recycler) CanExtract(slot int) bool {
	return slot == r.output
}

func (*Recycler) SoundVolume() float64 {
	return 1
}

func (r *Recycler) ReadState(_ *machine.Machine, c tag.Compound, cats tag.Categories) {
	if cats.Has(tag.Data) {
		r.recycleTime = max(c.GetInt(recycleTimeKey), 0)
	}
}

func (r *Recycler) WriteState(_ *machine.Machine, c tag.Compound, cats tag.Categories) {
	if cats.Has(tag.Data) {
		// Speed upgrades can push the recycle time past the range of a short.
		c.SetInt(recycleTimeKey, r.recycleTime)
	}
}

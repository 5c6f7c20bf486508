package inventory

import (
	"pkg.world.dev/world-engine/foundry/types"
)

type SlotKind uint8

const (
	SlotGeneric SlotKind = iota
	SlotUpgrade
	SlotInput
	SlotOutput
)

func (k SlotKind) String() string {
	switch k {
	case SlotGeneric:
		return "generic"
	case SlotUpgrade:
		return "upgrade"
	case SlotInput:
		return "input"
	case SlotOutput:
		return "output"
	default:
		return "unknown"
	}
}

// UpgradeSource resolves the stat multipliers an item grants when it sits in an upgrade slot.
// ok is false when the item is not an upgrade.
type UpgradeSource interface {
	Upgrades(item types.ItemStack) (upgrades map[types.UpgradeType]float64, ok bool)
}

// Slot describes what a single inventory position accepts. It holds no item itself.
type Slot struct {
	kind            SlotKind
	accepts         func(types.ItemStack) bool
	limit           int
	keepOnDismantle bool
}

// NewSlot returns a slot that accepts any item.
func NewSlot(keepOnDismantle bool) *Slot {
	return &Slot{
		kind:            SlotGeneric,
		accepts:         func(types.ItemStack) bool { return true },
		keepOnDismantle: keepOnDismantle,
	}
}

// NewUpgradeSlot returns a slot that only holds a single upgrade item.
func NewUpgradeSlot(src UpgradeSource) *Slot {
	return &Slot{
		kind: SlotUpgrade,
		accepts: func(item types.ItemStack) bool {
			if src == nil {
				return false
			}
			_, ok := src.Upgrades(item)
			return ok
		},
		limit:           1,
		keepOnDismantle: true,
	}
}

// NewInputSlot returns a slot that accepts the items pred allows.
func NewInputSlot(pred func(types.ItemStack) bool, keepOnDismantle bool) *Slot {
	return &Slot{
		kind:            SlotInput,
		accepts:         pred,
		keepOnDismantle: keepOnDismantle,
	}
}

// NewOutputSlot returns a remove-only slot. Items only get in through Inventory.Produce.
func NewOutputSlot(keepOnDismantle bool) *Slot {
	return &Slot{
		kind:            SlotOutput,
		accepts:         func(types.ItemStack) bool { return false },
		keepOnDismantle: keepOnDismantle,
	}
}

func (s *Slot) Kind() SlotKind {
	return s.kind
}

func (s *Slot) KeepOnDismantle() bool {
	return s.keepOnDismantle
}

// Limit is the largest count the slot holds, 0 meaning the item's own stack limit.
func (s *Slot) Limit() int {
	return s.limit
}

func (s *Slot) Accepts(item types.ItemStack) bool {
	if item.IsEmpty() {
		return false
	}
	return s.accepts != nil && s.accepts(item)
}

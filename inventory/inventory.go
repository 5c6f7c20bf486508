// Package inventory holds the ordered, fixed-size slot lists machines expose to players and
// automation. Every insertion from outside the machine is checked against the slot predicate.
package inventory

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

const itemsKey = "Items"

// Identities resolves the numeric identity the item registry assigned to an item kind.
type Identities interface {
	Lookup(kind string) (id int, ok bool)
}

// StackLimits resolves the maximum stack size of an item kind.
type StackLimits interface {
	MaxStack(kind string) int
}

type Option func(*Inventory)

func WithIdentities(ids Identities) Option {
	return func(inv *Inventory) {
		inv.ids = ids
	}
}

func WithStackLimits(limits StackLimits) Option {
	return func(inv *Inventory) {
		inv.limits = limits
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(inv *Inventory) {
		inv.logger = logger
	}
}

type Inventory struct {
	slots  []*Slot
	items  []types.ItemStack
	ids    Identities
	limits StackLimits
	logger zerolog.Logger
}

func New(opts ...Option) *Inventory {
	inv := &Inventory{
		slots:  make([]*Slot, 0),
		items:  make([]types.ItemStack, 0),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// AddSlot appends a slot and returns its index. Slots are only added while a machine is being
// built.
func (inv *Inventory) AddSlot(s *Slot) int {
	inv.slots = append(inv.slots, s)
	inv.items = append(inv.items, types.ItemStack{})
	return len(inv.slots) - 1
}

func (inv *Inventory) Size() int {
	return len(inv.slots)
}

func (inv *Inventory) SlotAt(i int) (*Slot, bool) {
	if i < 0 || i >= len(inv.slots) {
		return nil, false
	}
	return inv.slots[i], true
}

// Get returns a copy of the stack in slot i, or an empty stack.
func (inv *Inventory) Get(i int) types.ItemStack {
	if i < 0 || i >= len(inv.items) {
		return types.ItemStack{}
	}
	return inv.items[i].Clone()
}

func (inv *Inventory) IsItemValidForSlot(i int, item types.ItemStack) bool {
	s, ok := inv.SlotAt(i)
	if !ok {
		return false
	}
	return s.Accepts(item) && item.Count <= inv.maxStack(s, item)
}

// Set replaces the contents of slot i. An empty stack clears the slot. It returns false without
// changing anything when the slot rejects the item.
func (inv *Inventory) Set(i int, item types.ItemStack) bool {
	if i < 0 || i >= len(inv.items) {
		return false
	}
	if item.IsEmpty() {
		inv.items[i] = types.ItemStack{}
		return true
	}
	if !inv.IsItemValidForSlot(i, item) {
		return false
	}
	inv.items[i] = item.Clone()
	return true
}

// Insert adds item to slot i, merging with a matching stack already there. The whole stack must
// fit; partial inserts are rejected.
func (inv *Inventory) Insert(i int, item types.ItemStack) bool {
	if !inv.IsItemValidForSlot(i, item) {
		return false
	}
	current := inv.items[i]
	if current.IsEmpty() {
		inv.items[i] = item.Clone()
		return true
	}
	if !current.SameItem(item) || current.Count+item.Count > inv.maxStack(inv.slots[i], item) {
		return false
	}
	inv.items[i].Count += item.Count
	return true
}

// Produce places machine output into an output slot, bypassing the remove-only predicate that
// keeps players and automation out. It merges with a matching stack like Insert.
func (inv *Inventory) Produce(i int, item types.ItemStack) bool {
	s, ok := inv.SlotAt(i)
	if !ok || s.Kind() != SlotOutput || item.IsEmpty() {
		return false
	}
	current := inv.items[i]
	if current.IsEmpty() {
		inv.items[i] = item.Clone()
		return true
	}
	if !current.SameItem(item) || current.Count+item.Count > inv.maxStack(s, item) {
		return false
	}
	inv.items[i].Count += item.Count
	return true
}

// Decrement removes up to n items from slot i and returns what was removed.
func (inv *Inventory) Decrement(i, n int) types.ItemStack {
	if i < 0 || i >= len(inv.items) || n <= 0 || inv.items[i].IsEmpty() {
		return types.ItemStack{}
	}
	current := inv.items[i]
	if n >= current.Count {
		inv.items[i] = types.ItemStack{}
		return current
	}
	inv.items[i].Count -= n
	return current.WithCount(n)
}

// Take empties slot i and returns its former contents.
func (inv *Inventory) Take(i int) types.ItemStack {
	if i < 0 || i >= len(inv.items) {
		return types.ItemStack{}
	}
	current := inv.items[i]
	inv.items[i] = types.ItemStack{}
	return current
}

// MaxStack returns how many of item slot i can hold.
func (inv *Inventory) MaxStack(i int, item types.ItemStack) int {
	s, ok := inv.SlotAt(i)
	if !ok {
		return 0
	}
	return inv.maxStack(s, item)
}

func (inv *Inventory) Clear() {
	for i := range inv.items {
		inv.items[i] = types.ItemStack{}
	}
}

// Each calls fn for every slot in order.
func (inv *Inventory) Each(fn func(i int, s *Slot, item types.ItemStack)) {
	for i, s := range inv.slots {
		fn(i, s, inv.items[i].Clone())
	}
}

// Items returns a copy of every slot's contents in slot order.
func (inv *Inventory) Items() []types.ItemStack {
	out := make([]types.ItemStack, len(inv.items))
	for i, item := range inv.items {
		out[i] = item.Clone()
	}
	return out
}

func (inv *Inventory) maxStack(s *Slot, item types.ItemStack) int {
	limit := types.DefaultMaxStack
	if inv.limits != nil {
		if l := inv.limits.MaxStack(item.Kind); l > 0 {
			limit = l
		}
	}
	if s.Limit() > 0 && s.Limit() < limit {
		limit = s.Limit()
	}
	return limit
}

// Write stores every non-empty slot under "Items".
func (inv *Inventory) Write(c tag.Compound) {
	c.SetList(itemsKey, inv.writeItems(func(int, *Slot) bool { return true }))
}

// WriteKept stores only the slots that survive dismantling.
func (inv *Inventory) WriteKept(c tag.Compound) {
	c.SetList(itemsKey, inv.writeItems(func(_ int, s *Slot) bool { return s.KeepOnDismantle() }))
}

func (inv *Inventory) writeItems(include func(int, *Slot) bool) tag.List {
	list := make(tag.List, 0)
	for i, item := range inv.items {
		if item.IsEmpty() || !include(i, inv.slots[i]) {
			continue
		}
		entry := tag.New()
		entry.SetByte("Slot", int8(i)) //nolint:gosec // machines have fewer than 128 slots
		item.Write(entry)
		if inv.ids != nil {
			if id, ok := inv.ids.Lookup(item.Kind); ok {
				entry.SetInt("id", id)
			}
		}
		list = append(list, entry)
	}
	return list
}

// Read replaces the inventory contents with the entries stored under "Items". Stored contents are
// restored as they were written, whatever the input predicates say now. Entries pointing at
// unknown slots, and non-upgrade items stored in upgrade slots, are logged and dropped.
func (inv *Inventory) Read(c tag.Compound) {
	inv.Clear()
	inv.readItems(c)
}

// ReadInto fills slots from the entries under "Items" without clearing the others first.
func (inv *Inventory) ReadInto(c tag.Compound) {
	inv.readItems(c)
}

func (inv *Inventory) readItems(c tag.Compound) {
	for _, entry := range c.GetList(itemsKey) {
		i := int(entry.GetByte("Slot"))
		item := types.ReadItemStack(entry)
		s, ok := inv.SlotAt(i)
		if !ok {
			inv.logger.Warn().Int("slot", i).Str("kind", item.Kind).Msg("dropping item stored in unknown slot")
			continue
		}
		if item.IsEmpty() {
			continue
		}
		if s.Kind() == SlotUpgrade && !s.Accepts(item) {
			inv.logger.Warn().
				Int("slot", i).
				Str("slot_kind", s.Kind().String()).
				Str("kind", item.Kind).
				Msg("dropping item its slot does not accept")
			continue
		}
		inv.items[i] = item
	}
}

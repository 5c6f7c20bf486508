// Package machine implements the state store of a single simulated machine: its inventory, its
// ordered component list, redstone configuration, ownership and the flags the world uses to
// decide when the machine needs to be pushed to observers.
package machine

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/foundry/inventory"
	"pkg.world.dev/world-engine/foundry/log"
	"pkg.world.dev/world-engine/foundry/types"
)

type Option func(*Machine)

// WithComponents attaches components in the given order. Their slots are registered before the
// upgrade slots.
func WithComponents(components ...Component) Option {
	return func(m *Machine) {
		m.components = append(m.components, components...)
	}
}

// WithUpgradeSlots reserves n upgrade slots whose items are resolved through src.
func WithUpgradeSlots(n int, src inventory.UpgradeSource) Option {
	return func(m *Machine) {
		m.upgradeSlotCount = n
		m.upgrades = src
	}
}

// WithRedstoneMode sets the mode a new machine starts in and falls back to on malformed data.
func WithRedstoneMode(mode types.RedstoneMode) Option {
	return func(m *Machine) {
		m.defaultMode = mode
		m.redstoneMode = mode
	}
}

func WithEnvironment(env Environment) Option {
	return func(m *Machine) {
		if env != nil {
			m.env = env
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Machine) {
		m.logger = log.NewMachineLogger(logger, m.key)
	}
}

func WithInventoryOptions(opts ...inventory.Option) Option {
	return func(m *Machine) {
		m.inventoryOpts = append(m.inventoryOpts, opts...)
	}
}

// Ambience is the presentation-side running state of a machine's sound.
type Ambience struct {
	Playing bool
	Volume  float64
}

type Machine struct {
	key  types.Key
	kind string

	inventory        *inventory.Inventory
	inventoryOpts    []inventory.Option
	components       []Component
	upgradeSlots     []int
	upgradeSlotCount int
	upgrades         inventory.UpgradeSource

	redstoneMode  types.RedstoneMode
	defaultMode   types.RedstoneMode
	redstoneState bool
	redstoneDirty bool

	owner *uuid.UUID

	forceSync   bool
	changed     bool
	lastActive  bool
	valid       bool
	matterValue int

	ambience       Ambience
	renderRevision uint64

	env    Environment
	logger zerolog.Logger
}

// New builds a machine and registers all of its slots. Slots cannot be added afterwards.
func New(kind string, key types.Key, opts ...Option) *Machine {
	m := &Machine{
		key:           key,
		kind:          kind,
		components:    make([]Component, 0),
		redstoneMode:  types.RedstoneHigh,
		defaultMode:   types.RedstoneHigh,
		redstoneDirty: true,
		valid:         true,
		env:           Unpowered,
		logger:        log.NewMachineLogger(zlog.Logger, key),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.inventory = inventory.New(append([]inventory.Option{inventory.WithLogger(m.logger)}, m.inventoryOpts...)...)
	for _, c := range m.components {
		c.RegisterSlots(m.inventory)
	}
	m.upgradeSlots = make([]int, 0, m.upgradeSlotCount)
	for i := 0; i < m.upgradeSlotCount; i++ {
		m.upgradeSlots = append(m.upgradeSlots, m.inventory.AddSlot(inventory.NewUpgradeSlot(m.upgrades)))
	}
	return m
}

func (m *Machine) Key() types.Key {
	return m.key
}

func (m *Machine) Kind() string {
	return m.kind
}

func (m *Machine) Inventory() *inventory.Inventory {
	return m.inventory
}

func (m *Machine) Logger() *zerolog.Logger {
	return &m.logger
}

func (m *Machine) UpgradeSlots() []int {
	return append([]int(nil), m.upgradeSlots...)
}

func (m *Machine) RedstoneMode() types.RedstoneMode {
	return m.redstoneMode
}

func (m *Machine) SetRedstoneMode(mode types.RedstoneMode) bool {
	if !mode.IsValid() {
		return false
	}
	m.redstoneMode = mode
	return true
}

func (m *Machine) RedstoneState() bool {
	return m.redstoneState
}

// RedstoneActive reports whether the redstone configuration currently lets the machine run.
func (m *Machine) RedstoneActive() bool {
	return m.redstoneMode.Active(m.redstoneState)
}

// NeighborChanged marks the redstone input for recomputation on the next authoritative tick.
func (m *Machine) NeighborChanged() {
	m.redstoneDirty = true
}

// ForceSync requests a full snapshot to observers after the current tick.
func (m *Machine) ForceSync() {
	m.forceSync = true
}

func (m *Machine) NeedsSync() bool {
	return m.forceSync
}

// TakeChanged reports whether the machine asked for persistence since the last call.
func (m *Machine) TakeChanged() bool {
	changed := m.changed
	m.changed = false
	return changed
}

// Invalidate marks the machine as removed. Deferred work must not touch an invalid machine.
func (m *Machine) Invalidate() {
	m.valid = false
}

func (m *Machine) Valid() bool {
	return m.valid
}

// IsActive reports whether any component says the machine is working.
func (m *Machine) IsActive() bool {
	for _, c := range m.components {
		if a, ok := c.(Activator); ok && a.IsActive(m) {
			return true
		}
	}
	return false
}

// AffectedBy reports whether any component declares an affinity for the upgrade type.
func (m *Machine) AffectedBy(t types.UpgradeType) bool {
	for _, c := range m.components {
		if a, ok := c.(UpgradeAffinity); ok && a.AffectedBy(t) {
			return true
		}
	}
	return false
}

// UpgradeMultiplier is the product of the multipliers the installed upgrades grant for t, or 1
// when the machine is not affected by t.
func (m *Machine) UpgradeMultiplier(t types.UpgradeType) float64 {
	multiplier := 1.0
	if !m.AffectedBy(t) || m.upgrades == nil {
		return multiplier
	}
	for _, i := range m.upgradeSlots {
		item := m.inventory.Get(i)
		if item.IsEmpty() {
			continue
		}
		upgrades, ok := m.upgrades.Upgrades(item)
		if !ok {
			continue
		}
		if v, ok := upgrades[t]; ok {
			multiplier *= v
		}
	}
	return multiplier
}

// CanInsert reports whether automation may put item into slot.
func (m *Machine) CanInsert(slot int, item types.ItemStack) bool {
	if !m.inventory.IsItemValidForSlot(slot, item) {
		return false
	}
	for _, c := range m.components {
		if s, ok := c.(SidedAccess); ok && !s.CanInsert(slot) {
			return false
		}
	}
	return true
}

// CanExtract reports whether automation may take from slot. Machines without a SidedAccess
// component expose nothing.
func (m *Machine) CanExtract(slot int) bool {
	for _, c := range m.components {
		if s, ok := c.(SidedAccess); ok && s.CanExtract(slot) {
			return true
		}
	}
	return false
}

func (m *Machine) MatterValue() int {
	return m.matterValue
}

func (m *Machine) SetMatterValue(v int) {
	m.matterValue = v
	m.ForceSync()
}

func (m *Machine) Ambience() Ambience {
	return m.ambience
}

// RenderRevision counts the forced updates a presentation-side machine has processed.
func (m *Machine) RenderRevision() uint64 {
	return m.renderRevision
}

func (m *Machine) PowerInput() int {
	return m.env.PowerInput(m.key)
}

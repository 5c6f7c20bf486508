package machine

import (
	"github.com/google/uuid"

	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

const (
	redstoneModeKey  = "redstoneMode"
	redstoneStateKey = "redstoneState"
	forceSyncKey     = "forceClientUpdate"
	matterValueKey   = "MatterValue"
	dropKey          = "Machine"
)

// WriteState stores the fields in cats into c, configs first, then data, then inventory, then
// every component in order. Writing always clears the forced update flag: whatever asked for a
// sync is now captured in c.
func (m *Machine) WriteState(c tag.Compound, cats tag.Categories) {
	if cats.Has(tag.Config) {
		c.SetByte(redstoneModeKey, int8(m.redstoneMode)) //nolint:gosec // validated on every write path
	}
	if cats.Has(tag.Data) {
		c.SetBool(forceSyncKey, m.forceSync)
		c.SetBool(redstoneStateKey, m.redstoneState)
		if m.owner != nil {
			c.SetString(ownerKey, m.owner.String())
		} else {
			c.Remove(ownerKey)
		}
		c.SetInt(matterValueKey, m.matterValue)
	}
	m.forceSync = false
	if cats.Has(tag.Inventory) {
		m.inventory.Write(c)
	}
	for _, comp := range m.components {
		comp.WriteState(m, c, cats)
	}
}

// ReadState restores the fields in cats from c in the same order WriteState writes them. Missing
// keys leave the current value in place and malformed values are logged and ignored, so a read
// never fails.
func (m *Machine) ReadState(c tag.Compound, cats tag.Categories) {
	if cats.Has(tag.Config) && c.HasNumber(redstoneModeKey) {
		mode := types.RedstoneMode(c.GetByte(redstoneModeKey)) //nolint:gosec // checked below
		if !mode.IsValid() {
			m.logger.Error().Int64("redstone_mode", c.GetLong(redstoneModeKey)).Msg("invalid redstone mode")
			mode = m.defaultMode
		}
		m.redstoneMode = mode
	}
	if cats.Has(tag.Data) {
		m.redstoneState = c.GetBool(redstoneStateKey)
		m.forceSync = c.GetBool(forceSyncKey)
		m.matterValue = c.GetInt(matterValueKey)
		m.readOwner(c)
	}
	if cats.Has(tag.Inventory) {
		m.inventory.Read(c)
	}
	for _, comp := range m.components {
		comp.ReadState(m, c, cats)
	}
}

func (m *Machine) readOwner(c tag.Compound) {
	raw := c.GetString(ownerKey)
	if raw == "" {
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		m.logger.Error().Str("owner", raw).Msg("invalid owner id")
		m.owner = nil
		return
	}
	m.owner = &id
}

// Snapshot writes every category into a fresh compound.
func (m *Machine) Snapshot() tag.Compound {
	c := tag.New()
	m.WriteState(c, tag.All)
	return c
}

// DropItem returns the item a dismantled machine turns into. It carries the slots that survive
// dismantling together with the machine's configs and data.
func (m *Machine) DropItem() types.ItemStack {
	machineTag := tag.New()
	m.inventory.WriteKept(machineTag)
	m.WriteState(machineTag, tag.Of(tag.Config, tag.Data))

	item := types.NewItemStack(m.kind, 1)
	item.Tag = tag.New()
	item.Tag.SetCompound(dropKey, machineTag)
	return item
}

// PlaceFrom restores a machine from an item produced by DropItem. Items without machine data
// leave the machine untouched.
func (m *Machine) PlaceFrom(item types.ItemStack) {
	if item.Tag == nil || !item.Tag.HasCompound(dropKey) {
		return
	}
	machineTag := item.Tag.GetCompound(dropKey)
	m.inventory.ReadInto(machineTag)
	m.ReadState(machineTag, tag.Of(tag.Config, tag.Data))
}

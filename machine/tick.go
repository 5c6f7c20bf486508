package machine

import "pkg.world.dev/world-engine/foundry/types"

// Tick advances the machine by one tick.
//
// On the presentation side only local effects are maintained. On the authoritative side the
// redstone input is recomputed when it was marked dirty, a pending sync marks the machine for
// persistence, the active-change hooks fire when the active state flipped, and every component is
// updated in registration order.
func (m *Machine) Tick(role types.Role) {
	if role == types.RolePresentation {
		m.maintainAmbience()
		if m.forceSync {
			m.renderRevision++
			m.forceSync = false
		}
		return
	}

	m.updateRedstone()
	if m.forceSync {
		m.changed = true
	}

	if active := m.IsActive(); active != m.lastActive {
		for _, c := range m.Components() {
			if l, ok := c.(ActiveChangeListener); ok {
				l.OnActiveChange(m)
			}
		}
		m.lastActive = m.IsActive()
	}

	for _, c := range m.Components() {
		c.Update(m)
	}
}

func (m *Machine) updateRedstone() {
	if !m.redstoneDirty {
		return
	}
	previous := m.redstoneState
	m.redstoneState = m.env.PowerInput(m.key) > 0
	m.redstoneDirty = false
	if previous != m.redstoneState {
		m.ForceSync()
	}
}

func (m *Machine) maintainAmbience() {
	var ambient Ambient
	for _, c := range m.components {
		if a, ok := c.(Ambient); ok {
			ambient = a
			break
		}
	}
	if ambient == nil {
		return
	}
	if m.IsActive() && m.valid {
		m.ambience = Ambience{Playing: true, Volume: ambient.SoundVolume()}
		return
	}
	m.ambience = Ambience{}
}

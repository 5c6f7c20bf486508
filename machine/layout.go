package machine

// Layout describes the shape persisted data of a machine kind depends on. Stored inventories
// address slots by index, so a blueprint whose layout changed cannot read old records.
type Layout struct {
	Kind       string   `json:"kind"`
	Slots      []string `json:"slots"`
	Components []string `json:"components"`
}

func (m *Machine) Layout() Layout {
	slots := make([]string, 0, m.inventory.Size())
	for i := 0; i < m.inventory.Size(); i++ {
		s, _ := m.inventory.SlotAt(i)
		slots = append(slots, s.Kind().String())
	}
	return Layout{
		Kind:       m.kind,
		Slots:      slots,
		Components: m.ComponentNames(),
	}
}

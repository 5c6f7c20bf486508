package machine

// AddComponent appends c. Components added after construction do not get slots.
func (m *Machine) AddComponent(c Component) {
	m.components = append(m.components, c)
}

// RemoveComponent removes the first occurrence of c.
func (m *Machine) RemoveComponent(c Component) bool {
	for i, existing := range m.components {
		if existing == c {
			_, ok := m.RemoveComponentAt(i)
			return ok
		}
	}
	return false
}

func (m *Machine) RemoveComponentAt(i int) (Component, bool) {
	if i < 0 || i >= len(m.components) {
		return nil, false
	}
	c := m.components[i]
	m.components = append(m.components[:i:i], m.components[i+1:]...)
	return c, true
}

func (m *Machine) ComponentAt(i int) (Component, bool) {
	if i < 0 || i >= len(m.components) {
		return nil, false
	}
	return m.components[i], true
}

func (m *Machine) Components() []Component {
	return append([]Component(nil), m.components...)
}

func (m *Machine) ComponentNames() []string {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}
	return names
}

// GetComponent returns the first component of m whose dynamic type is T.
func GetComponent[T Component](m *Machine) (T, bool) {
	for _, c := range m.components {
		if t, ok := c.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

package webhook

// TrackedDeliveries counts the per-delivery locks the manager still holds
func (m *Manager) TrackedDeliveries() int {
	n := 0
	m.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

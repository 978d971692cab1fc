package health

import (
	"sort"
	"sync"
)

// Checker reports the current health of one component.
type Checker func() Status

// Monitor holds the registered checkers.
type Monitor struct {
	mu     sync.RWMutex
	checkers map[string]Checker
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{checkers: make(map[string]Checker)}
}

// Register adds or replaces the checker for name.
func (m *Monitor) Register(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// Remove stops monitoring name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkers, name)
}

// Names returns the registered component names in sorted order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namesLocked()
}

func (m *Monitor) namesLocked() []string {
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every checker and aggregates the results under system. Checkers
// run outside the lock.
func (m *Monitor) Check(system string) Status {
	m.mu.RLock()
	names := m.namesLocked()
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = m.checkers[name]
	}
	m.mu.RUnlock()

	subs := make([]Status, 0, len(checkers))
	for i, checker := range checkers {
		if checker == nil {
			continue
		}
		st := checker()
		st.Component = names[i]
		subs = append(subs, st)
	}
	return Aggregate(system, subs)
}

// Aggregate folds sub-statuses into one. The input slice is copied.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "No components registered")
	}

	var unhealthy, degraded int
	for _, sub := range subs {
		switch sub.State {
		case StateUnhealthy:
			unhealthy++
		case StateDegraded:
			degraded++
		}
	}

	var st Status
	switch {
	case unhealthy > 0:
		st = NewUnhealthy(component, "One or more components are unhealthy")
	case degraded > 0:
		st = NewDegraded(component, "One or more components are degraded")
	default:
		st = NewHealthy(component, "All components are healthy")
	}
	st.SubStatuses = append([]Status(nil), subs...)
	return st
}

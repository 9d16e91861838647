package connectivity

import (
	"sync"
	"time"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

const subscriberBuffer = 8

// Transition describes a change of reachability.
type Transition struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
	Source string    `json:"source,omitempty"`
}

// Monitor holds the current reachability state of the remote API and fans transitions out
// to subscribers. The zero value is not usable; construct with NewMonitor.
type Monitor struct {
	mu          sync.RWMutex
	online      bool
	changedAt   time.Time
	subscribers map[int]chan Transition
	nextID      int
	now         func() time.Time
}

// NewMonitor creates a monitor starting in the supplied state.
func NewMonitor(initial bool) *Monitor {
	m := &Monitor{
		online:      initial,
		subscribers: make(map[int]chan Transition),
		now:         time.Now,
	}
	m.changedAt = m.now()
	monitoring.RecordConnectivity(initial, false)
	return m
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// State returns the current state and when it last changed.
func (m *Monitor) State() Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Transition{Online: m.online, At: m.changedAt}
}

// Set records the observed state and reports whether it changed. Subscribers only see changes.
func (m *Monitor) Set(online bool) bool {
	return m.SetFrom(online, "")
}

// SetFrom is Set with the origin of the observation attached to the transition.
func (m *Monitor) SetFrom(online bool, source string) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		monitoring.RecordConnectivity(online, false)
		return false
	}
	m.online = online
	m.changedAt = m.now()
	transition := Transition{Online: online, At: m.changedAt, Source: source}
	for _, ch := range m.subscribers {
		select {
		case ch <- transition:
		default:
			// slow subscriber; it still observes the state through IsOnline
		}
	}
	m.mu.Unlock()

	monitoring.RecordConnectivity(online, true)
	return true
}

// Subscribe returns a channel of transitions and a cancel func that closes it.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Transition, subscriberBuffer)
	m.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			close(ch)
			m.mu.Unlock()
		})
	}
	return ch, cancel
}

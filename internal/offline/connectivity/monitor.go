// Package connectivity tracks whether the device believes it can reach the
// network and notifies subscribers on transitions.
package connectivity

import "sync"

// State is the reachability hint reported by the platform.
type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

type subscription struct {
	id int
	fn func(State)
}

// Monitor holds the process-wide connectivity state for one session. It is a
// hint only: reported Online does not guarantee the server is reachable.
type Monitor struct {
	// deliver serialises notifications so subscribers never run concurrently.
	deliver sync.Mutex

	mu     sync.Mutex
	state  State
	nextID int
	subs   []subscription
}

// NewMonitor constructs a Monitor seeded with the platform's current signal.
func NewMonitor(initial State) *Monitor {
	if initial != Offline {
		initial = Online
	}
	return &Monitor{state: initial}
}

// Current returns the latest known state.
func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every transition. The returned function removes
// the subscription and may be called more than once. fn must not call Set.
func (m *Monitor) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, sub := range m.subs {
				if sub.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Set applies a platform event. Subscribers are notified only when the state
// actually changes, in subscription order.
func (m *Monitor) Set(state State) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	if state == m.state {
		m.mu.Unlock()
		return
	}
	m.state = state
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}

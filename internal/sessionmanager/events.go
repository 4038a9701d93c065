package sessionmanager

// State is the manager's lifecycle state.
type State int

const (
	StateLoggedOut State = iota
	StateAwaitingCode
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Event describes a state transition. Reason is set when a session ends.
type Event struct {
	Previous State
	State    State
	Username string
	Reason   string
}

// Subscribe registers fn for every transition and returns a function that removes it.
// Events are delivered one at a time in transition order, never while the manager's
// lock is held, so fn may call back into the manager. A transition made while another
// goroutine is delivering is handed to that goroutine.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// emitLocked queues ev behind earlier transitions. Caller holds m.mu.
func (m *Manager) emitLocked(ev Event) {
	m.queue = append(m.queue, ev)
}

// deliver drains the queue unless another goroutine (or an outer call on this one,
// from inside a subscriber) is already draining it.
func (m *Manager) deliver() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		ev := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.notify(ev)
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Manager) notify(ev Event) {
	m.subMu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

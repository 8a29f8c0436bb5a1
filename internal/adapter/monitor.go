package adapter

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/podwatch/internal/groutine"
)

// StateSource is the platform event source the Monitor consumes. Current must
// be readable immediately; Events yields subsequent values for as long as the
// source lives. A closed Events channel ends tracking but is not fatal.
type StateSource interface {
	Current() State
	Events() <-chan State
}

// Monitor holds the last observed radio state and fans transitions out to
// subscribers. It subscribes to its source exactly once, for its whole
// lifetime.
type Monitor struct {
	source StateSource
	logger *logrus.Logger

	mu      sync.RWMutex
	current State
	subs    map[int]func(State)
	nextID  int

	done      chan struct{}
	closeOnce sync.Once
}

// NewMonitor creates a monitor over source. A nil logger gets a default one.
func NewMonitor(source StateSource, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		source:  source,
		logger:  logger,
		current: StateUnknown,
		subs:    make(map[int]func(State)),
		done:    make(chan struct{}),
	}
}

// Start seeds the current value from the source and begins tracking
// transitions on a background goroutine.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.current = m.source.Current()
	m.mu.Unlock()

	groutine.Go(nil, "adapter-monitor", m.loop)
}

// Current returns the last observed state, StateUnknown before the first
// observation.
func (m *Monitor) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers fn to be called on every state transition. The returned
// cancel function removes the subscription and is safe to call more than once.
func (m *Monitor) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Close stops the tracking loop and drops all subscribers. Idempotent.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		m.subs = make(map[int]func(State))
		m.mu.Unlock()
	})
}

func (m *Monitor) loop(ctx context.Context) {
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case s, ok := <-m.source.Events():
			if !ok {
				// The radio may still be physically fine; only the
				// reporting stream died. State simply stops updating.
				m.logger.Warn("adapter state source terminated")
				return
			}
			m.transition(s)
		}
	}
}

func (m *Monitor) transition(s State) {
	m.mu.Lock()
	if s == m.current {
		m.mu.Unlock()
		return
	}
	prev := m.current
	m.current = s
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   s.String(),
	}).Debug("adapter state changed")

	for _, fn := range subs {
		fn(s)
	}
}

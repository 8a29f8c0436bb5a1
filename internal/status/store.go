// Package status is the single source of truth for what the monitor knows
// right now: the latest decoded battery status, whether a scan session is
// active, and the radio state. Values are replaced wholesale and every
// replacement is broadcast to subscribers.
package status

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/podwatch/internal/adapter"
	"github.com/srg/podwatch/internal/protocol"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Snapshot is one fully-constructed view of the store. Subscribers always
// receive a complete snapshot, never a diff.
type Snapshot struct {
	Battery  protocol.BatteryStatus
	Scanning bool
	Adapter  adapter.State
}

// Listener receives a snapshot after each change.
type Listener func(Snapshot)

// Store holds the current snapshot behind a replace-then-notify discipline:
// the value is swapped under the lock, listeners are invoked outside it on a
// copied list, in registration order. Readers never observe a torn value and
// are never blocked by a slow listener.
type Store struct {
	logger *logrus.Logger

	mu     sync.RWMutex
	snap   Snapshot
	subs   *orderedmap.OrderedMap[int, Listener]
	nextID int
	closed bool
}

// NewStore creates a store seeded with Unknown battery and an unknown radio.
func NewStore(logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		logger: logger,
		snap: Snapshot{
			Battery: protocol.Unknown(),
			Adapter: adapter.StateUnknown,
		},
		subs: orderedmap.New[int, Listener](),
	}
}

// SetBattery replaces the battery status. Last write wins.
func (s *Store) SetBattery(b protocol.BatteryStatus) {
	s.publish(func(sn *Snapshot) { sn.Battery = b })
}

// SetScanning replaces the scanning flag.
func (s *Store) SetScanning(scanning bool) {
	s.publish(func(sn *Snapshot) { sn.Scanning = scanning })
}

// SetAdapterState replaces the radio state.
func (s *Store) SetAdapterState(state adapter.State) {
	s.publish(func(sn *Snapshot) { sn.Adapter = state })
}

// Battery returns the latest battery status.
func (s *Store) Battery() protocol.BatteryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Battery
}

// Scanning reports whether a scan session is currently active.
func (s *Store) Scanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Scanning
}

// AdapterState returns the latest radio state.
func (s *Store) AdapterState() adapter.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Adapter
}

// Snapshot returns the whole current view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers l and returns a cancel function that removes it. The
// new subscriber is immediately called with the current snapshot so it never
// starts from a stale view. Listeners are notified in registration order.
func (s *Store) Subscribe(l Listener) (cancel func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs.Set(id, l)
	snap := s.snap
	s.mu.Unlock()

	l(snap)

	return func() {
		s.mu.Lock()
		s.subs.Delete(id)
		s.mu.Unlock()
	}
}

// Close releases all subscribers. Further writes are dropped. Idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.subs = orderedmap.New[int, Listener]()
	s.mu.Unlock()
}

func (s *Store) publish(mutate func(*Snapshot)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	mutate(&s.snap)
	snap := s.snap
	listeners := make([]Listener, 0, s.subs.Len())
	for pair := s.subs.Oldest(); pair != nil; pair = pair.Next() {
		listeners = append(listeners, pair.Value)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

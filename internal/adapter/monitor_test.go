package adapter_test

import (
	"sync"
	"testing"
	"time"

	"github.com/srg/podwatch/internal/adapter"
	"github.com/stretchr/testify/require"
)

// scriptedSource is a StateSource driven directly by the test.
type scriptedSource struct {
	mu      sync.Mutex
	current adapter.State
	events  chan adapter.State
}

func newScriptedSource(initial adapter.State) *scriptedSource {
	return &scriptedSource{current: initial, events: make(chan adapter.State, 16)}
}

func (s *scriptedSource) Current() adapter.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *scriptedSource) Events() <-chan adapter.State { return s.events }

func (s *scriptedSource) Set(state adapter.State) {
	s.mu.Lock()
	s.current = state
	s.mu.Unlock()
	s.events <- state
}

func (s *scriptedSource) Terminate() { close(s.events) }

func TestMonitorCurrentBeforeStart(t *testing.T) {
	m := adapter.NewMonitor(newScriptedSource(adapter.StateOn), nil)
	defer m.Close()

	require.Equal(t, adapter.StateUnknown, m.Current())
}

func TestMonitorSeedsCurrentOnStart(t *testing.T) {
	m := adapter.NewMonitor(newScriptedSource(adapter.StateOff), nil)
	defer m.Close()

	m.Start()
	require.Equal(t, adapter.StateOff, m.Current())
}

func TestMonitorBroadcastsTransitions(t *testing.T) {
	src := newScriptedSource(adapter.StateOff)
	m := adapter.NewMonitor(src, nil)
	defer m.Close()

	var mu sync.Mutex
	var seen []adapter.State
	cancel := m.Subscribe(func(s adapter.State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer cancel()

	m.Start()
	src.Set(adapter.StateTurningOn)
	src.Set(adapter.StateOn)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, []adapter.State{adapter.StateTurningOn, adapter.StateOn}, seen)
	mu.Unlock()
	require.Equal(t, adapter.StateOn, m.Current())
}

func TestMonitorDeduplicatesRepeatedValues(t *testing.T) {
	src := newScriptedSource(adapter.StateOn)
	m := adapter.NewMonitor(src, nil)
	defer m.Close()

	var mu sync.Mutex
	count := 0
	m.Subscribe(func(adapter.State) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Start()
	src.Set(adapter.StateOn) // same as seeded value
	src.Set(adapter.StateOn)
	src.Set(adapter.StateOff)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, adapter.StateOff, m.Current())
}

func TestMonitorCancelledSubscriptionStopsFiring(t *testing.T) {
	src := newScriptedSource(adapter.StateOff)
	m := adapter.NewMonitor(src, nil)
	defer m.Close()

	var mu sync.Mutex
	count := 0
	cancel := m.Subscribe(func(adapter.State) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Start()
	src.Set(adapter.StateOn)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	cancel() // second call is a no-op
	src.Set(adapter.StateOff)

	// The transition must land in current without firing the cancelled
	// subscriber.
	require.Eventually(t, func() bool {
		return m.Current() == adapter.StateOff
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, count)
	mu.Unlock()
}

func TestMonitorSourceTerminationIsNotFatal(t *testing.T) {
	src := newScriptedSource(adapter.StateOn)
	m := adapter.NewMonitor(src, nil)
	defer m.Close()

	m.Start()
	src.Terminate()

	// State stops changing but the last value stays readable.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, adapter.StateOn, m.Current())
}

func TestStateString(t *testing.T) {
	tests := map[adapter.State]string{
		adapter.StateUnknown:      "unknown",
		adapter.StateUnavailable:  "unavailable",
		adapter.StateUnauthorized: "unauthorized",
		adapter.StateOff:          "off",
		adapter.StateTurningOn:    "turning_on",
		adapter.StateOn:           "on",
		adapter.StateTurningOff:   "turning_off",
		adapter.State(99):         "invalid",
	}
	for state, want := range tests {
		require.Equal(t, want, state.String())
	}

	require.True(t, adapter.StateOn.Ready())
	require.False(t, adapter.StateTurningOn.Ready())
}

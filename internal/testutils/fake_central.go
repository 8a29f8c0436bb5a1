// Package testutils provides deterministic fakes for the platform BLE
// boundary so the scan engine can be exercised without a radio.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/podwatch/internal/adapter"
	"github.com/srg/podwatch/internal/central"
)

// FakeCentral implements central.Central. Each Scan call registers the
// handler and blocks until its context ends, like a real platform call;
// tests inject advertisements with Deliver.
type FakeCentral struct {
	mu        sync.Mutex
	handler   central.Handler
	live      int // scan call the handler belongs to
	scanErr   error
	scanCalls int
	stopCalls int
	lastCtx   context.Context

	started chan struct{}
}

// NewFakeCentral creates an idle fake central.
func NewFakeCentral() *FakeCentral {
	return &FakeCentral{started: make(chan struct{}, 16)}
}

// FailScansWith makes every subsequent Scan call return err immediately,
// simulating a platform scan-call failure. Pass nil to restore normal
// behavior.
func (f *FakeCentral) FailScansWith(err error) {
	f.mu.Lock()
	f.scanErr = err
	f.mu.Unlock()
}

// Scan implements central.Central.
func (f *FakeCentral) Scan(ctx context.Context, _ bool, h central.Handler) error {
	f.mu.Lock()
	f.scanCalls++
	id := f.scanCalls
	f.lastCtx = ctx
	if f.scanErr != nil {
		err := f.scanErr
		f.mu.Unlock()
		return err
	}
	f.handler = h
	f.live = id
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	<-ctx.Done()

	f.mu.Lock()
	// A refreshed session may already have installed a newer handler.
	if f.live == id {
		f.handler = nil
		f.live = 0
	}
	f.mu.Unlock()
	return ctx.Err()
}

// StopScan implements central.Central.
func (f *FakeCentral) StopScan() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	return nil
}

// Deliver invokes the handler of the live scan call, if any, in the caller's
// goroutine, mimicking platform delivery order. Returns false when no scan
// is live.
func (f *FakeCentral) Deliver(adv central.RawAdvertisement) bool {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(adv)
	return true
}

// WaitForScan blocks until a scan call begins or the timeout lapses.
func (f *FakeCentral) WaitForScan(timeout time.Duration) bool {
	select {
	case <-f.started:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ScanCalls returns how many times Scan was invoked.
func (f *FakeCentral) ScanCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanCalls
}

// StopCalls returns how many times StopScan was invoked.
func (f *FakeCentral) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// LastScanContext returns the context passed to the most recent Scan call,
// nil before the first one.
func (f *FakeCentral) LastScanContext() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCtx
}

// Scanning reports whether a scan call is currently live.
func (f *FakeCentral) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

// FakeStateSource implements adapter.StateSource under test control.
type FakeStateSource struct {
	mu      sync.Mutex
	current adapter.State
	events  chan adapter.State
}

// NewFakeStateSource creates a source reporting initial as its current value.
func NewFakeStateSource(initial adapter.State) *FakeStateSource {
	return &FakeStateSource{current: initial, events: make(chan adapter.State, 16)}
}

// Current implements adapter.StateSource.
func (f *FakeStateSource) Current() adapter.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Events implements adapter.StateSource.
func (f *FakeStateSource) Events() <-chan adapter.State {
	return f.events
}

// Set updates the current value and emits it as a transition.
func (f *FakeStateSource) Set(state adapter.State) {
	f.mu.Lock()
	f.current = state
	f.mu.Unlock()
	f.events <- state
}

// Terminate closes the event stream, simulating source death.
func (f *FakeStateSource) Terminate() {
	close(f.events)
}

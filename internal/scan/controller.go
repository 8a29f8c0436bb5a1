// Package scan owns the scan session lifecycle: it keeps exactly one logical
// scan active while the radio is on, feeds matching advertisements through
// the protocol decoder, and republishes results into the status store.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/podwatch/internal/adapter"
	"github.com/srg/podwatch/internal/central"
	"github.com/srg/podwatch/internal/groutine"
	"github.com/srg/podwatch/internal/protocol"
	"github.com/srg/podwatch/internal/status"
)

// Options configures session behavior.
type Options struct {
	// Window bounds each platform scan call.
	Window time.Duration
	// RestartInterval is how long a platform call runs before it is
	// replaced with a fresh one. Must be shorter than Window so delivery
	// never gaps.
	RestartInterval time.Duration
	// AllowDuplicates asks the platform for repeat advertisements from the
	// same device; required for a continuous battery feed.
	AllowDuplicates bool
	// AllowList restricts ingestion to these device addresses when
	// non-empty.
	AllowList []string
}

// DefaultOptions returns the reference session timings.
func DefaultOptions() *Options {
	return &Options{
		Window:          4 * time.Second,
		RestartInterval: 3 * time.Second,
		AllowDuplicates: true,
	}
}

// Validate checks the session timing invariants.
func (o *Options) Validate() error {
	if o.Window <= 0 {
		return fmt.Errorf("scan window must be positive, got %v", o.Window)
	}
	if o.RestartInterval <= 0 {
		return fmt.Errorf("restart interval must be positive, got %v", o.RestartInterval)
	}
	if o.RestartInterval >= o.Window {
		return fmt.Errorf("restart interval %v must be shorter than scan window %v", o.RestartInterval, o.Window)
	}
	return nil
}

// Sighting records the last observation of one device address.
type Sighting struct {
	Addr     string
	Name     string
	RSSI     int
	LastSeen time.Time
}

// Controller drives scan sessions against a central.Central. Session state
// (active flag, in-flight platform call, restart timer) is owned exclusively
// by the controller and only touched under its mutex.
type Controller struct {
	central central.Central
	monitor *adapter.Monitor
	store   *status.Store
	opts    *Options
	logger  *logrus.Logger

	sightings *hashmap.Map[string, Sighting]
	allow     map[string]struct{}

	mu          sync.Mutex
	active      bool
	closed      bool
	gen         uint64 // bumped on every session state change
	scanCancel  context.CancelFunc
	restart     *time.Timer
	unsubscribe func()
}

// NewController wires the controller to its collaborators. A nil opts uses
// DefaultOptions; a nil logger gets a default one.
func NewController(c central.Central, monitor *adapter.Monitor, store *status.Store, opts *Options, logger *logrus.Logger) (*Controller, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	ctrl := &Controller{
		central:   c,
		monitor:   monitor,
		store:     store,
		opts:      opts,
		logger:    logger,
		sightings: hashmap.New[string, Sighting](),
	}
	if len(opts.AllowList) > 0 {
		ctrl.allow = make(map[string]struct{}, len(opts.AllowList))
		for _, addr := range opts.AllowList {
			ctrl.allow[strings.ToUpper(addr)] = struct{}{}
		}
	}
	return ctrl, nil
}

// Initialize attaches the controller to adapter transitions and publishes
// the current radio state. Transition into "on" starts a session; any
// transition out of it stops the session.
func (c *Controller) Initialize() {
	c.mu.Lock()
	if c.closed || c.unsubscribe != nil {
		c.mu.Unlock()
		return
	}
	c.unsubscribe = c.monitor.Subscribe(c.onAdapterState)
	c.mu.Unlock()

	c.store.SetAdapterState(c.monitor.Current())
}

// Start begins a scan session. It is a no-op when the radio is not on or a
// session is already active.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if state := c.monitor.Current(); !state.Ready() {
		c.mu.Unlock()
		c.logger.WithField("adapter_state", state.String()).Info("scan not started: radio is not on")
		return
	}
	if c.active {
		c.mu.Unlock()
		c.logger.Debug("scan session already active")
		return
	}
	c.active = true
	c.gen++
	c.mu.Unlock()

	// Reset before the platform call so the first reading of the new
	// session never mixes with a stale one. A store listener may call Stop
	// from inside this publication; the re-check below honors that.
	c.store.SetBattery(protocol.Unknown())

	c.mu.Lock()
	started := c.active && !c.closed
	var gen uint64
	if started {
		c.beginScanLocked()
		gen = c.gen
	}
	c.mu.Unlock()

	c.syncScanning()

	if !started {
		return
	}
	c.mu.Lock()
	current := c.active && gen == c.gen
	c.mu.Unlock()
	if current {
		c.logger.WithFields(logrus.Fields{
			"window":           c.opts.Window,
			"restart_interval": c.opts.RestartInterval,
		}).Info("scan session started")
	}
}

// Stop ends the session: the restart timer and the in-flight platform call
// are cancelled before Stop returns, so no decode or restart fires
// afterwards. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasActive := c.active
	c.active = false
	if wasActive {
		c.gen++
	}
	cancel := c.scanCancel
	timer := c.restart
	c.scanCancel = nil
	c.restart = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if !wasActive {
		return
	}

	if err := c.central.StopScan(); err != nil {
		c.logger.WithError(err).Warn("platform scan stop failed")
	}
	c.syncScanning()
	c.logger.Info("scan session stopped")
}

// ForceScan restarts the session for a user-initiated refresh. Safe to call
// in any session state.
func (c *Controller) ForceScan() {
	c.Stop()
	c.Start()
}

// Close stops the session and detaches from the adapter monitor. The
// controller must not be used afterwards.
func (c *Controller) Close() {
	c.Stop()

	c.mu.Lock()
	c.closed = true
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Sightings returns the devices observed so far, most recent first.
func (c *Controller) Sightings() []Sighting {
	out := make([]Sighting, 0, c.sightings.Len())
	c.sightings.Range(func(_ string, s Sighting) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

func (c *Controller) onAdapterState(state adapter.State) {
	c.store.SetAdapterState(state)
	if state.Ready() {
		c.Start()
	} else {
		c.Stop()
	}
}

// beginScanLocked issues one bounded platform scan call and arms the restart
// timer. Callers hold c.mu.
func (c *Controller) beginScanLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Window)
	c.scanCancel = cancel
	c.gen++
	gen := c.gen
	c.restart = time.AfterFunc(c.opts.RestartInterval, c.refresh)

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		// Release the timeout context even when the platform call returns
		// before the window lapses.
		defer cancel()
		c.runScan(ctx, gen)
	})
}

func (c *Controller) runScan(ctx context.Context, gen uint64) {
	err := c.central.Scan(ctx, c.opts.AllowDuplicates, c.handleAdvertisement)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	c.logger.WithError(err).WithField("goroutine", groutine.Name(ctx)).Error("platform scan call failed")

	// Revert to idle, but only if this call still belongs to the current
	// session; a refresh may already have replaced it.
	c.mu.Lock()
	if !c.active || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.gen++
	timer := c.restart
	c.restart = nil
	c.scanCancel = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	c.syncScanning()
}

// refresh replaces the in-flight platform call while the session stays
// active. Some stacks silently stop delivering results after an internal
// timeout; re-issuing the call before the window lapses keeps the feed
// continuous.
func (c *Controller) refresh() {
	c.mu.Lock()
	if !c.active || c.closed {
		c.mu.Unlock()
		return
	}
	if c.scanCancel != nil {
		c.scanCancel()
	}
	c.beginScanLocked()
	c.mu.Unlock()

	c.logger.Debug("scan session refreshed")
}

func (c *Controller) handleAdvertisement(adv central.RawAdvertisement) {
	if !c.isActive() {
		// Late delivery after Stop; never publish past cancellation.
		return
	}
	if !c.allowed(adv.Addr) {
		return
	}

	c.sightings.Set(adv.Addr, Sighting{
		Addr:     adv.Addr,
		Name:     adv.Name,
		RSSI:     adv.RSSI,
		LastSeen: time.Now(),
	})

	payload, ok := adv.ManufacturerData[protocol.AppleCompanyID]
	if !ok {
		return
	}

	decoded, err := protocol.Decode(payload)
	if err != nil {
		// A single malformed advertisement never interrupts the session.
		c.logger.WithError(err).WithField("device", adv.Addr).Debug("dropped undecodable advertisement")
		return
	}
	if protocol.HasOutOfRangeLevels(payload) {
		c.logger.WithField("device", adv.Addr).Debug("battery nibble outside documented range, clamped")
	}

	c.store.SetBattery(decoded)
}

// syncScanning publishes the scanning flag from the session state as it is
// right now. Start and Stop may interleave through store listeners calling
// back into the controller; whoever publishes last re-reads until the state
// held still across the publication, so the store always ends up matching
// the session.
func (c *Controller) syncScanning() {
	for {
		c.mu.Lock()
		on := c.active
		gen := c.gen
		c.mu.Unlock()

		c.store.SetScanning(on)

		c.mu.Lock()
		settled := gen == c.gen
		c.mu.Unlock()
		if settled {
			return
		}
	}
}

func (c *Controller) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) allowed(addr string) bool {
	if c.allow == nil {
		return true
	}
	_, ok := c.allow[strings.ToUpper(addr)]
	return ok
}

// Package bluez reports the power state of a BlueZ adapter over D-Bus as
// adapter.State values. BlueZ only distinguishes powered on/off (plus the
// adapter object being missing entirely), so the richer states of the enum
// never originate here.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/podwatch/internal/adapter"
	"github.com/srg/podwatch/internal/groutine"
)

const (
	bluezService = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	propsIface   = "org.freedesktop.DBus.Properties"
)

// Watcher implements adapter.StateSource on top of the BlueZ
// PropertiesChanged signal for one adapter object.
type Watcher struct {
	conn   *dbus.Conn
	path   dbus.ObjectPath
	logger *logrus.Logger

	mu      sync.RWMutex
	current adapter.State

	signals chan *dbus.Signal
	events  chan adapter.State

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher connects to the system bus and starts watching the adapter at
// adapterPath (typically /org/bluez/hci0). The initial Powered value is read
// synchronously so Current is meaningful immediately.
func NewWatcher(adapterPath string, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	w := &Watcher{
		conn:    conn,
		path:    dbus.ObjectPath(adapterPath),
		logger:  logger,
		signals: make(chan *dbus.Signal, 16),
		events:  make(chan adapter.State, 16),
		done:    make(chan struct{}),
	}

	w.current = w.readPowered()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(w.path),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("add match rule: %w", err)
	}
	conn.Signal(w.signals)

	groutine.Go(nil, "bluez-adapter-watch", func(context.Context) { w.loop() })

	return w, nil
}

// Current returns the last observed state.
func (w *Watcher) Current() adapter.State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Events yields state values as BlueZ reports them. The channel is closed
// when the watcher is closed.
func (w *Watcher) Events() <-chan adapter.State {
	return w.events
}

// Close detaches from the bus and closes the event stream. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.conn.RemoveSignal(w.signals)
		err = w.conn.Close()
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		case sig, ok := <-w.signals:
			if !ok {
				return
			}
			if state, ok := w.parse(sig); ok {
				w.publish(state)
			}
		}
	}
}

// parse extracts a Powered change from a PropertiesChanged signal aimed at
// our adapter object.
func (w *Watcher) parse(sig *dbus.Signal) (adapter.State, bool) {
	if sig.Path != w.path || len(sig.Body) < 2 {
		return adapter.StateUnknown, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != adapterIface {
		return adapter.StateUnknown, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return adapter.StateUnknown, false
	}
	variant, ok := changed["Powered"]
	if !ok {
		return adapter.StateUnknown, false
	}
	powered, ok := variant.Value().(bool)
	if !ok {
		return adapter.StateUnknown, false
	}
	if powered {
		return adapter.StateOn, true
	}
	return adapter.StateOff, true
}

func (w *Watcher) publish(state adapter.State) {
	w.mu.Lock()
	w.current = state
	w.mu.Unlock()

	select {
	case w.events <- state:
	case <-w.done:
	}
}

// readPowered queries the adapter's Powered property once. A missing adapter
// object maps to StateUnavailable, an access error to StateUnknown.
func (w *Watcher) readPowered() adapter.State {
	obj := w.conn.Object(bluezService, w.path)
	variant, err := obj.GetProperty(adapterIface + ".Powered")
	if err != nil {
		var dbusErr dbus.Error
		if errors.As(err, &dbusErr) && dbusErr.Name == "org.freedesktop.DBus.Error.UnknownObject" {
			w.logger.WithField("path", string(w.path)).Warn("bluetooth adapter not present")
			return adapter.StateUnavailable
		}
		w.logger.WithError(err).Warn("failed to read adapter power state")
		return adapter.StateUnknown
	}
	if powered, ok := variant.Value().(bool); ok && powered {
		return adapter.StateOn
	}
	return adapter.StateOff
}

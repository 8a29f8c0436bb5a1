// Package goble backs the central.Central capability with the go-ble stack.
package goble

import (
	"context"
	"fmt"
	"sync"

	ble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/sirupsen/logrus"
	"github.com/srg/podwatch/internal/central"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}

// Central attaches lazily to the HCI device on the first Scan call and keeps
// it for subsequent calls; go-ble device setup is too slow to repeat every few
// seconds.
type Central struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// New creates a go-ble backed central. A nil logger gets a default one.
func New(logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{logger: logger}
}

// Scan issues one platform scan call and converts every advertisement into
// the transport-neutral form before handing it to h.
func (c *Central) Scan(ctx context.Context, allowDup bool, h central.Handler) error {
	dev, err := c.device()
	if err != nil {
		return fmt.Errorf("attach BLE device: %w", err)
	}

	return dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		h(convert(adv))
	})
}

// StopScan is a no-op for go-ble: a scan ends when its context is cancelled.
func (c *Central) StopScan() error {
	return nil
}

// Close releases the underlying HCI device.
func (c *Central) Close() error {
	c.mu.Lock()
	dev := c.dev
	c.dev = nil
	c.mu.Unlock()

	if dev == nil {
		return nil
	}
	return dev.Stop()
}

func (c *Central) device() (ble.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return c.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	c.logger.Debug("BLE device attached")
	c.dev = dev
	return dev, nil
}

func convert(adv ble.Advertisement) central.RawAdvertisement {
	raw := central.RawAdvertisement{
		Addr:             adv.Addr().String(),
		Name:             adv.LocalName(),
		RSSI:             adv.RSSI(),
		ManufacturerData: make(map[uint16][]byte, 1),
	}
	if id, payload, ok := central.SplitManufacturerData(adv.ManufacturerData()); ok {
		raw.ManufacturerData[id] = payload
	}
	return raw
}

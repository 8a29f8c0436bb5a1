// Package central defines the narrow slice of the platform BLE stack the
// monitor needs: issue a scan, stop it, and receive raw advertisements. The
// real implementation lives in the goble subpackage; tests substitute a fake.
package central

import "context"

// RawAdvertisement is a transient view of one observed advertisement. It is
// valid only for the duration of the handler call and must not be retained.
type RawAdvertisement struct {
	Addr string
	Name string
	RSSI int

	// ManufacturerData maps a Bluetooth SIG company identifier to the raw
	// vendor payload that followed it.
	ManufacturerData map[uint16][]byte
}

// Handler receives advertisements in platform delivery order.
type Handler func(RawAdvertisement)

// Central is the platform scanning capability.
type Central interface {
	// Scan blocks and delivers advertisements to h until ctx ends. The
	// caller bounds each platform call with a context deadline.
	Scan(ctx context.Context, allowDup bool, h Handler) error

	// StopScan asks the platform to end the current scan. Best effort;
	// cancelling the Scan context is the authoritative stop.
	StopScan() error
}

// SplitManufacturerData splits a raw AD manufacturer-data structure into its
// little-endian company identifier and vendor payload. ok is false when the
// data is too short to carry an identifier.
func SplitManufacturerData(data []byte) (companyID uint16, payload []byte, ok bool) {
	if len(data) < 2 {
		return 0, nil, false
	}
	return uint16(data[0]) | uint16(data[1])<<8, data[2:], true
}

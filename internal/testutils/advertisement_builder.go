package testutils

import (
	"github.com/srg/podwatch/internal/central"
	"github.com/srg/podwatch/internal/protocol"
)

// RawAdvertisementBuilder builds central.RawAdvertisement values for tests.
type RawAdvertisementBuilder struct {
	adv central.RawAdvertisement
}

// NewRawAdvertisement creates a builder with a plausible default address and
// signal strength.
func NewRawAdvertisement() *RawAdvertisementBuilder {
	return &RawAdvertisementBuilder{adv: central.RawAdvertisement{
		Addr:             "AA:BB:CC:DD:EE:FF",
		RSSI:             -50,
		ManufacturerData: make(map[uint16][]byte),
	}}
}

// WithAddr sets the device address.
func (b *RawAdvertisementBuilder) WithAddr(addr string) *RawAdvertisementBuilder {
	b.adv.Addr = addr
	return b
}

// WithName sets the local name.
func (b *RawAdvertisementBuilder) WithName(name string) *RawAdvertisementBuilder {
	b.adv.Name = name
	return b
}

// WithRSSI sets the signal strength.
func (b *RawAdvertisementBuilder) WithRSSI(rssi int) *RawAdvertisementBuilder {
	b.adv.RSSI = rssi
	return b
}

// WithManufacturerData keys payload under companyID.
func (b *RawAdvertisementBuilder) WithManufacturerData(companyID uint16, payload []byte) *RawAdvertisementBuilder {
	b.adv.ManufacturerData[companyID] = payload
	return b
}

// WithProximityPayload keys a proximity payload under the earbuds' company
// identifier.
func (b *RawAdvertisementBuilder) WithProximityPayload(payload []byte) *RawAdvertisementBuilder {
	return b.WithManufacturerData(protocol.AppleCompanyID, payload)
}

// Build returns the assembled advertisement.
func (b *RawAdvertisementBuilder) Build() central.RawAdvertisement {
	return b.adv
}

// ProximityPayload assembles a minimum-length proximity payload with the
// battery-relevant bytes set and everything else zero. flip goes to byte 10,
// b12/b13 are the pod battery bytes, charge is the byte-14 bitmask and
// caseRaw the byte-15 case level.
func ProximityPayload(flip, b12, b13, charge, caseRaw byte) []byte {
	p := make([]byte, 16)
	p[10] = flip
	p[12] = b12
	p[13] = b13
	p[14] = charge
	p[15] = caseRaw
	return p
}

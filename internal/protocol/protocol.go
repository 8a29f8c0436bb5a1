// Package protocol decodes the proximity-pairing manufacturer payload that
// the earbuds broadcast in their BLE advertisements. The decoder is pure:
// it never touches the radio, RSSI, or device identity.
package protocol

import "fmt"

// AppleCompanyID is the Bluetooth SIG company identifier under which the
// earbuds key their manufacturer data.
const AppleCompanyID uint16 = 0x004C

// LevelUnavailable marks a battery level that is not present in the current
// advertisement (pod out of the case, case closed, and so on). It is distinct
// from "not yet observed", which is what Unknown() describes.
const LevelUnavailable = -1

// minPayloadLen is the shortest payload the decoder accepts. The battery
// nibbles live at bytes 12-15, so anything shorter carries no usable state.
const minPayloadLen = 16

// BatteryStatus is one decoded advertisement: battery percentages in 10%
// steps plus charging flags. Levels are either LevelUnavailable or in [0,100].
// Values are compared structurally; a new decode always replaces the whole
// status, never individual fields.
type BatteryStatus struct {
	LeftPod     int
	RightPod    int
	CaseBattery int

	LeftCharging  bool
	RightCharging bool
	CaseCharging  bool
}

// Unknown returns the status used before any advertisement has been decoded:
// all levels unavailable, nothing charging.
func Unknown() BatteryStatus {
	return BatteryStatus{
		LeftPod:     LevelUnavailable,
		RightPod:    LevelUnavailable,
		CaseBattery: LevelUnavailable,
	}
}

func (s BatteryStatus) String() string {
	return fmt.Sprintf("left=%s right=%s case=%s",
		formatPod(s.LeftPod, s.LeftCharging),
		formatPod(s.RightPod, s.RightCharging),
		formatPod(s.CaseBattery, s.CaseCharging))
}

func formatPod(level int, charging bool) string {
	if level == LevelUnavailable {
		return "n/a"
	}
	if charging {
		return fmt.Sprintf("%d%%+", level)
	}
	return fmt.Sprintf("%d%%", level)
}

// TooShortError reports a manufacturer payload below the minimum decodable
// length. Short payloads are expected in the wild (other Apple Continuity
// message types share the company ID) and are dropped, not escalated.
type TooShortError struct {
	Len int
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("manufacturer payload too short: %d bytes, need at least %d", e.Len, minPayloadLen)
}

// Is allows errors.Is to match any TooShortError regardless of length.
func (e *TooShortError) Is(target error) bool {
	_, ok := target.(*TooShortError)
	return ok
}

// ErrTooShort is the comparison target for errors.Is checks.
var ErrTooShort = &TooShortError{}

// Decode parses one manufacturer-data payload (the bytes keyed under
// AppleCompanyID, company identifier already stripped) into a BatteryStatus.
//
// Wire layout, byte indices 0-based within the payload:
//
//	byte 10 bit 1: flip bit; when zero the pods advertise swapped, so byte 13
//	               is the left pod and byte 12 the right, otherwise 12/13
//	bytes 12/13:   pod battery raw values, assignment per the flip bit
//	byte 14:       charging bitmask, bits 0/1/2 = left/right/case
//	byte 15:       case battery raw value
//
// A raw value of 15 means the level is unavailable; the valid domain is
// otherwise 0..10 in 10% steps. Raw values 11..14 are clamped to 100% rather
// than rejected, mirroring what the earbuds' own companion software tolerates.
func Decode(payload []byte) (BatteryStatus, error) {
	if len(payload) < minPayloadLen {
		return Unknown(), &TooShortError{Len: len(payload)}
	}

	flipped := payload[10]&0x02 == 0

	leftRaw, rightRaw := payload[12], payload[13]
	if flipped {
		leftRaw, rightRaw = payload[13], payload[12]
	}

	charge := payload[14]

	return BatteryStatus{
		LeftPod:       level(leftRaw),
		RightPod:      level(rightRaw),
		CaseBattery:   level(payload[15]),
		LeftCharging:  charge&0x01 != 0,
		RightCharging: charge&0x02 != 0,
		CaseCharging:  charge&0x04 != 0,
	}, nil
}

// HasOutOfRangeLevels reports whether any battery byte carries a raw value
// outside the documented 0..10 domain (and is not the 15 sentinel). Decode
// clamps such values to 100%; callers that want the leniency to stay visible
// can log when this returns true.
func HasOutOfRangeLevels(payload []byte) bool {
	if len(payload) < minPayloadLen {
		return false
	}
	for _, i := range [...]int{12, 13, 15} {
		if raw := payload[i]; raw != 0x0F && raw > 10 {
			return true
		}
	}
	return false
}

func level(raw byte) int {
	if raw == 0x0F {
		return LevelUnavailable
	}
	v := int(raw) * 10
	if v > 100 {
		v = 100
	}
	return v
}

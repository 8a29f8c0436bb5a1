// Package adapter tracks the power and authorization state of the local
// Bluetooth radio.
package adapter

// State mirrors the discrete states a platform radio reports.
type State int

const (
	// StateUnknown is the value before the first observation.
	StateUnknown State = iota
	// StateUnavailable means the host has no usable Bluetooth radio.
	StateUnavailable
	// StateUnauthorized means the process lacks permission to use the radio.
	StateUnauthorized
	StateOff
	StateTurningOn
	StateOn
	StateTurningOff
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateUnavailable:
		return "unavailable"
	case StateUnauthorized:
		return "unauthorized"
	case StateOff:
		return "off"
	case StateTurningOn:
		return "turning_on"
	case StateOn:
		return "on"
	case StateTurningOff:
		return "turning_off"
	default:
		return "invalid"
	}
}

// Ready reports whether the radio can be asked to scan.
func (s State) Ready() bool {
	return s == StateOn
}

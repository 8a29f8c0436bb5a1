package protocol_test

import (
	"errors"
	"testing"

	"github.com/srg/podwatch/internal/protocol"
	"github.com/stretchr/testify/require"
)

// payload builds a minimum-length proximity payload with the battery-relevant
// bytes set and everything else zero.
func payload(flip, b12, b13, charge, caseRaw byte) []byte {
	p := make([]byte, 16)
	p[10] = flip
	p[12] = b12
	p[13] = b13
	p[14] = charge
	p[15] = caseRaw
	return p
}

func TestDecodeTooShort(t *testing.T) {
	for length := 0; length < 16; length++ {
		p := make([]byte, length)
		for i := range p {
			p[i] = 0xFF // contents must not matter
		}

		st, err := protocol.Decode(p)

		require.Error(t, err, "length %d must fail", length)
		require.ErrorIs(t, err, protocol.ErrTooShort)
		require.Equal(t, protocol.Unknown(), st)

		var tooShort *protocol.TooShortError
		require.True(t, errors.As(err, &tooShort))
		require.Equal(t, length, tooShort.Len)
	}
}

func TestDecodeLevels(t *testing.T) {
	tests := []struct {
		name string
		raw  byte
		want int
	}{
		{"sentinel 15 is unavailable", 0x0F, protocol.LevelUnavailable},
		{"zero", 0x00, 0},
		{"mid range", 0x07, 70},
		{"full", 0x0A, 100},
		{"out of range clamps to 100", 0x0B, 100},
		{"max non-sentinel clamps to 100", 0xFE, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// flip bit clear => byte 13 is the left pod
			st, err := protocol.Decode(payload(0x00, 0x05, tt.raw, 0x00, tt.raw))
			require.NoError(t, err)
			require.Equal(t, tt.want, st.LeftPod)
			require.Equal(t, tt.want, st.CaseBattery)
			require.Equal(t, 50, st.RightPod)
		})
	}
}

func TestDecodeFlipBit(t *testing.T) {
	// byte 12 = 5 (50%), byte 13 = 7 (70%), case = 10 (100%),
	// charge mask = left+right charging.
	flipped, err := protocol.Decode(payload(0x00, 0x05, 0x07, 0x03, 0x0A))
	require.NoError(t, err)
	require.Equal(t, 70, flipped.LeftPod, "flip bit clear: left comes from byte 13")
	require.Equal(t, 50, flipped.RightPod)

	straight, err := protocol.Decode(payload(0x02, 0x05, 0x07, 0x03, 0x0A))
	require.NoError(t, err)
	require.Equal(t, 50, straight.LeftPod, "flip bit set: left comes from byte 12")
	require.Equal(t, 70, straight.RightPod)

	// The case level never participates in the flip.
	require.Equal(t, 100, flipped.CaseBattery)
	require.Equal(t, 100, straight.CaseBattery)
}

func TestDecodeChargingMask(t *testing.T) {
	tests := []struct {
		name                string
		charge              byte
		left, right, caseCh bool
	}{
		{"none", 0x00, false, false, false},
		{"left only", 0x01, true, false, false},
		{"right only", 0x02, false, true, false},
		{"case only", 0x04, false, false, true},
		{"left and right", 0x03, true, true, false},
		{"all", 0x07, true, true, true},
		{"high bits ignored", 0xF8, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := protocol.Decode(payload(0x00, 0x05, 0x05, tt.charge, 0x05))
			require.NoError(t, err)
			require.Equal(t, tt.left, st.LeftCharging)
			require.Equal(t, tt.right, st.RightCharging)
			require.Equal(t, tt.caseCh, st.CaseCharging)
		})
	}
}

func TestDecodeEndToEndScenarios(t *testing.T) {
	// Scenario A: flip bit clear, left/right swapped on the wire.
	a, err := protocol.Decode(payload(0x00, 0x05, 0x07, 0x03, 0x0A))
	require.NoError(t, err)
	require.Equal(t, protocol.BatteryStatus{
		LeftPod:       70,
		RightPod:      50,
		CaseBattery:   100,
		LeftCharging:  true,
		RightCharging: true,
	}, a)

	// Scenario B: same bytes with the flip bit set swaps left/right back.
	b, err := protocol.Decode(payload(0x02, 0x05, 0x07, 0x03, 0x0A))
	require.NoError(t, err)
	require.Equal(t, 50, b.LeftPod)
	require.Equal(t, 70, b.RightPod)

	// Scenario C: sentinel on byte 12 makes the pod it maps to (the right
	// one here, flip bit clear) unavailable even with its charging bit set.
	c, err := protocol.Decode(payload(0x00, 0x0F, 0x07, 0x07, 0x0A))
	require.NoError(t, err)
	require.Equal(t, protocol.LevelUnavailable, c.RightPod)
	require.Equal(t, 70, c.LeftPod)
	require.True(t, c.RightCharging)
}

func TestUnknown(t *testing.T) {
	u := protocol.Unknown()
	require.Equal(t, protocol.BatteryStatus{
		LeftPod:     -1,
		RightPod:    -1,
		CaseBattery: -1,
	}, u)
	require.False(t, u.LeftCharging)
	require.False(t, u.RightCharging)
	require.False(t, u.CaseCharging)
}

func TestHasOutOfRangeLevels(t *testing.T) {
	require.False(t, protocol.HasOutOfRangeLevels(payload(0x00, 0x05, 0x0A, 0x00, 0x0F)))
	require.True(t, protocol.HasOutOfRangeLevels(payload(0x00, 0x0B, 0x05, 0x00, 0x05)))
	require.True(t, protocol.HasOutOfRangeLevels(payload(0x00, 0x05, 0x05, 0x00, 0xEE)))
	require.False(t, protocol.HasOutOfRangeLevels([]byte{0xFF}), "short payloads are not diagnosable")
}

func TestBatteryStatusString(t *testing.T) {
	st := protocol.BatteryStatus{LeftPod: 70, RightPod: protocol.LevelUnavailable, CaseBattery: 100, LeftCharging: true}
	require.Equal(t, "left=70%+ right=n/a case=100%", st.String())
}

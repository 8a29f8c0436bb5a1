package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/podwatch/internal/protocol"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex-payload>",
	Short: "Decode a captured proximity payload offline",
	Long: `Decode a hex-encoded manufacturer-data payload into battery and charging
state, without touching the Bluetooth radio.

The argument is the payload as captured from a BLE advertisement. Bytes may
be separated by spaces or colons, and a leading 0x is ignored. If the bytes
start with the little-endian Apple company identifier (4c 00) that prefix is
stripped automatically.

Example:
  podwatch decode "07 19 01 0e 20 2a 00 00 00 00 00 00 05 07 03 0a"`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	payload, err := parseHexPayload(args[0])
	if err != nil {
		return err
	}

	// Tolerate pasting the whole manufacturer-data blob.
	if len(payload) >= 2 && binary.LittleEndian.Uint16(payload) == protocol.AppleCompanyID {
		payload = payload[2:]
	}

	status, err := protocol.Decode(payload)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Left pod:  %s\n", formatComponent(status.LeftPod, status.LeftCharging))
	fmt.Fprintf(out, "Right pod: %s\n", formatComponent(status.RightPod, status.RightCharging))
	fmt.Fprintf(out, "Case:      %s\n", formatComponent(status.CaseBattery, status.CaseCharging))
	if protocol.HasOutOfRangeLevels(payload) {
		fmt.Fprintln(out, color.YellowString("note: payload carried out-of-range level nibbles, values were clamped"))
	}
	return nil
}

// parseHexPayload accepts "4c00071901...", "4c 00 07 ..." and "4c:00:07:..."
func parseHexPayload(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.ToLower(clean), "0x")

	payload, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return payload, nil
}

func formatComponent(level int, charging bool) string {
	var s string
	switch {
	case level == protocol.LevelUnavailable:
		s = color.New(color.Faint).Sprint("n/a")
	case level <= 20:
		s = color.RedString("%d%%", level)
	default:
		s = color.GreenString("%d%%", level)
	}
	if charging {
		s += color.YellowString(" (charging)")
	}
	return s
}

package main

import (
	"errors"
	"strings"

	"github.com/srg/podwatch/internal/protocol"
)

// FormatUserError converts internal errors to user-friendly messages.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var tooShort *protocol.TooShortError
	if errors.As(err, &tooShort) {
		return err.Error() + " (a proximity payload is at least 16 bytes)"
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "dbus"):
		return msg + "\nIs this a Linux host with BlueZ and a running system D-Bus?"
	case strings.Contains(msg, "operation not permitted"):
		return msg + "\nBLE scanning needs CAP_NET_ADMIN; try running with sudo or set the capability on the binary."
	}
	return msg
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/podwatch/internal/adapter"
	"github.com/srg/podwatch/internal/central/bluez"
	"github.com/srg/podwatch/internal/central/goble"
	"github.com/srg/podwatch/internal/config"
	"github.com/srg/podwatch/internal/groutine"
	"github.com/srg/podwatch/internal/scan"
	"github.com/srg/podwatch/internal/status"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously scan and display earbud battery state",
	Long: `Start a passive BLE scan and render a live view of the decoded battery
and charging state. The scan follows the Bluetooth radio: it starts when the
adapter powers on and stops when it powers off.

Interactive keys (when stdout is a terminal):
  r  force a fresh scan session
  q  quit`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("refresh", time.Second, "Screen refresh interval")
	watchCmd.Flags().Bool("show-devices", false, "Also list every device sighted during the scan")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}

	refresh, _ := cmd.Flags().GetDuration("refresh")
	showDevices, _ := cmd.Flags().GetBool("show-devices")

	watcher, err := bluez.NewWatcher(cfg.Adapter.Path, logger)
	if err != nil {
		return fmt.Errorf("connecting to BlueZ: %w", err)
	}
	defer watcher.Close()

	monitor := adapter.NewMonitor(watcher, logger)
	monitor.Start()
	defer monitor.Close()

	store := status.NewStore(logger)
	defer store.Close()

	central := goble.New(logger)
	defer central.Close()

	opts := &scan.Options{
		Window:          cfg.Scan.Window(),
		RestartInterval: cfg.Scan.RestartInterval(),
		AllowDuplicates: cfg.Scan.AllowDuplicates,
		AllowList:       cfg.Scan.AllowList,
	}
	ctrl, err := scan.NewController(central, monitor, store, opts, logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.Initialize()
	ctrl.Start()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if restore, err := startKeyReader(ctx, cancel, ctrl, logger); err == nil {
		defer restore()
	}

	return renderLoop(ctx, cmd.OutOrStdout(), store, ctrl, refresh, showDevices)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// startKeyReader puts stdin in raw mode and reacts to single keystrokes.
// Returns the terminal restore func, or an error when stdin is not a TTY.
func startKeyReader(ctx context.Context, cancel context.CancelFunc, ctrl *scan.Controller, logger *logrus.Logger) (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	groutine.Go(ctx, "key-reader", func(ctx context.Context) {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || ctx.Err() != nil {
				return
			}
			if n == 0 {
				continue
			}
			switch buf[0] {
			case 'r', 'R':
				logger.Info("forcing a fresh scan session")
				ctrl.ForceScan()
			case 'q', 'Q', 0x03: // q or Ctrl+C in raw mode
				cancel()
				return
			}
		}
	})

	return func() { _ = term.Restore(fd, oldState) }, nil
}

func renderLoop(ctx context.Context, out io.Writer, store *status.Store, ctrl *scan.Controller, refresh time.Duration, showDevices bool) error {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		render(out, store.Snapshot(), ctrl, showDevices)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case <-ticker.C:
		}
	}
}

const clearScreen = "\033[2J\033[H"

func render(out io.Writer, snap status.Snapshot, ctrl *scan.Controller, showDevices bool) {
	var b strings.Builder
	b.WriteString(clearScreen)

	b.WriteString(color.New(color.Bold).Sprint("podwatch"))
	b.WriteString("  ")
	b.WriteString(formatAdapter(snap.Adapter))
	b.WriteString("  ")
	if snap.Scanning {
		b.WriteString(color.CyanString("scanning"))
	} else {
		b.WriteString(color.New(color.Faint).Sprint("idle"))
	}
	b.WriteString("\r\n\r\n")

	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "  Left pod\tRight pod\tCase\t\r\n")
	fmt.Fprintf(w, "  %s\t%s\t%s\t\r\n",
		formatComponent(snap.Battery.LeftPod, snap.Battery.LeftCharging),
		formatComponent(snap.Battery.RightPod, snap.Battery.RightCharging),
		formatComponent(snap.Battery.CaseBattery, snap.Battery.CaseCharging))
	w.Flush()

	if showDevices {
		sightings := ctrl.Sightings()
		b.WriteString("\r\n")
		if len(sightings) == 0 {
			b.WriteString(color.New(color.Faint).Sprint("  no devices sighted yet\r\n"))
		}
		dw := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
		for _, s := range sightings {
			name := s.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Fprintf(dw, "  %s\t%s\t%d dBm\t%s\t\r\n",
				s.Addr, name, s.RSSI, s.LastSeen.Format("15:04:05"))
		}
		dw.Flush()
	}

	b.WriteString("\r\n")
	b.WriteString(color.New(color.Faint).Sprint("  [r] rescan  [q] quit\r\n"))

	fmt.Fprint(out, b.String())
}

func formatAdapter(state adapter.State) string {
	if state.Ready() {
		return color.GreenString("radio %s", state)
	}
	return color.RedString("radio %s", state)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/fleet"
	"github.com/vantagesign/signdeck/internal/mqtt"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Talk to the billboard devices over MQTT",
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices seen on the status topics",
	Long: `List devices seen on the status topics. The command listens for the
given window and prints every device that reported in.`,
	RunE: runDeviceList,
}

var deviceSendCmd = &cobra.Command{
	Use:   "send <device-id|all> <update|reset|refresh>",
	Short: "Send a command to one device, or broadcast to all",
	Args:  cobra.ExactArgs(2),
	RunE:  runDeviceSend,
}

var deviceWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream device and command events to stdout",
	RunE:  runDeviceWatch,
}

var (
	deviceListWindow time.Duration
	deviceSendWait   bool
)

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceSendCmd)
	deviceCmd.AddCommand(deviceWatchCmd)

	deviceListCmd.Flags().DurationVar(&deviceListWindow, "window", 5*time.Second, "how long to listen for status traffic")
	deviceSendCmd.Flags().BoolVar(&deviceSendWait, "wait", true, "wait for the command to reach a final state")
}

// newTracker dials the broker and attaches a tracker to its status
// traffic. The caller owns the returned session.
func newTracker(cfg *config.Config) (*fleet.Tracker, *mqtt.Session, error) {
	log := newLogger()
	session, err := mqtt.Dial(cfg.MQTT, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to broker: %w", err)
	}

	tracker := fleet.NewTracker(session, mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix},
		nil, log, fleet.Options{
			CommandTimeout: cfg.Fleet.CommandTimeout,
			OfflineAfter:   cfg.Fleet.OfflineAfter,
		})
	if err := tracker.Attach(); err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("subscribe to fleet status: %w", err)
	}
	return tracker, session, nil
}

func runDeviceList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	tracker, session, err := newTracker(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Fprintf(os.Stderr, "Listening for status traffic for %s...\n", deviceListWindow)
	select {
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	case <-time.After(deviceListWindow):
	}

	devices := tracker.Devices()
	if len(devices) == 0 {
		fmt.Println("No devices reported in. Are they publishing status messages?")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tONLINE\tLAST SEEN\tSTATE\tFIRMWARE")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			d.ID, d.Online, d.LastSeen.Format(time.RFC3339), d.LastState, d.Firmware)
	}
	return w.Flush()
}

func runDeviceSend(cmd *cobra.Command, args []string) error {
	target := args[0]
	if target == "all" {
		target = mqtt.BroadcastDevice
	}
	cmdType, err := fleet.ParseCommandType(args[1])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker, session, err := newTracker(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if target == mqtt.BroadcastDevice {
		// Broadcasts target online devices, so give the fleet a moment to
		// report in first.
		fmt.Fprintln(os.Stderr, "Discovering online devices...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}

	events, cancel := tracker.Subscribe()
	defer cancel()

	cmds, err := tracker.Dispatch(ctx, target, cmdType)
	if err != nil {
		return err
	}
	for _, c := range cmds {
		fmt.Printf("→ %s %s (%s)\n", c.Type, c.Device, c.ID)
	}
	if !deviceSendWait {
		return nil
	}

	go tracker.Run(ctx)

	pending := len(cmds)
	deadline := time.After(cfg.Fleet.CommandTimeout + 5*time.Second)
	for pending > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%d command(s) still pending", pending)
		case event := <-events:
			if event.Kind != "command" || event.Command == nil {
				continue
			}
			c := event.Command
			fmt.Printf("  %s %s: %s", c.Device, c.ID, c.State)
			if c.Detail != "" {
				fmt.Printf(" (%s)", c.Detail)
			}
			fmt.Println()
			if c.State.IsTerminal() {
				pending--
			}
		}
	}
	return nil
}

func runDeviceWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker, session, err := newTracker(cfg)
	if err != nil {
		return err
	}
	defer session.Close()
	go tracker.Run(ctx)

	events, cancel := tracker.Subscribe()
	defer cancel()

	fmt.Fprintln(os.Stderr, "Watching fleet events (Ctrl-C to stop)...")
	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-events:
			if err := enc.Encode(event); err != nil {
				return err
			}
		}
	}
}

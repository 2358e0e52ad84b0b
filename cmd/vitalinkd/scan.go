package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/scanner"
)

var scanDuration time.Duration

// scanCmd runs a one-shot discovery pass, for finding addresses to put in
// the config file.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE devices",
	Long: `Scan for Bluetooth Low Energy devices and list their addresses,
names, and signal strength. Use the addresses shown here in the devices
section of the config file.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
}

func runScan(cmd *cobra.Command, _ []string) error {
	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	adapter, _ := cmd.Flags().GetInt("adapter")
	transport := device.NewTransport(logger, adapter)
	sched := scanner.New(transport, logger, scanner.Options{
		Interval: scanDuration,
		Window:   scanDuration,
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), scanDuration)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nCtrl+C pressed, stopping scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Printf("Scanning for %s...\n", scanDuration)
	sched.TriggerScan()
	defer sched.Stop()

	// Drain the stream until the window closes; the table comes from the
	// deduplicated cache afterwards.
	for {
		select {
		case <-ctx.Done():
			return printDiscoveries(sched.Devices())
		case <-sched.Events():
		}
	}
}

func printDiscoveries(discoveries []scanner.Discovery) error {
	if len(discoveries) == 0 {
		fmt.Println("No devices found.")
		return nil
	}
	sort.Slice(discoveries, func(i, j int) bool {
		return discoveries[i].RSSI > discoveries[j].RSSI
	})

	bold := color.New(color.Bold)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	bold.Fprintln(w, "ADDRESS\tNAME\tRSSI\tLAST SEEN")
	for _, d := range discoveries {
		name := d.Name
		if name == "" {
			name = color.HiBlackString("(unnamed)")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			d.Address.Colonized(), name, colorRSSI(d.RSSI), d.At.Format(time.Kitchen))
	}
	if err := w.Flush(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	fmt.Printf("\n%d device(s) found.\n", len(discoveries))
	return nil
}

func colorRSSI(rssi int) string {
	s := fmt.Sprintf("%d dBm", rssi)
	switch {
	case rssi >= -60:
		return color.GreenString(s)
	case rssi >= -80:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vitalinkd",
	Short: "BLE health device hub",
	Long: `vitalinkd connects to BLE health peripherals and turns their GATT
characteristics into a unified event stream:

- Blood pressure cuffs (Blood Pressure Service)
- Environmental/IMU sensors (temperature, humidity, light, accelerometer, button)
- Fitness wearables (running speed and cadence, daily activity totals)

Readings are decoded, folded into per-user daily activity aggregates,
persisted to SQLite, and broadcast to websocket dashboard clients.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(activityCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("adapter", 0, "HCI adapter ID")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

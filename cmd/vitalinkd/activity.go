package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/vitalink/aggregate"
	"github.com/srg/vitalink/internal/store"
	"github.com/srg/vitalink/pkg/config"
)

var (
	activityConfigPath string
	activityDB         string
	activityUser       string
	activityDate       string
)

// activityCmd reads persisted daily activity straight from the database, so
// it works whether or not the daemon is running.
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show a user's daily activity totals",
	RunE:  runActivity,
}

func init() {
	activityCmd.Flags().StringVarP(&activityConfigPath, "config", "c", "", "Path to YAML config file")
	activityCmd.Flags().StringVar(&activityDB, "db", "", "Path to the SQLite database (default from config)")
	activityCmd.Flags().StringVarP(&activityUser, "user", "u", "local", "User ID")
	activityCmd.Flags().StringVar(&activityDate, "date", "", "Date (YYYY-MM-DD, default today)")
}

func runActivity(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if activityConfigPath != "" {
		var err error
		if cfg, err = config.Load(activityConfigPath); err != nil {
			return err
		}
	}

	// "Today" follows the hub's configured timezone offset, the same
	// bucketing the daemon used when it wrote the rows.
	date := activityDate
	if date == "" {
		date = string(aggregate.DateAt(time.Now(), cfg.TimezoneOffsetMinutes))
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q: use YYYY-MM-DD", activityDate)
	}

	dbPath := activityDB
	if dbPath == "" {
		dbPath = cfg.StorePath
	}

	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	st, err := store.New(logger, dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	activity, err := st.Activity(activityUser, aggregate.Date(date))
	if errors.Is(err, sql.ErrNoRows) {
		fmt.Printf("No activity recorded for %s on %s.\n", activityUser, date)
		return nil
	}
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	bold.Fprintf(w, "%s on %s\n", activity.UserID, activity.Date)
	fmt.Fprintf(w, "Steps\t%d\n", activity.Steps)
	fmt.Fprintf(w, "Active minutes\t%d\n", activity.ActiveMinutes)
	fmt.Fprintf(w, "Calories burned\t%d kcal\n", activity.CaloriesBurned)
	fmt.Fprintf(w, "Floors climbed\t%d\n", activity.FloorsClimbed)
	fmt.Fprintf(w, "Distance\t%.2f mi\n", activity.DistanceMiles)
	fmt.Fprintf(w, "Devices\t%d\n", activity.ContributingDeviceCount)
	return w.Flush()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/vitalink/aggregate"
	"github.com/srg/vitalink/connmgr"
	"github.com/srg/vitalink/events"
	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/groutine"
	"github.com/srg/vitalink/internal/profile"
	"github.com/srg/vitalink/internal/store"
	"github.com/srg/vitalink/internal/web"
	"github.com/srg/vitalink/pkg/config"
	"github.com/srg/vitalink/scanner"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the hub daemon",
	Long: `Run the hub: scan for registered devices, maintain their
connections, decode readings, and serve the websocket event feed until
interrupted.`,
	RunE: runHub,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to YAML config file")
}

func runHub(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		var err error
		if cfg, err = config.Load(runConfigPath); err != nil {
			return err
		}
	}
	if adapter, _ := cmd.Flags().GetInt("adapter"); adapter != 0 {
		cfg.AdapterID = adapter
	}

	logger, err := configureLogger(cmd, logrus.InfoLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("Shutting down")
		cancel()
	}()

	transport := device.NewTransport(logger, cfg.AdapterID)
	bus := events.NewBus(logger)
	agg := aggregate.New(logger, aggregate.Options{
		TimezoneOffsetMinutes: cfg.TimezoneOffsetMinutes,
		DefaultUserID:         cfg.DefaultUser,
	})
	sched := scanner.New(transport, logger, scanner.Options{
		Interval: cfg.ScanInterval,
		Window:   cfg.ScanWindow,
	})
	mgr := connmgr.New(logger, transport, sched, bus, agg, connmgr.Options{
		PollInterval: cfg.PollInterval,
	})

	for _, d := range cfg.Devices {
		kind, err := profile.ParseKind(d.Profile)
		if err != nil {
			return err
		}
		if _, err := mgr.AddDevice(d.Address, d.Name, kind, d.Owner); err != nil {
			return fmt.Errorf("register device %s: %w", d.Address, err)
		}
	}

	if cfg.StorePath != "" {
		st, err := store.New(logger, cfg.StorePath)
		if err != nil {
			return err
		}
		defer st.Close()
		st.Attach(bus)
	}

	if cfg.ListenAddr != "" {
		srv := web.NewServer(logger, cfg.ListenAddr)
		srv.Attach(bus)
		groutine.Go(ctx, "web-server", func(context.Context) {
			if err := srv.Start(); err != nil {
				logger.WithError(err).Error("Web server failed")
				cancel()
			}
		})
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Web server shutdown failed")
			}
		}()
	}

	sweeper, err := aggregate.NewSweeper(agg, logger, "")
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	sched.Start()
	defer sched.Stop()
	defer mgr.Stop()

	logger.WithField("devices", len(cfg.Devices)).Info("Hub running")
	mgr.Run(ctx, sched.Events())
	return nil
}

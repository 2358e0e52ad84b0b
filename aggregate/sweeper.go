package aggregate

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper drives the periodic retention purge on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	logger *logrus.Logger
}

// NewSweeper schedules agg.Sweep on the given cron spec ("@every 1h" when
// empty).
func NewSweeper(agg *Aggregator, logger *logrus.Logger, schedule string) (*Sweeper, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if schedule == "" {
		schedule = "@every 1h"
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		removed := agg.Sweep(time.Now())
		logger.WithFields(logrus.Fields{
			"schedule": schedule,
			"removed":  removed,
		}).Debug("Snapshot retention sweep completed")
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return &Sweeper{cron: c, logger: logger}, nil
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

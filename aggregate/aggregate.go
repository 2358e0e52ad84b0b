// Package aggregate folds per-device activity readings into one canonical
// per-user, per-day activity record.
//
// Policy: every metric uses highest-value-wins across devices. Two devices
// observing the same physical activity should not double count, so the most
// optimistic single-device reading is treated as canonical. This is a known
// simplification: two genuinely independent activities on the same day from
// different devices will be under-counted.
package aggregate

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/profile"
)

// Date is a calendar date in YYYY-MM-DD form, computed against the hub's
// configured timezone offset rather than the host timezone.
type Date string

// ActivitySnapshot carries the per-device daily totals a wearable reports.
// Zero-valued metrics simply never win the fold.
type ActivitySnapshot struct {
	Steps         int
	ActiveMinutes int
	CaloriesKcal  int
	FloorsClimbed int
	DistanceM     float64
}

// DailyActivity is the canonical aggregate for one (user, date) key.
type DailyActivity struct {
	UserID                  string
	Date                    Date
	Steps                   int
	ActiveMinutes           int
	CaloriesBurned          int
	FloorsClimbed           int
	DistanceMiles           float64
	ContributingDeviceCount int
}

type snapshotKey struct {
	date Date
	addr device.Address
}

type snapshot struct {
	userID string
	data   ActivitySnapshot
	at     time.Time
}

// Options configures an Aggregator.
type Options struct {
	// TimezoneOffsetMinutes shifts timestamps before date bucketing, minutes
	// east of UTC.
	TimezoneOffsetMinutes int
	// Retention is how long device snapshots are kept. Dates older than this
	// are purged on Sweep and excluded from folds.
	Retention time.Duration
	// DefaultUserID receives readings from devices with no registered owner,
	// so data is never silently dropped while a device awaits registration.
	DefaultUserID string
}

const (
	defaultRetention = 48 * time.Hour
	defaultUserID    = "local"
)

// Aggregator ingests device snapshots and maintains daily activity records.
type Aggregator struct {
	logger *logrus.Logger
	opts   Options

	// ResolveOwner maps a device address to its owning user. Returning
	// ("", false) routes the reading to the default user.
	ResolveOwner func(addr device.Address) (string, bool)

	mu         sync.Mutex
	snapshots  map[snapshotKey]*snapshot
	aggregates map[string]DailyActivity // userID + "/" + date
}

// New creates an Aggregator. A nil logger gets a default one.
func New(logger *logrus.Logger, opts Options) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.DefaultUserID == "" {
		opts.DefaultUserID = defaultUserID
	}
	return &Aggregator{
		logger:     logger,
		opts:       opts,
		snapshots:  make(map[snapshotKey]*snapshot),
		aggregates: make(map[string]DailyActivity),
	}
}

// DateAt buckets a timestamp into a calendar date shifted by offsetMinutes
// east of UTC. "Today" is stable regardless of the host timezone.
func DateAt(at time.Time, offsetMinutes int) Date {
	shifted := at.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
	return Date(shifted.Format("2006-01-02"))
}

// DateOf buckets a timestamp using the configured timezone offset.
func (a *Aggregator) DateOf(at time.Time) Date {
	return DateAt(at, a.opts.TimezoneOffsetMinutes)
}

func aggKey(userID string, date Date) string {
	return userID + "/" + string(date)
}

// Ingest records reading as the device's latest snapshot for the reading's
// effective date and recomputes the owner's daily aggregate. There is one
// snapshot per (device, date); the incoming reading is merged into it with
// highest-value-wins per metric, so a device re-reporting lower totals (a
// reset band, a dropped sync) never shrinks the day. The updated aggregate
// is returned so the caller can publish it.
func (a *Aggregator) Ingest(addr device.Address, reading ActivitySnapshot, at time.Time) DailyActivity {
	date := a.DateOf(at)
	userID := a.ownerOf(addr)

	a.mu.Lock()
	defer a.mu.Unlock()

	key := snapshotKey{date: date, addr: addr}
	if prev, ok := a.snapshots[key]; ok {
		reading = mergeHighest(prev.data, reading)
	}
	a.snapshots[key] = &snapshot{
		userID: userID,
		data:   reading,
		at:     at,
	}

	agg := a.recomputeLocked(userID, date, at)
	a.aggregates[aggKey(userID, date)] = agg

	a.logger.WithFields(logrus.Fields{
		"device": addr,
		"user":   userID,
		"date":   date,
		"steps":  agg.Steps,
	}).Debug("Activity aggregate recomputed")

	return agg
}

// mergeHighest keeps the higher value per metric across two snapshots from
// the same device on the same date.
func mergeHighest(prev, next ActivitySnapshot) ActivitySnapshot {
	return ActivitySnapshot{
		Steps:         max(prev.Steps, next.Steps),
		ActiveMinutes: max(prev.ActiveMinutes, next.ActiveMinutes),
		CaloriesKcal:  max(prev.CaloriesKcal, next.CaloriesKcal),
		FloorsClimbed: max(prev.FloorsClimbed, next.FloorsClimbed),
		DistanceM:     max(prev.DistanceM, next.DistanceM),
	}
}

func (a *Aggregator) ownerOf(addr device.Address) string {
	if a.ResolveOwner != nil {
		if userID, ok := a.ResolveOwner(addr); ok && userID != "" {
			return userID
		}
	}
	return a.opts.DefaultUserID
}

// recomputeLocked folds every retained snapshot for (userID, date) with
// highest-value-wins per metric. Caller holds a.mu.
func (a *Aggregator) recomputeLocked(userID string, date Date, now time.Time) DailyActivity {
	agg := DailyActivity{UserID: userID, Date: date}
	cutoff := now.Add(-a.opts.Retention)

	for key, snap := range a.snapshots {
		if key.date != date || snap.userID != userID {
			continue
		}
		if snap.at.Before(cutoff) {
			continue
		}
		agg.ContributingDeviceCount++
		agg.Steps = max(agg.Steps, snap.data.Steps)
		agg.ActiveMinutes = max(agg.ActiveMinutes, snap.data.ActiveMinutes)
		agg.CaloriesBurned = max(agg.CaloriesBurned, snap.data.CaloriesKcal)
		agg.FloorsClimbed = max(agg.FloorsClimbed, snap.data.FloorsClimbed)
		agg.DistanceMiles = max(agg.DistanceMiles, profile.MilesFromMeters(snap.data.DistanceM))
	}
	return agg
}

// Aggregate returns the current aggregate for (userID, date), if present.
// Purged dates keep their last computed value.
func (a *Aggregator) Aggregate(userID string, date Date) (DailyActivity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg, ok := a.aggregates[aggKey(userID, date)]
	return agg, ok
}

// Sweep purges snapshots older than the retention window. Aggregates for
// purged dates are left as last computed; the sweep never rewrites history.
// Returns the number of snapshots removed.
func (a *Aggregator) Sweep(now time.Time) int {
	cutoff := now.Add(-a.opts.Retention)

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for key, snap := range a.snapshots {
		if snap.at.Before(cutoff) {
			delete(a.snapshots, key)
			removed++
		}
	}
	if removed > 0 {
		a.logger.WithField("removed", removed).Info("Purged stale device snapshots")
	}
	return removed
}

// SnapshotCount reports retained snapshots, for diagnostics.
func (a *Aggregator) SnapshotCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.snapshots)
}

func (a *Aggregator) String() string {
	return fmt.Sprintf("aggregator(tz=%+dm retention=%s)", a.opts.TimezoneOffsetMinutes, a.opts.Retention)
}

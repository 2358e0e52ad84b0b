// Package scanner drives periodic BLE discovery. It owns the scan cadence and
// the pause/resume dance around connection attempts; it does not filter by
// pairing status, that is the connection manager's job.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/groutine"
	"github.com/srg/vitalink/internal/ringchan"
)

// Discovery is one raw advertisement observation.
type Discovery struct {
	Address device.Address
	Name    string
	RSSI    int
	At      time.Time
}

// Options configures the scan cadence.
type Options struct {
	// Interval between scheduled scan starts. A tick is skipped while a
	// scan is still active.
	Interval time.Duration
	// Window bounds each individual scan. Devices like blood-pressure cuffs
	// advertise for only ~30s on demand, so the window stays comparable.
	Window time.Duration
}

// DefaultOptions returns the stock cadence: a 30s scan window every 45s.
func DefaultOptions() Options {
	return Options{
		Interval: 45 * time.Second,
		Window:   30 * time.Second,
	}
}

// Scheduler runs the repeating discovery cycle.
type Scheduler struct {
	logger *logrus.Logger
	radio  device.Radio
	opts   Options

	events *ringchan.Ring[Discovery]
	seen   *hashmap.Map[string, Discovery]

	mu         sync.Mutex
	running    bool
	pauseDepth int
	scanning   bool
	cancelScan context.CancelFunc
	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a Scheduler over the given radio. A nil logger gets a default
// one.
func New(radio device.Radio, logger *logrus.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	if opts.Window <= 0 {
		opts.Window = DefaultOptions().Window
	}
	return &Scheduler{
		logger: logger,
		radio:  radio,
		opts:   opts,
		events: ringchan.New[Discovery](256),
		seen:   hashmap.New[string, Discovery](),
	}
}

// Events returns the discovery stream. The buffer overwrites oldest on
// overflow so the radio callback never blocks.
func (s *Scheduler) Events() <-chan Discovery {
	return s.events.C()
}

// Start triggers a scan immediately and then on every interval tick, as long
// as no scan is currently active. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	groutine.Go(ctx, "scan-scheduler", func(ctx context.Context) {
		defer s.wg.Done()
		s.TriggerScan()

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.TriggerScan()
			}
		}
	})
}

// Stop cancels the cycle and any active scan, and waits for both to wind
// down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	loopCancel := s.loopCancel
	scanCancel := s.cancelScan
	s.loopCancel = nil
	s.mu.Unlock()

	if scanCancel != nil {
		scanCancel()
	}
	if loopCancel != nil {
		loopCancel()
	}
	s.wg.Wait()

	if stats := s.events.Snapshot(); stats.Overwritten > 0 {
		s.logger.WithField("dropped", stats.Overwritten).Debug("Discovery events dropped on buffer overflow")
	}
}

// TriggerScan starts a scan now unless one is already active or scanning is
// paused. Idempotent: the duplicate trigger is logged and dropped, never an
// error.
func (s *Scheduler) TriggerScan() {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		s.logger.Debug("Scan already in progress; trigger ignored")
		return
	}
	if s.pauseDepth > 0 {
		s.mu.Unlock()
		s.logger.Debug("Scanning paused; trigger ignored")
		return
	}
	s.scanning = true
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Window)
	s.cancelScan = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	groutine.Go(ctx, "scan", func(ctx context.Context) {
		defer s.wg.Done()
		defer cancel()

		s.logger.WithField("window", s.opts.Window).Debug("Starting BLE scan")
		err := s.radio.Scan(ctx, true, s.handleAdvertisement)

		s.mu.Lock()
		s.scanning = false
		s.cancelScan = nil
		s.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			s.logger.WithField("error", err).Warn("BLE scan failed")
		}
	})
}

// Pause stops any active scan and suppresses new ones until the matching
// Resume. Pauses nest: several connection attempts may overlap, and scanning
// stays suppressed until the last one resumes. The underlying stack cannot
// connect while scanning, so every connection attempt is bracketed by
// Pause/Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.pauseDepth++
	cancel := s.cancelScan
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Debug("Scanning paused for connection attempt")
}

// Resume lifts one pause. When the last nested pause is lifted it triggers a
// scan immediately rather than waiting for the next tick: a cuff that just
// failed to connect only advertises for a few more seconds.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if s.pauseDepth == 0 {
		s.mu.Unlock()
		return
	}
	s.pauseDepth--
	last := s.pauseDepth == 0
	running := s.running
	s.mu.Unlock()

	if last && running {
		s.logger.Debug("Scanning resumed")
		s.TriggerScan()
	}
}

// IsScanning reports whether a scan is active.
func (s *Scheduler) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

func (s *Scheduler) handleAdvertisement(adv device.Advertisement) {
	addr, err := device.ParseAddress(adv.Addr())
	if err != nil {
		return
	}
	d := Discovery{
		Address: addr,
		Name:    adv.LocalName(),
		RSSI:    adv.RSSI(),
		At:      time.Now(),
	}

	if _, known := s.seen.Get(string(addr)); !known {
		s.logger.WithFields(logrus.Fields{
			"device":  d.Name,
			"address": addr,
			"rssi":    d.RSSI,
		}).Info("Discovered new device")
	}
	s.seen.Set(string(addr), d)

	s.events.ForceSend(d)
}

// Devices returns the most recent observation per address.
func (s *Scheduler) Devices() []Discovery {
	out := make([]Discovery, 0, s.seen.Len())
	s.seen.Range(func(_ string, d Discovery) bool {
		out = append(out, d)
		return true
	})
	return out
}

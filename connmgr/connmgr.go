package connmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/vitalink/aggregate"
	"github.com/srg/vitalink/events"
	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/groutine"
	"github.com/srg/vitalink/internal/profile"
	"github.com/srg/vitalink/scanner"
)

// ScanControl is the slice of the scan scheduler the manager needs:
// scanning and connecting share the radio, so every connection attempt is
// bracketed by Pause/Resume.
type ScanControl interface {
	Pause()
	Resume()
}

// TrackedDevice is a paired device the manager maintains a connection to.
type TrackedDevice struct {
	Address     device.Address
	DisplayName string
	Profile     profile.Kind
	OwnerUserID string
	LastSeenAt  time.Time
}

// Options tunes connection retry and polling behavior.
type Options struct {
	// BaseRetryDelay is multiplied by the attempt number to produce a
	// linearly increasing backoff.
	BaseRetryDelay   time.Duration
	MaxRetryAttempts int
	// PollInterval drives reads of characteristics that cannot notify.
	PollInterval time.Duration
	// OpTimeout bounds individual GATT operations after the link is up.
	OpTimeout time.Duration
	// ConnectTimeout overrides the per-profile connect window when set.
	ConnectTimeout time.Duration
}

// DefaultOptions returns the manager defaults.
func DefaultOptions() Options {
	return Options{
		BaseRetryDelay:   3 * time.Second,
		MaxRetryAttempts: 5,
		PollInterval:     5 * time.Second,
		OpTimeout:        10 * time.Second,
	}
}

// session holds per-device connection state. All fields are guarded by the
// manager mutex. gen increments every time an attempt resolves, so callbacks
// from a superseded attempt become no-ops.
type session struct {
	device     TrackedDevice
	name       string
	state      State
	gen        uint64
	resolved   bool
	attempts   int
	client     device.Client
	connectedAt time.Time
	retryTimer *time.Timer
	pollCancel context.CancelFunc
	lastButton *bool
}

// Manager owns the registry of tracked devices and runs one connection state
// machine per device, feeding decoded readings into the event bus and the
// activity aggregator.
type Manager struct {
	logger *logrus.Logger
	dialer device.Dialer
	scan   ScanControl
	bus    *events.Bus
	agg    *aggregate.Aggregator
	opts   Options

	mu       sync.Mutex
	devices  map[device.Address]*TrackedDevice
	sessions map[device.Address]*session

	wg sync.WaitGroup
}

// New creates a Manager. The aggregator may be nil when activity folding is
// not wanted; readings are still published on the bus.
func New(logger *logrus.Logger, dialer device.Dialer, scan ScanControl, bus *events.Bus, agg *aggregate.Aggregator, opts Options) *Manager {
	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = DefaultOptions().BaseRetryDelay
	}
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = DefaultOptions().MaxRetryAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOptions().OpTimeout
	}
	m := &Manager{
		logger:   logger,
		dialer:   dialer,
		scan:     scan,
		bus:      bus,
		agg:      agg,
		opts:     opts,
		devices:  make(map[device.Address]*TrackedDevice),
		sessions: make(map[device.Address]*session),
	}
	if agg != nil {
		agg.ResolveOwner = m.OwnerOf
	}
	return m
}

// AddDevice registers a device for automatic connection. The address is
// normalized before storage.
func (m *Manager) AddDevice(addr, name string, kind profile.Kind, owner string) (TrackedDevice, error) {
	parsed, err := device.ParseAddress(addr)
	if err != nil {
		return TrackedDevice{}, err
	}
	td := TrackedDevice{
		Address:     parsed,
		DisplayName: name,
		Profile:     kind,
		OwnerUserID: owner,
	}
	m.mu.Lock()
	m.devices[parsed] = &td
	m.mu.Unlock()
	m.logger.WithFields(logrus.Fields{
		"address": parsed,
		"name":    name,
		"profile": kind,
	}).Info("Device registered")
	return td, nil
}

// RemoveDevice unregisters a device, tearing down any live connection and
// pending retry. Returns false when the address was not tracked.
func (m *Manager) RemoveDevice(addr device.Address) bool {
	m.mu.Lock()
	_, ok := m.devices[addr]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.devices, addr)
	sess := m.sessions[addr]
	delete(m.sessions, addr)
	var client device.Client
	var pollCancel context.CancelFunc
	if sess != nil {
		sess.gen++
		sess.resolved = true
		sess.state = StateDisconnected
		if sess.retryTimer != nil {
			sess.retryTimer.Stop()
			sess.retryTimer = nil
		}
		client = sess.client
		sess.client = nil
		pollCancel = sess.pollCancel
		sess.pollCancel = nil
	}
	m.mu.Unlock()
	if pollCancel != nil {
		pollCancel()
	}
	if client != nil {
		if err := client.CancelConnection(); err != nil {
			m.logger.WithError(err).WithField("address", addr).Warn("Disconnect on removal failed")
		}
	}
	m.logger.WithField("address", addr).Info("Device removed")
	return true
}

// Devices returns a snapshot of the registry.
func (m *Manager) Devices() []TrackedDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TrackedDevice, 0, len(m.devices))
	for _, td := range m.devices {
		out = append(out, *td)
	}
	return out
}

// OwnerOf resolves the owning user of an address, for the aggregator.
func (m *Manager) OwnerOf(addr device.Address) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.devices[addr]
	if !ok || td.OwnerUserID == "" {
		return "", false
	}
	return td.OwnerUserID, true
}

// StateOf reports the connection state of an address.
func (m *Manager) StateOf(addr device.Address) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[addr]; ok {
		return sess.state
	}
	return StateDisconnected
}

// Run consumes discovery events until ctx is cancelled or the channel
// closes, starting connection attempts for tracked devices.
func (m *Manager) Run(ctx context.Context, discoveries <-chan scanner.Discovery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-discoveries:
			if !ok {
				return
			}
			m.HandleDiscovery(d)
		}
	}
}

// HandleDiscovery reacts to a single discovery event. Untracked addresses
// are ignored; tracked devices already mid-attempt or connected are left
// alone so only one attempt runs per device.
func (m *Manager) HandleDiscovery(d scanner.Discovery) {
	m.mu.Lock()
	td, ok := m.devices[d.Address]
	if !ok {
		m.mu.Unlock()
		return
	}
	td.LastSeenAt = d.At
	sess := m.sessions[d.Address]
	if sess == nil {
		sess = &session{device: *td}
		m.sessions[d.Address] = sess
	}
	sess.device = *td
	if sess.state != StateDisconnected {
		state := sess.state
		m.mu.Unlock()
		m.logger.WithFields(logrus.Fields{
			"address": d.Address,
			"state":   state,
		}).Debug("Discovery ignored, session busy")
		return
	}
	if sess.retryTimer != nil {
		sess.retryTimer.Stop()
		sess.retryTimer = nil
	}
	name := td.DisplayName
	if name == "" {
		name = d.Name
	}
	sess.name = name
	gen := m.beginAttemptLocked(sess)
	m.mu.Unlock()

	m.startAttempt(sess, gen)
}

// beginAttemptLocked transitions the session into Connecting and returns the
// attempt generation. Caller holds the mutex.
func (m *Manager) beginAttemptLocked(sess *session) uint64 {
	sess.state = StateConnecting
	sess.resolved = false
	return sess.gen
}

func (m *Manager) startAttempt(sess *session, gen uint64) {
	addr := sess.device.Address
	m.logger.WithFields(logrus.Fields{
		"address": addr,
		"name":    sess.name,
		"profile": sess.device.Profile,
	}).Info("Connecting")
	m.publish(events.ConnectionStatus{Address: addr, Name: sess.name, Status: events.StatusConnecting})
	m.scan.Pause()
	m.wg.Add(1)
	groutine.Go(context.Background(), fmt.Sprintf("connect-%s", addr), func(context.Context) {
		defer m.wg.Done()
		m.attempt(sess, gen)
	})
}

// retry re-attempts a connection after a backoff delay without waiting for
// a fresh advertisement.
func (m *Manager) retry(addr device.Address) {
	m.mu.Lock()
	sess := m.sessions[addr]
	if sess == nil || sess.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	if _, ok := m.devices[addr]; !ok {
		m.mu.Unlock()
		return
	}
	sess.retryTimer = nil
	gen := m.beginAttemptLocked(sess)
	m.mu.Unlock()
	m.startAttempt(sess, gen)
}

// attempt drives one connection attempt through dial, service discovery and
// subscription. A watchdog resolves the attempt at the profile's connect
// timeout; a dial that completes after that is cancelled without any state
// transition.
func (m *Manager) attempt(sess *session, gen uint64) {
	td := sess.device
	timeout := m.opts.ConnectTimeout
	if timeout <= 0 {
		timeout = profile.ConnectTimeout(td.Profile)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	watchdog := time.AfterFunc(timeout, func() {
		m.failAttempt(sess, gen, fmt.Errorf("connect to %s: %w", td.Address, device.ErrTimeout))
	})
	defer watchdog.Stop()

	client, err := m.dialer.Dial(ctx, td.Address)
	if err != nil {
		m.failAttempt(sess, gen, fmt.Errorf("connect to %s: %w", td.Address, err))
		return
	}
	watchdog.Stop()
	if !m.advance(sess, gen, StateConnecting, StateDiscovering) {
		// Attempt already resolved, typically by the watchdog. Drop the
		// late connection without touching session state.
		_ = client.CancelConnection()
		m.logger.WithField("address", td.Address).Debug("Late connect result discarded")
		return
	}

	dctx, dcancel := context.WithTimeout(context.Background(), m.opts.OpTimeout)
	services, err := client.DiscoverServices(dctx)
	dcancel()
	if err != nil {
		m.failAttemptCancel(sess, gen, client, fmt.Errorf("discover services on %s: %w", td.Address, err))
		return
	}

	plan := profile.Plan(td.Profile)
	for _, pc := range plan {
		svc, err := device.FindService(services, pc.Service)
		if err != nil {
			m.failAttemptCancel(sess, gen, client, fmt.Errorf("device %s: %w", td.Address, err))
			return
		}
		if _, ok := svc.Characteristic(pc.UUID); !ok {
			m.failAttemptCancel(sess, gen, client, fmt.Errorf("device %s: %w", td.Address,
				&device.NotFoundError{Resource: "characteristic", UUIDs: []string{pc.Service, pc.UUID}}))
			return
		}
	}

	if !m.advance(sess, gen, StateDiscovering, StateSubscribing) {
		_ = client.CancelConnection()
		return
	}

	var polled []profile.CharacteristicPlan
	for _, pc := range plan {
		if !pc.Notifies {
			polled = append(polled, pc)
			continue
		}
		pc := pc
		err := client.Subscribe(pc.Service, pc.UUID, func(data []byte) {
			m.handleNotification(sess, gen, pc, data)
		})
		if err != nil {
			m.failAttemptCancel(sess, gen, client, fmt.Errorf("subscribe %s on %s: %w", pc.UUID, td.Address, err))
			return
		}
	}

	// Characteristics that cannot notify must produce a first reading
	// before the session counts as connected.
	if len(polled) > 0 {
		if err := m.pollOnce(sess, gen, client, polled); err != nil {
			m.failAttemptCancel(sess, gen, client, fmt.Errorf("initial read on %s: %w", td.Address, err))
			return
		}
	}

	m.completeAttempt(sess, gen, client, polled)
}

// advance moves the session from one state to the next, refusing when the
// attempt has been superseded or resolved.
func (m *Manager) advance(sess *session, gen uint64, from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.gen != gen || sess.resolved || sess.state != from {
		return false
	}
	sess.state = to
	return true
}

func (m *Manager) completeAttempt(sess *session, gen uint64, client device.Client, polled []profile.CharacteristicPlan) {
	m.mu.Lock()
	if sess.gen != gen || sess.resolved || sess.state != StateSubscribing {
		m.mu.Unlock()
		_ = client.CancelConnection()
		return
	}
	sess.state = StateConnected
	sess.resolved = true
	sess.gen++
	watchGen := sess.gen
	sess.attempts = 0
	sess.client = client
	sess.connectedAt = time.Now()
	var pollCtx context.Context
	if len(polled) > 0 {
		pollCtx, sess.pollCancel = context.WithCancel(context.Background())
	}
	addr := sess.device.Address
	name := sess.name
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"address": addr,
		"name":    name,
	}).Info("Connected")
	m.publish(events.ConnectionStatus{Address: addr, Name: name, Status: events.StatusConnected})
	m.scan.Resume()

	if pollCtx != nil {
		m.wg.Add(1)
		groutine.Go(pollCtx, fmt.Sprintf("poll-%s", addr), func(ctx context.Context) {
			defer m.wg.Done()
			m.pollLoop(ctx, sess, watchGen, client, polled)
		})
	}
	m.wg.Add(1)
	groutine.Go(context.Background(), fmt.Sprintf("link-%s", addr), func(context.Context) {
		defer m.wg.Done()
		<-client.Disconnected()
		m.handleDisconnect(sess, watchGen)
	})
}

// failAttempt resolves the current attempt as failed, publishes the error
// and schedules a linear-backoff retry. No-op when the attempt already
// resolved, which is how the timeout/late-callback race collapses to a
// single outcome.
func (m *Manager) failAttempt(sess *session, gen uint64, cause error) {
	m.mu.Lock()
	if sess.gen != gen || sess.resolved {
		m.mu.Unlock()
		return
	}
	sess.resolved = true
	sess.gen++
	sess.state = StateDisconnected
	sess.client = nil
	sess.attempts++
	attempts := sess.attempts
	addr := sess.device.Address
	name := sess.name
	var delay time.Duration
	if attempts <= m.opts.MaxRetryAttempts {
		delay = m.opts.BaseRetryDelay * time.Duration(attempts)
		sess.retryTimer = time.AfterFunc(delay, func() { m.retry(addr) })
	}
	m.mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"address": addr,
		"attempt": attempts,
	}).WithError(cause)
	if delay > 0 {
		log.WithField("retryIn", delay).Warn("Connection attempt failed")
	} else {
		log.Warn("Connection attempt failed, retries exhausted")
	}
	m.publish(events.ConnectionError{Address: addr, Name: name, Err: cause.Error()})
	m.scan.Resume()
}

func (m *Manager) failAttemptCancel(sess *session, gen uint64, client device.Client, cause error) {
	_ = client.CancelConnection()
	m.failAttempt(sess, gen, cause)
}

// handleDisconnect reacts to the link dropping on an established session.
func (m *Manager) handleDisconnect(sess *session, gen uint64) {
	m.mu.Lock()
	if sess.gen != gen || sess.state != StateConnected {
		m.mu.Unlock()
		return
	}
	sess.gen++
	sess.state = StateDisconnected
	sess.client = nil
	sess.lastButton = nil
	pollCancel := sess.pollCancel
	sess.pollCancel = nil
	addr := sess.device.Address
	name := sess.name
	m.mu.Unlock()

	if pollCancel != nil {
		pollCancel()
	}
	m.logger.WithFields(logrus.Fields{
		"address": addr,
		"name":    name,
	}).Info("Disconnected")
	m.publish(events.ConnectionStatus{Address: addr, Name: name, Status: events.StatusDisconnected})
}

// Stop tears down all sessions and waits for attempt goroutines to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	var clients []device.Client
	var cancels []context.CancelFunc
	for _, sess := range m.sessions {
		sess.gen++
		sess.resolved = true
		sess.state = StateDisconnected
		if sess.retryTimer != nil {
			sess.retryTimer.Stop()
			sess.retryTimer = nil
		}
		if sess.client != nil {
			clients = append(clients, sess.client)
			sess.client = nil
		}
		if sess.pollCancel != nil {
			cancels = append(cancels, sess.pollCancel)
			sess.pollCancel = nil
		}
	}
	m.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	for _, client := range clients {
		_ = client.CancelConnection()
	}
	m.wg.Wait()
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

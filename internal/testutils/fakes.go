// Package testutils provides fake BLE transport pieces for tests: canned
// advertisements, a scriptable radio, and a scriptable GATT client. No test
// in this repository touches real hardware.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/vitalink/internal/device"
)

// QuietLogger returns a logger that only speaks on panic, keeping test output
// readable.
func QuietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Advertisement is a canned advertisement.
type Advertisement struct {
	AdvName        string
	AdvAddr        string
	AdvRSSI        int
	AdvConnectable bool
	AdvServices    []string
}

func (a Advertisement) LocalName() string  { return a.AdvName }
func (a Advertisement) Addr() string       { return a.AdvAddr }
func (a Advertisement) RSSI() int          { return a.AdvRSSI }
func (a Advertisement) Connectable() bool  { return a.AdvConnectable }
func (a Advertisement) Services() []string { return a.AdvServices }

// AdvertisementBuilder builds canned advertisements fluently.
type AdvertisementBuilder struct {
	adv Advertisement
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: Advertisement{AdvConnectable: true}}
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.AdvAddr = addr
	return b
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.AdvName = name
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.AdvRSSI = rssi
	return b
}

func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.AdvServices = device.NormalizeUUIDs(uuids)
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.AdvConnectable = c
	return b
}

func (b *AdvertisementBuilder) Build() device.Advertisement {
	return b.adv
}

// FakeRadio replays queued advertisements to each Scan call, then blocks
// until the scan context is cancelled (mirroring how a real scan runs until
// stopped).
type FakeRadio struct {
	mu   sync.Mutex
	advs []device.Advertisement

	// ScanStarted receives one signal per Scan invocation.
	ScanStarted chan struct{}
	scans       int
}

func NewFakeRadio(advs ...device.Advertisement) *FakeRadio {
	return &FakeRadio{advs: advs, ScanStarted: make(chan struct{}, 16)}
}

// Emit queues an advertisement for the next Scan call.
func (r *FakeRadio) Emit(adv device.Advertisement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advs = append(r.advs, adv)
}

// ScanCount reports how many scans have been started.
func (r *FakeRadio) ScanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

func (r *FakeRadio) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	r.mu.Lock()
	r.scans++
	advs := make([]device.Advertisement, len(r.advs))
	copy(advs, r.advs)
	r.mu.Unlock()

	select {
	case r.ScanStarted <- struct{}{}:
	default:
	}

	for _, adv := range advs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// FakeClient is a scriptable GATT client.
type FakeClient struct {
	mu sync.Mutex

	// ServicesResult is returned by DiscoverServices.
	ServicesResult []device.Service
	// DiscoverErr, SubscribeErr fail the respective phase.
	DiscoverErr  error
	SubscribeErr error
	// ReadResults maps "svc/char" to the payload returned by Read.
	ReadResults map[string][]byte
	ReadErr     error

	handlers     map[string]func([]byte)
	disconnected chan struct{}
	cancelled    bool
}

func NewFakeClient(services ...device.Service) *FakeClient {
	return &FakeClient{
		ServicesResult: services,
		ReadResults:    make(map[string][]byte),
		handlers:       make(map[string]func([]byte)),
		disconnected:   make(chan struct{}),
	}
}

func key(svc, char string) string {
	return device.NormalizeUUID(svc) + "/" + device.NormalizeUUID(char)
}

func (c *FakeClient) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	if c.DiscoverErr != nil {
		return nil, c.DiscoverErr
	}
	return c.ServicesResult, nil
}

func (c *FakeClient) Subscribe(svc, char string, handler func([]byte)) error {
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[key(svc, char)] = handler
	return nil
}

func (c *FakeClient) Read(ctx context.Context, svc, char string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	data, ok := c.ReadResults[key(svc, char)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{svc, char}}
	}
	return data, nil
}

func (c *FakeClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *FakeClient) CancelConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cancelled {
		c.cancelled = true
		close(c.disconnected)
	}
	return nil
}

// Notify pushes data into the handler registered for svc/char, as the
// peripheral would.
func (c *FakeClient) Notify(svc, char string, data []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[key(svc, char)]
	c.mu.Unlock()
	if ok {
		h(data)
	}
	return ok
}

// DropLink simulates a peripheral-initiated disconnect.
func (c *FakeClient) DropLink() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cancelled {
		c.cancelled = true
		close(c.disconnected)
	}
}

// Cancelled reports whether the hub tore the connection down.
func (c *FakeClient) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Subscribed reports whether a handler is registered for svc/char.
func (c *FakeClient) Subscribed(svc, char string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[key(svc, char)]
	return ok
}

// FakeDialer hands out scripted clients per address.
type FakeDialer struct {
	mu sync.Mutex

	// Clients maps address to the client Dial returns for it.
	Clients map[device.Address]*FakeClient
	// DialErr fails every Dial when set.
	DialErr error
	// DialDelay makes Dial wait before resolving, or until the context
	// expires, whichever comes first. Used to exercise timeout races.
	DialDelay time.Duration
	// IgnoreCtx makes Dial sleep the full DialDelay and return the client
	// even when the context has already expired, simulating a platform
	// connect callback that fires after the hub-side timeout.
	IgnoreCtx bool

	dials []device.Address
}

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{Clients: make(map[device.Address]*FakeClient)}
}

func (d *FakeDialer) Dial(ctx context.Context, addr device.Address) (device.Client, error) {
	d.mu.Lock()
	d.dials = append(d.dials, addr)
	delay := d.DialDelay
	ignoreCtx := d.IgnoreCtx
	err := d.DialErr
	client := d.Clients[addr]
	d.mu.Unlock()

	if delay > 0 {
		if ignoreCtx {
			time.Sleep(delay)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if !ignoreCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("no scripted client for %s", addr)
	}
	return client, nil
}

// DialCount reports how many Dial calls the address received.
func (d *FakeDialer) DialCount(addr device.Address) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, a := range d.dials {
		if a == addr {
			n++
		}
	}
	return n
}

package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// Transport is the go-ble backed Radio and Dialer. One Transport owns one
// platform adapter; the scan scheduler and the connection manager share it so
// that scanning and connecting are never attempted on separate adapters.
type Transport struct {
	logger    *logrus.Logger
	adapterID int

	mu  sync.Mutex
	dev ble.Device
}

// NewTransport creates a Transport bound to the given adapter ID (hciN on
// Linux, ignored on darwin). The platform device is created lazily on first
// use so that constructing the hub does not require radio access.
func NewTransport(logger *logrus.Logger, adapterID int) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger, adapterID: adapterID}
}

// DeviceFactory creates the platform ble.Device. Overridable in tests.
var DeviceFactory = newPlatformDevice

func (t *Transport) device() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory(t.adapterID)
	if err != nil {
		return nil, fmt.Errorf("create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)
	t.dev = dev
	return dev, nil
}

// Scan runs a platform scan until ctx is cancelled, forwarding each
// advertisement. Implements Radio.
func (t *Transport) Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error {
	dev, err := t.device()
	if err != nil {
		return err
	}
	return dev.Scan(ctx, allowDup, func(a ble.Advertisement) {
		handler(bleAdvertisement{a})
	})
}

// Dial connects to the peripheral at addr. Implements Dialer.
func (t *Transport) Dial(ctx context.Context, addr Address) (Client, error) {
	if _, err := t.device(); err != nil {
		return nil, err
	}
	cl, err := ble.Dial(ctx, ble.NewAddr(addr.Colonized()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &bleClient{client: cl, logger: t.logger}, nil
}

// bleAdvertisement adapts ble.Advertisement to the hub's Advertisement.
type bleAdvertisement struct {
	a ble.Advertisement
}

func (b bleAdvertisement) LocalName() string { return b.a.LocalName() }
func (b bleAdvertisement) Addr() string      { return b.a.Addr().String() }
func (b bleAdvertisement) RSSI() int         { return b.a.RSSI() }
func (b bleAdvertisement) Connectable() bool { return b.a.Connectable() }

func (b bleAdvertisement) Services() []string {
	uuids := b.a.Services()
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, NormalizeUUID(u.String()))
	}
	return out
}

// bleClient adapts ble.Client to the hub's Client. It caches discovered
// characteristic handles for Subscribe and Read; the cache is rebuilt on every
// DiscoverServices call and dropped on disconnect.
type bleClient struct {
	client ble.Client
	logger *logrus.Logger

	mu    sync.RWMutex
	chars map[string]*ble.Characteristic // "svc/char" normalized -> handle
}

func charKey(svc, char string) string {
	return NormalizeUUID(svc) + "/" + NormalizeUUID(char)
}

func (c *bleClient) DiscoverServices(ctx context.Context) ([]Service, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := c.client.DiscoverProfile(true)
		done <- result{p, err}
	}()

	var profile *ble.Profile
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("discover services: %w", ErrTimeout)
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("discover services: %w", r.err)
		}
		profile = r.profile
	}

	services := make([]Service, 0, len(profile.Services))
	chars := make(map[string]*ble.Characteristic)
	for _, bleSvc := range profile.Services {
		svcUUID := NormalizeUUID(bleSvc.UUID.String())
		svc := Service{UUID: svcUUID}
		for _, bleChar := range bleSvc.Characteristics {
			charUUID := NormalizeUUID(bleChar.UUID.String())
			svc.Characteristics = append(svc.Characteristics, Characteristic{
				UUID:     charUUID,
				Notifies: bleChar.Property&(ble.CharNotify|ble.CharIndicate) != 0,
				Readable: bleChar.Property&ble.CharRead != 0,
			})
			chars[svcUUID+"/"+charUUID] = bleChar
		}
		services = append(services, svc)
	}

	c.mu.Lock()
	c.chars = chars
	c.mu.Unlock()

	c.logger.WithField("services", len(services)).Debug("GATT discovery complete")
	return services, nil
}

func (c *bleClient) handle(svc, char string) (*ble.Characteristic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.chars == nil {
		return nil, ErrNotConnected
	}
	h, ok := c.chars[charKey(svc, char)]
	if !ok {
		return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{svc, char}}
	}
	return h, nil
}

func (c *bleClient) Subscribe(svc, char string, handler func([]byte)) error {
	h, err := c.handle(svc, char)
	if err != nil {
		return err
	}
	// Blood pressure measurements arrive via indication, not notification.
	indicate := h.Property&ble.CharNotify == 0 && h.Property&ble.CharIndicate != 0
	if err := c.client.Subscribe(h, indicate, func(data []byte) {
		handler(data)
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", char, err)
	}
	return nil
}

func (c *bleClient) Read(ctx context.Context, svc, char string) ([]byte, error) {
	h, err := c.handle(svc, char)
	if err != nil {
		return nil, err
	}
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := c.client.ReadCharacteristic(h)
		done <- result{data, err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("read %s: %w", char, ErrTimeout)
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("read %s: %w", char, r.err)
		}
		return r.data, nil
	}
}

func (c *bleClient) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

func (c *bleClient) CancelConnection() error {
	c.mu.Lock()
	c.chars = nil
	c.mu.Unlock()
	return c.client.CancelConnection()
}

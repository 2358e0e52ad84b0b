// Package device defines the transport-facing abstractions of the hub: how
// advertisements, connections, and GATT characteristics look to the rest of
// the system. The go-ble backed implementation lives in transport.go; tests
// substitute fakes through the same interfaces.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError reports a missing GATT resource on a connected peripheral.
type NotFoundError struct {
	Resource string // "service" or "characteristic"
	UUIDs    []string
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
	}
}

// Operation errors shared across the transport boundary.
var (
	ErrTimeout      = errors.New("timeout")
	ErrNotConnected = errors.New("not connected")
)

// Advertisement is a single received BLE advertisement.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
	Services() []string
}

// Radio is a platform BLE adapter capable of scanning for advertisements.
// Scan blocks until ctx is cancelled or the scan fails.
type Radio interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Dialer establishes GATT connections to peripherals by address.
type Dialer interface {
	Dial(ctx context.Context, addr Address) (Client, error)
}

// Characteristic describes a discovered GATT characteristic and its delivery
// capability. Notifies decides the subscribe-once path vs the scheduled-poll
// path for that characteristic.
type Characteristic struct {
	UUID     string
	Notifies bool
	Readable bool
}

// Service is a discovered GATT service with its characteristics.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// Characteristic looks up a characteristic within the service by UUID.
func (s Service) Characteristic(uuid string) (Characteristic, bool) {
	u := NormalizeUUID(uuid)
	for _, c := range s.Characteristics {
		if c.UUID == u {
			return c, true
		}
	}
	return Characteristic{}, false
}

// Client is a live GATT connection to one peripheral.
//
// Methods that hit the radio accept a context and honor its deadline.
// Disconnected is closed by the transport when the link drops, whether hub-
// or peripheral-initiated.
type Client interface {
	DiscoverServices(ctx context.Context) ([]Service, error)
	Subscribe(svc, char string, handler func(data []byte)) error
	Read(ctx context.Context, svc, char string) ([]byte, error)
	Disconnected() <-chan struct{}
	CancelConnection() error
}

// bluetoothBaseSuffix is the tail of the Bluetooth SIG base UUID,
// 0000xxxx-0000-1000-8000-00805F9B34FB, after dash removal.
const bluetoothBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to lowercase with dashes removed.
// SIG-assigned UUIDs expressed in full 128-bit base form are reduced to their
// 16-bit short form, matching how go-ble renders them, so lookups succeed
// regardless of which form the platform stack reported.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, bluetoothBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// FindService returns the service with the given UUID, or a NotFoundError.
func FindService(services []Service, uuid string) (Service, error) {
	u := NormalizeUUID(uuid)
	for _, s := range services {
		if s.UUID == u {
			return s, nil
		}
	}
	return Service{}, &NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// ReadWithTimeout wraps a characteristic read in an explicit deadline so a
// stalled platform stack surfaces as ErrTimeout instead of hanging the caller.
func ReadWithTimeout(client Client, svc, char string, d time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	data, err := client.Read(ctx, svc, char)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("read %s: %w", char, ErrTimeout)
	}
	return data, err
}

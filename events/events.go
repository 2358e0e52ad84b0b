// Package events is the hub's publish/subscribe fan-out. Connection status
// changes, decoded readings, and errors are published here; external
// consumers (storage writer, realtime broadcaster) subscribe and never touch
// the core directly.
package events

import (
	"time"

	"github.com/srg/vitalink/aggregate"
	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/profile"
)

// Status is a device connection status as surfaced to consumers.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Event is a tagged union over everything the hub publishes. The concrete
// types below are the only variants.
type Event interface {
	Topic() string
}

// ConnectionStatus reports a device entering connecting, connected, or
// disconnected.
type ConnectionStatus struct {
	Address device.Address
	Name    string
	Status  Status
}

// ConnectionError reports a recoverable connection-path failure.
type ConnectionError struct {
	Address device.Address
	Name    string
	Err     string
}

// BloodPressure carries one decoded cuff measurement.
type BloodPressure struct {
	Address device.Address
	Reading profile.BloodPressureReading
	At      time.Time
}

// SensorUpdate carries environmental and/or IMU data from a sensor. Nil
// fields were not part of this update.
type SensorUpdate struct {
	Address       device.Address
	Environmental *profile.EnvironmentalReading
	Imu           *profile.ImuSample
	At            time.Time
}

// ButtonPress carries a button edge event.
type ButtonPress struct {
	Address device.Address
	Pressed bool
	At      time.Time
}

// ActivityUpdated carries a freshly recomputed daily activity aggregate.
type ActivityUpdated struct {
	Activity aggregate.DailyActivity
	At       time.Time
}

func (ConnectionStatus) Topic() string { return "connection-status" }
func (ConnectionError) Topic() string  { return "connection-error" }
func (BloodPressure) Topic() string    { return "bp-data-received" }
func (SensorUpdate) Topic() string     { return "sensor-update" }
func (ButtonPress) Topic() string      { return "button-press" }
func (ActivityUpdated) Topic() string  { return "activityUpdated" }

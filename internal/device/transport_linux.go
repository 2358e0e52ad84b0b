//go:build linux

package device

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// newPlatformDevice opens the hciN adapter identified by id.
func newPlatformDevice(id int) (ble.Device, error) {
	return linux.NewDevice(ble.OptDeviceID(id))
}

//go:build darwin

package device

import (
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// newPlatformDevice creates the CoreBluetooth device. The adapter id is
// meaningless on darwin and ignored.
func newPlatformDevice(_ int) (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("Bluetooth is turned off - please enable Bluetooth and retry")
			}
			return nil, fmt.Errorf("Bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}

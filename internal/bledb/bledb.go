// Package bledb maps the GATT UUIDs handled by the hub to human-readable
// names for logs and the scan listing. Unknown UUIDs resolve to "".
package bledb

import "strings"

const baseSuffix = "00001000800000805f9b34fb"

// normalize lowercases, strips dashes, and reduces full base-UUID forms of
// SIG-assigned numbers to their 16-bit short form.
func normalize(uuid string) string {
	u := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, baseSuffix) {
		return u[4:8]
	}
	return u
}

var services = map[string]string{
	"1810": "Blood Pressure",
	"1814": "Running Speed and Cadence",
	"1815": "Automation IO",
	"181a": "Environmental Sensing",
	"ef680400968447759fbef82dd8f3c892": "Motion",
}

var characteristics = map[string]string{
	"2a35": "Blood Pressure Measurement",
	"2a53": "RSC Measurement",
	"2a56": "Digital",
	"2a6e": "Temperature",
	"2a6f": "Humidity",
	"2afb": "Illuminance",
	"ef680406968447759fbef82dd8f3c892": "Raw Accelerometer",
}

// LookupService returns the known name of a service UUID, or "".
func LookupService(uuid string) string {
	return services[normalize(uuid)]
}

// LookupCharacteristic returns the known name of a characteristic UUID, or "".
func LookupCharacteristic(uuid string) string {
	return characteristics[normalize(uuid)]
}

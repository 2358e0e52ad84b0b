package device

import (
	"fmt"
	"strings"
)

// Address is a canonical BLE device address: uppercase hex with no separators.
// All registry keys and event payloads use this form so that the same physical
// device always maps to the same entry regardless of how the platform stack
// formats addresses.
type Address string

// NormalizeAddress converts any common address rendering ("aa:bb:cc:dd:ee:ff",
// "AA-BB-CC-DD-EE-FF", "aabbccddeeff") to the canonical form.
func NormalizeAddress(s string) Address {
	r := strings.NewReplacer(":", "", "-", "", " ", "")
	return Address(strings.ToUpper(r.Replace(s)))
}

// ParseAddress normalizes and validates an address. macOS stacks report
// peripheral UUIDs instead of MACs, so any non-empty token is accepted; only
// empty input is rejected.
func ParseAddress(s string) (Address, error) {
	a := NormalizeAddress(s)
	if a == "" {
		return "", fmt.Errorf("empty device address")
	}
	return a, nil
}

// Colonized renders the address back in AA:BB:CC:DD:EE:FF form for display.
// Addresses that are not 12 hex digits (e.g. darwin peripheral UUIDs) are
// returned unchanged.
func (a Address) Colonized() string {
	s := string(a)
	if len(s) != 12 {
		return s
	}
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return strings.Join(parts, ":")
}

func (a Address) String() string { return string(a) }

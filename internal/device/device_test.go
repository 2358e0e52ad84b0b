package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Address
	}{
		{"colons", "aa:bb:cc:dd:ee:ff", "AABBCCDDEEFF"},
		{"dashes", "AA-BB-CC-DD-EE-FF", "AABBCCDDEEFF"},
		{"bare lowercase", "aabbccddeeff", "AABBCCDDEEFF"},
		{"already canonical", "AABBCCDDEEFF", "AABBCCDDEEFF"},
		{"darwin peripheral uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "6BA7B8109DAD11D180B400C04FD430C8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAddress(tt.in))
		})
	}
}

func TestParseAddressRejectsEmpty(t *testing.T) {
	_, err := ParseAddress("")
	assert.Error(t, err)
	_, err = ParseAddress(" - ")
	assert.Error(t, err)

	a, err := ParseAddress("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, Address("AABBCCDDEEFF"), a)
}

func TestColonized(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", Address("AABBCCDDEEFF").Colonized())
	// Non-MAC identifiers pass through untouched.
	uuid := Address("6BA7B8109DAD11D180B400C04FD430C8")
	assert.Equal(t, string(uuid), uuid.Colonized())
}

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short form", "1810", "1810"},
		{"short uppercase", "2A35", "2a35"},
		{"sig base form reduces to short", "00001810-0000-1000-8000-00805F9B34FB", "1810"},
		{"vendor 128-bit stays long", "EF680400-9684-4775-9FBE-F82DD8F3C892", "ef680400968447759fbef82dd8f3c892"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUUID(tt.in))
		})
	}
}

func TestFindService(t *testing.T) {
	services := []Service{
		{UUID: "1810", Characteristics: []Characteristic{{UUID: "2a35", Notifies: true}}},
		{UUID: "181a"},
	}

	svc, err := FindService(services, "00001810-0000-1000-8000-00805F9B34FB")
	require.NoError(t, err)
	assert.Equal(t, "1810", svc.UUID)

	_, ok := svc.Characteristic("2A35")
	assert.True(t, ok)
	_, ok = svc.Characteristic("2a53")
	assert.False(t, ok)

	_, err = FindService(services, "1814")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "service", nf.Resource)
}

package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupService(t *testing.T) {
	assert.Equal(t, "Blood Pressure", LookupService("1810"))
	assert.Equal(t, "Blood Pressure", LookupService("00001810-0000-1000-8000-00805F9B34FB"))
	assert.Equal(t, "Motion", LookupService("EF680400-9684-4775-9FBE-F82DD8F3C892"))
	assert.Empty(t, LookupService("180d"))
}

func TestLookupCharacteristic(t *testing.T) {
	assert.Equal(t, "Temperature", LookupCharacteristic("2A6E"))
	assert.Equal(t, "RSC Measurement", LookupCharacteristic("2a53"))
	assert.Empty(t, LookupCharacteristic("2a37"))
}

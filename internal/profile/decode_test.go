package profile_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/vitalink/internal/profile"
)

func bpPayload(flags byte, systolic, diastolic uint16) []byte {
	buf := make([]byte, 5)
	buf[0] = flags
	binary.LittleEndian.PutUint16(buf[1:3], systolic)
	binary.LittleEndian.PutUint16(buf[3:5], diastolic)
	return buf
}

func TestDecodeBloodPressure(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		want      profile.BloodPressureReading
		wantShort bool
	}{
		{
			name: "flag bit 0 clear decodes mmHg",
			data: bpPayload(0x00, 120, 80),
			want: profile.BloodPressureReading{Systolic: 120, Diastolic: 80, Unit: profile.UnitMmHg},
		},
		{
			name: "flag bit 0 set decodes kPa",
			data: bpPayload(0x01, 16, 10),
			want: profile.BloodPressureReading{Systolic: 16, Diastolic: 10, Unit: profile.UnitKPa},
		},
		{
			name: "values taken verbatim from little-endian fields",
			data: bpPayload(0x00, 0x1234, 0xFF01),
			want: profile.BloodPressureReading{Systolic: 0x1234, Diastolic: 0xFF01, Unit: profile.UnitMmHg},
		},
		{
			name: "trailing optional fields ignored",
			data: append(bpPayload(0x02, 118, 76), 0xDE, 0xAD, 0xBE, 0xEF),
			want: profile.BloodPressureReading{Systolic: 118, Diastolic: 76, Unit: profile.UnitMmHg},
		},
		{
			name:      "short buffer rejected",
			data:      []byte{0x00, 0x78, 0x00, 0x50},
			wantShort: true,
		},
		{
			name:      "empty buffer rejected",
			data:      nil,
			wantShort: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := profile.DecodeBloodPressure(tt.data)
			if tt.wantShort {
				var derr *profile.DecodeError
				require.ErrorAs(t, err, &derr)
				assert.Equal(t, len(tt.data), derr.Got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeTemperatureRoundTrip(t *testing.T) {
	// decode(encode(centi)) == centi/100 over the fixed-point scale factor.
	for _, centi := range []int16{-4000, -1, 0, 1, 2251, 32767, -32768} {
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(centi))
		got, err := profile.DecodeTemperature(buf)
		require.NoError(t, err)
		assert.InDelta(t, float64(centi)/100, got, 1e-9, "centi=%d", centi)
	}
}

func TestDecodeEnvironmentalValues(t *testing.T) {
	t.Run("humidity", func(t *testing.T) {
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, 4521)
		got, err := profile.DecodeHumidity(buf)
		require.NoError(t, err)
		assert.InDelta(t, 45.21, got, 1e-9)
	})

	t.Run("illuminance", func(t *testing.T) {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, 123456)
		got, err := profile.DecodeIlluminance(buf)
		require.NoError(t, err)
		assert.InDelta(t, 1234.56, got, 1e-9)
	})

	t.Run("short buffers rejected", func(t *testing.T) {
		_, err := profile.DecodeHumidity([]byte{0x01})
		assert.Error(t, err)
		_, err = profile.DecodeIlluminance([]byte{0x01, 0x02, 0x03})
		assert.Error(t, err)
		_, err = profile.DecodeTemperature(nil)
		assert.Error(t, err)
	})
}

func TestDecodeImuSample(t *testing.T) {
	buf := make([]byte, 6)
	for i, milli := range []int16{-1000, 500, 1024} {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(milli))
	}

	got, err := profile.DecodeImuSample(buf)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, got.X, 1e-9)
	assert.InDelta(t, 0.5, got.Y, 1e-9)
	assert.InDelta(t, 1.024, got.Z, 1e-9)

	_, err = profile.DecodeImuSample(buf[:5])
	var derr *profile.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 6, derr.Need)
}

func TestDecodeButton(t *testing.T) {
	pressed, err := profile.DecodeButton([]byte{0x01})
	require.NoError(t, err)
	assert.True(t, pressed.Pressed)

	released, err := profile.DecodeButton([]byte{0x00})
	require.NoError(t, err)
	assert.False(t, released.Pressed)

	_, err = profile.DecodeButton(nil)
	assert.Error(t, err)
}

// rscPayload lays out flags, speed (uint16 LE at bytes 1-2), and flagged
// fields from offset 3. Cadence is the byte at offset 2, which is also the
// speed high byte.
func rscPayload(flags byte, speed uint16, stride *uint16, distance *uint32) []byte {
	buf := []byte{flags, 0, 0}
	binary.LittleEndian.PutUint16(buf[1:3], speed)
	if stride != nil {
		s := make([]byte, 2)
		binary.LittleEndian.PutUint16(s, *stride)
		buf = append(buf, s...)
	}
	if distance != nil {
		d := make([]byte, 4)
		binary.LittleEndian.PutUint32(d, *distance)
		buf = append(buf, d...)
	}
	return buf
}

func TestDecodeRSC(t *testing.T) {
	stride := uint16(110)
	distance := uint32(25000) // 2500.0 m

	t.Run("flags 0x03 at nine bytes decodes all fields", func(t *testing.T) {
		data := rscPayload(0x03, 0x0280, &stride, &distance)
		require.Len(t, data, 9)
		got, err := profile.DecodeRSC(data)
		require.NoError(t, err)
		assert.InDelta(t, 2.5, got.SpeedMs, 1e-9) // 0x0280/256
		assert.Equal(t, 0x02, got.CadenceSpm)     // speed high byte
		require.NotNil(t, got.StrideCm)
		assert.InDelta(t, 110, *got.StrideCm, 1e-9)
		require.NotNil(t, got.DistanceM)
		assert.InDelta(t, 2500, *got.DistanceM, 1e-9)
	})

	t.Run("flags 0x00 at three bytes leaves optional fields nil", func(t *testing.T) {
		data := rscPayload(0x00, 0xA040, nil, nil)
		require.Len(t, data, 3)
		got, err := profile.DecodeRSC(data)
		require.NoError(t, err)
		assert.InDelta(t, float64(0xA040)/256, got.SpeedMs, 1e-9)
		assert.Equal(t, 0xA0, got.CadenceSpm)
		assert.Nil(t, got.StrideCm)
		assert.Nil(t, got.DistanceM)
	})

	t.Run("distance only starts at offset 3", func(t *testing.T) {
		got, err := profile.DecodeRSC(rscPayload(0x02, 0x0100, nil, &distance))
		require.NoError(t, err)
		assert.Nil(t, got.StrideCm)
		require.NotNil(t, got.DistanceM)
		assert.InDelta(t, 2500, *got.DistanceM, 1e-9)
	})

	t.Run("flags promise more than the buffer carries", func(t *testing.T) {
		// Stride+distance flagged but only stride bytes present.
		data := rscPayload(0x03, 0x0280, &stride, nil)
		_, err := profile.DecodeRSC(data)
		var derr *profile.DecodeError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, 9, derr.Need)
	})

	t.Run("short buffer rejected", func(t *testing.T) {
		_, err := profile.DecodeRSC([]byte{0x00, 0x01})
		assert.Error(t, err)
	})
}

func TestMilesFromMeters(t *testing.T) {
	assert.InDelta(t, 0.621371, profile.MilesFromMeters(1000), 1e-9)
	assert.Zero(t, profile.MilesFromMeters(0))
}

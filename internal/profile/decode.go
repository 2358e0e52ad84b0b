package profile

import (
	"encoding/binary"
	"fmt"
)

// DecodeError reports a payload shorter than the minimum required by the
// flags it carries. Decode errors are recoverable per-reading: the caller
// drops the reading and the connection stays up.
type DecodeError struct {
	What string
	Need int
	Got  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: buffer too short: need %d bytes, got %d", e.What, e.Need, e.Got)
}

func short(what string, need, got int) error {
	return &DecodeError{What: what, Need: need, Got: got}
}

// Blood Pressure Measurement (0x2A35) flag bits.
const (
	bpFlagUnitKPa = 1 << 0
)

// DecodeBloodPressure decodes a Blood Pressure Measurement payload: a flags
// byte followed by systolic and diastolic as 16-bit little-endian values in
// the unit selected by flag bit 0. Optional trailing fields (timestamp, pulse
// rate) are ignored.
func DecodeBloodPressure(data []byte) (BloodPressureReading, error) {
	if len(data) < 5 {
		return BloodPressureReading{}, short("blood pressure measurement", 5, len(data))
	}
	unit := UnitMmHg
	if data[0]&bpFlagUnitKPa != 0 {
		unit = UnitKPa
	}
	return BloodPressureReading{
		Systolic:  float64(binary.LittleEndian.Uint16(data[1:3])),
		Diastolic: float64(binary.LittleEndian.Uint16(data[3:5])),
		Unit:      unit,
	}, nil
}

// DecodeTemperature decodes an Environmental Sensing temperature value:
// signed 16-bit little-endian centidegrees Celsius.
func DecodeTemperature(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, short("temperature", 2, len(data))
	}
	return float64(int16(binary.LittleEndian.Uint16(data))) / 100, nil
}

// DecodeHumidity decodes a relative humidity value: unsigned 16-bit
// little-endian hundredths of a percent.
func DecodeHumidity(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, short("humidity", 2, len(data))
	}
	return float64(binary.LittleEndian.Uint16(data)) / 100, nil
}

// DecodeIlluminance decodes an ambient light value: unsigned 32-bit
// little-endian hundredths of a lux.
func DecodeIlluminance(data []byte) (float64, error) {
	if len(data) < 4 {
		return 0, short("illuminance", 4, len(data))
	}
	return float64(binary.LittleEndian.Uint32(data)) / 100, nil
}

// DecodeImuSample decodes three consecutive signed 16-bit little-endian
// acceleration components in milli-g.
func DecodeImuSample(data []byte) (ImuSample, error) {
	if len(data) < 6 {
		return ImuSample{}, short("imu sample", 6, len(data))
	}
	return ImuSample{
		X: float64(int16(binary.LittleEndian.Uint16(data[0:2]))) / 1000,
		Y: float64(int16(binary.LittleEndian.Uint16(data[2:4]))) / 1000,
		Z: float64(int16(binary.LittleEndian.Uint16(data[4:6]))) / 1000,
	}, nil
}

// DecodeButton decodes a digital state byte: 0 released, 1 pressed.
func DecodeButton(data []byte) (ButtonEvent, error) {
	if len(data) < 1 {
		return ButtonEvent{}, short("button state", 1, len(data))
	}
	return ButtonEvent{Pressed: data[0] != 0}, nil
}

// RSC Measurement (0x2A53) flag bits.
const (
	rscFlagStridePresent   = 1 << 0
	rscFlagDistancePresent = 1 << 1
)

// DecodeRSC decodes an RSC Measurement payload. Instantaneous speed (uint16
// LE at bytes 1-2, 1/256 m/s) and cadence (the byte at offset 2, steps/min)
// are always present, so the mandatory part is three bytes and cadence
// shares the speed high byte. Stride length (uint16 LE, cm) and total
// distance (uint32 LE, 1/10 m) follow from offset 3 only when their flag
// bits are set, consumed in bit order rather than at fixed positions.
func DecodeRSC(data []byte) (CadenceReading, error) {
	if len(data) < 3 {
		return CadenceReading{}, short("rsc measurement", 3, len(data))
	}
	flags := data[0]
	r := CadenceReading{
		SpeedMs:    float64(binary.LittleEndian.Uint16(data[1:3])) / 256,
		CadenceSpm: int(data[2]),
	}
	offset := 3
	if flags&rscFlagStridePresent != 0 {
		if len(data) < offset+2 {
			return CadenceReading{}, short("rsc measurement", offset+2, len(data))
		}
		stride := float64(binary.LittleEndian.Uint16(data[offset : offset+2]))
		r.StrideCm = &stride
		offset += 2
	}
	if flags&rscFlagDistancePresent != 0 {
		if len(data) < offset+4 {
			return CadenceReading{}, short("rsc measurement", offset+4, len(data))
		}
		dist := float64(binary.LittleEndian.Uint32(data[offset:offset+4])) / 10
		r.DistanceM = &dist
	}
	return r, nil
}

package profile

// Reading is a decoded, immutable measurement from a peripheral. The concrete
// types below are the only implementations.
type Reading interface {
	isReading()
}

// PressureUnit is the unit a blood pressure measurement was reported in.
type PressureUnit string

const (
	UnitMmHg PressureUnit = "mmHg"
	UnitKPa  PressureUnit = "kPa"
)

// BloodPressureReading is one cuff measurement.
type BloodPressureReading struct {
	Systolic  float64
	Diastolic float64
	Unit      PressureUnit
}

// EnvironmentalReading is one poll cycle over the environmental sensing
// characteristics.
type EnvironmentalReading struct {
	TemperatureC float64
	HumidityPct  float64
	LightLux     float64
}

// ImuSample is one 3-axis acceleration sample, in g.
type ImuSample struct {
	X, Y, Z float64
}

// ButtonEvent is a discrete press or release edge.
type ButtonEvent struct {
	Pressed bool
}

// CadenceReading is one RSC measurement. StrideCm and DistanceM are nil when
// the corresponding flag bits were absent from the payload.
type CadenceReading struct {
	SpeedMs    float64
	CadenceSpm int
	StrideCm   *float64
	DistanceM  *float64
}

func (BloodPressureReading) isReading() {}
func (EnvironmentalReading) isReading() {}
func (ImuSample) isReading()            {}
func (ButtonEvent) isReading()          {}
func (CadenceReading) isReading()       {}

// MetersPerMile converts meters to miles. Fixed so that aggregate output is
// comparable across hub versions.
const MetersPerMile = 0.000621371

// MilesFromMeters applies the fixed meters→miles conversion.
func MilesFromMeters(m float64) float64 {
	return m * MetersPerMile
}

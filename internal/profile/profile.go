// Package profile describes the GATT device profiles the hub speaks (blood
// pressure cuffs, environmental/IMU sensors, fitness wearables) and decodes
// their characteristic payloads into typed readings.
package profile

import (
	"fmt"
	"time"
)

// Kind identifies a supported device profile.
type Kind string

const (
	BloodPressure Kind = "blood_pressure"
	Environmental Kind = "environmental"
	FitnessBand   Kind = "fitness_band"
)

// ParseKind validates a profile name from configuration or registration calls.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case BloodPressure, Environmental, FitnessBand:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown device profile %q", s)
}

// GATT UUIDs, in the normalized short form used across the hub.
const (
	SvcBloodPressure            = "1810"
	ChrBloodPressureMeasurement = "2a35"

	SvcEnvironmental = "181a"
	ChrTemperature   = "2a6e"
	ChrHumidity      = "2a6f"
	ChrIlluminance   = "2afb"

	SvcAutomationIO = "1815"
	ChrDigital      = "2a56"

	// Vendor motion service carrying raw accelerometer samples.
	SvcMotion = "ef680400968447759fbef82dd8f3c892"
	ChrAccel  = "ef680406968447759fbef82dd8f3c892"

	SvcRunningSpeedCadence = "1814"
	ChrRSCMeasurement      = "2a53"
)

// CharacteristicPlan names one characteristic the hub consumes and how its
// values are delivered: Notifies selects the subscribe-once path, otherwise
// the characteristic is polled on the poll interval.
type CharacteristicPlan struct {
	Service  string
	UUID     string
	Notifies bool
}

// Plan returns the characteristics the hub wires up for a profile, in the
// order they are brought up during the Subscribing phase.
func Plan(k Kind) []CharacteristicPlan {
	switch k {
	case BloodPressure:
		return []CharacteristicPlan{
			{Service: SvcBloodPressure, UUID: ChrBloodPressureMeasurement, Notifies: true},
		}
	case Environmental:
		return []CharacteristicPlan{
			{Service: SvcMotion, UUID: ChrAccel, Notifies: true},
			{Service: SvcAutomationIO, UUID: ChrDigital, Notifies: true},
			{Service: SvcEnvironmental, UUID: ChrTemperature, Notifies: false},
			{Service: SvcEnvironmental, UUID: ChrHumidity, Notifies: false},
			{Service: SvcEnvironmental, UUID: ChrIlluminance, Notifies: false},
		}
	case FitnessBand:
		return []CharacteristicPlan{
			{Service: SvcRunningSpeedCadence, UUID: ChrRSCMeasurement, Notifies: true},
		}
	}
	return nil
}

// ConnectTimeout bounds the platform connect call per profile. Blood pressure
// cuffs wake their radio on demand and need the longer window.
func ConnectTimeout(k Kind) time.Duration {
	if k == BloodPressure {
		return 15 * time.Second
	}
	return 10 * time.Second
}

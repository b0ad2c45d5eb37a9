// Package telemetry provides sensor reading types and payload decoding.
package telemetry

import (
	"encoding/json"
	"strings"
	"time"
)

// SensorType is the closed set of measurement categories the pipeline knows.
// Adding a category means adding a constant here plus a rule set in the
// analyzer; unknown device types fall back to SensorGeneric.
type SensorType string

const (
	SensorGNSS     SensorType = "gnss"     // displacement / position
	SensorRain     SensorType = "rain"     // rainfall accumulation and intensity
	SensorWater    SensorType = "water"    // water level
	SensorInertial SensorType = "inertial" // tilt / acceleration
	SensorGeneric  SensorType = "generic"  // anything else
)

// ParseSensorType normalises a device type string from the configuration
// store. Legacy configurations use "imu" for inertial units.
func ParseSensorType(s string) SensorType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gnss", "gps":
		return SensorGNSS
	case "rain", "rainfall":
		return SensorRain
	case "water", "water_level":
		return SensorWater
	case "imu", "inertial", "tilt":
		return SensorInertial
	default:
		return SensorGeneric
	}
}

// Reading is one measurement routed to a station/device. Append-only and
// immutable once built; Timestamp is the device's own clock, not arrival
// time. The numeric columns are sensor-specific and nullable:
//
//	value_1: water_level / rainfall_mm / tilt_deg
//	value_2: intensity_mm_h / speed_2d
//	value_3: total_displacement_mm
type Reading struct {
	StationID  int64           `json:"station_id"`
	DeviceID   int64           `json:"device_id"`
	SensorType SensorType      `json:"sensor_type"`
	Timestamp  time.Time       `json:"timestamp"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
	Value1     *float64        `json:"value_1"`
	Value2     *float64        `json:"value_2"`
	Value3     *float64        `json:"value_3"`
}

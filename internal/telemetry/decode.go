package telemetry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Decode builds a Reading from a raw broker payload. Decoding is
// best-effort: a field that is missing or not a number leaves the
// corresponding value nil, it never fails the whole message. A payload that
// is not a JSON object at all still produces a Reading carrying the raw
// bytes, so the analyzer and writer see every routed message.
func Decode(stationID, deviceID int64, sensorType SensorType, payload []byte, arrival time.Time) Reading {
	r := Reading{
		StationID:  stationID,
		DeviceID:   deviceID,
		SensorType: sensorType,
		Timestamp:  arrival.UTC(),
		RawPayload: json.RawMessage(payload),
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return r
	}

	if ts, ok := epochField(fields, "ts", "timestamp"); ok {
		r.Timestamp = ts
	}

	switch sensorType {
	case SensorRain:
		r.Value1 = numField(fields, "rainfall_mm", "rainfall")
		r.Value2 = numField(fields, "intensity_mm_h", "intensity")
	case SensorWater:
		r.Value1 = numField(fields, "water_level", "level")
	case SensorGNSS:
		r.Value2 = numField(fields, "speed_2d", "velocity_mm_day")
		r.Value3 = numField(fields, "total_displacement_mm", "displacement")
	case SensorInertial:
		r.Value1 = numField(fields, "tilt_deg", "tilt")
		r.Value2 = numField(fields, "accel_mg", "acceleration")
	default:
		r.Value1 = numField(fields, "value")
	}

	return r
}

// numField returns the first key that holds a usable number. Devices in the
// field report numbers both as JSON numbers and as quoted strings.
func numField(fields map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			f := t
			return &f
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// epochField reads a device timestamp given in epoch seconds.
func epochField(fields map[string]any, keys ...string) (time.Time, bool) {
	sec := numField(fields, keys...)
	if sec == nil || *sec <= 0 {
		return time.Time{}, false
	}
	whole := int64(*sec)
	frac := *sec - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second))).UTC(), true
}

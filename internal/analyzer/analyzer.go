// Package analyzer evaluates sensor readings against threshold rules and
// emits alerts. Rules are a closed switch over the sensor type, so adding a
// sensor category is a compile-time-checked extension rather than a runtime
// lookup.
package analyzer

import (
	"fmt"
	"sync"

	"slopewatch/internal/storage"
	"slopewatch/internal/telemetry"
)

// windowCap bounds the per-key history used by rate-of-change rules.
const windowCap = 16

// Analyzer holds the thresholds and the small rolling windows. Evaluation
// is stateless per call except for the window-backed rules.
type Analyzer struct {
	th Thresholds

	mu      sync.Mutex
	windows map[string]*window
}

// New creates an analyzer with the given thresholds.
func New(th Thresholds) *Analyzer {
	return &Analyzer{
		th:      th,
		windows: make(map[string]*window),
	}
}

// Evaluate applies the rules for the reading's sensor type and returns any
// alerts raised. Every rule may fire independently; each alert carries the
// sensor type as its category and the reading's own timestamp. Evaluate
// never fails: a reading with missing values simply matches no rule.
func (a *Analyzer) Evaluate(r telemetry.Reading) []storage.Alert {
	var alerts []storage.Alert

	switch r.SensorType {
	case telemetry.SensorRain:
		alerts = a.evaluateRain(r, alerts)
	case telemetry.SensorWater:
		alerts = a.evaluateWater(r, alerts)
	case telemetry.SensorGNSS:
		alerts = a.evaluateGNSS(r, alerts)
	case telemetry.SensorInertial:
		alerts = a.evaluateInertial(r, alerts)
	case telemetry.SensorGeneric:
		// No rules for uncategorised sensors.
	}

	return alerts
}

func (a *Analyzer) evaluateRain(r telemetry.Reading, alerts []storage.Alert) []storage.Alert {
	if r.Value2 != nil {
		if level, ok := tier(*r.Value2, a.th.RainIntensityWarn, a.th.RainIntensityCrit); ok {
			alerts = append(alerts, a.alert(r, level,
				fmt.Sprintf("rainfall intensity %.1f mm/h over threshold", *r.Value2)))
		}
	}

	// 24h accumulation needs history: sum the window of rainfall totals.
	if r.Value1 != nil {
		sum := a.pushAndSum(r, *r.Value1)
		if level, ok := tier(sum, a.th.RainAccumWarn, a.th.RainAccumCrit); ok {
			alerts = append(alerts, a.alert(r, level,
				fmt.Sprintf("24h rainfall accumulation %.1f mm over threshold", sum)))
		}
	}
	return alerts
}

func (a *Analyzer) evaluateWater(r telemetry.Reading, alerts []storage.Alert) []storage.Alert {
	if r.Value1 == nil {
		return alerts
	}
	if level, ok := tier(*r.Value1, a.th.WaterLevelWarn, a.th.WaterLevelCrit); ok {
		alerts = append(alerts, a.alert(r, level,
			fmt.Sprintf("water level %.2f m over threshold", *r.Value1)))
	}
	return alerts
}

func (a *Analyzer) evaluateGNSS(r telemetry.Reading, alerts []storage.Alert) []storage.Alert {
	if r.Value3 != nil {
		if level, ok := tier(*r.Value3, a.th.GNSSDisplacementWarn, a.th.GNSSDisplacementCrit); ok {
			alerts = append(alerts, a.alert(r, level,
				fmt.Sprintf("total displacement %.1f mm over threshold", *r.Value3)))
		}

		// Displacement velocity over the recent window, in mm/day.
		if v, ok := a.pushAndRate(r, *r.Value3); ok {
			if level, ok := tier(v, a.th.GNSSVelocityWarn, a.th.GNSSVelocityCrit); ok {
				alerts = append(alerts, a.alert(r, level,
					fmt.Sprintf("displacement velocity %.1f mm/day over threshold", v)))
			}
		}
	}
	return alerts
}

func (a *Analyzer) evaluateInertial(r telemetry.Reading, alerts []storage.Alert) []storage.Alert {
	if r.Value1 == nil {
		return alerts
	}
	if level, ok := tier(*r.Value1, a.th.TiltWarn, a.th.TiltCrit); ok {
		alerts = append(alerts, a.alert(r, level,
			fmt.Sprintf("tilt %.2f deg over threshold", *r.Value1)))
	}
	return alerts
}

func (a *Analyzer) alert(r telemetry.Reading, level, message string) storage.Alert {
	return storage.Alert{
		StationID: r.StationID,
		Level:     level,
		Category:  string(r.SensorType),
		Message:   message,
		Timestamp: r.Timestamp,
	}
}

// tier maps a value onto the WARNING/CRITICAL tiers. Thresholds of 0
// disable the rule.
func tier(v, warn, crit float64) (string, bool) {
	switch {
	case crit > 0 && v >= crit:
		return storage.LevelCritical, true
	case warn > 0 && v >= warn:
		return storage.LevelWarning, true
	default:
		return "", false
	}
}

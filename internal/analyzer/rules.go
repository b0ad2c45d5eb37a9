package analyzer

import (
	"fmt"
	"time"

	"slopewatch/internal/telemetry"
)

// Thresholds configures the rule tiers. A zero threshold disables that
// tier. Units: intensity mm/h, accumulation mm/24h, water level metres,
// displacement mm, velocity mm/day, tilt degrees.
type Thresholds struct {
	RainIntensityWarn float64
	RainIntensityCrit float64
	RainAccumWarn     float64
	RainAccumCrit     float64

	WaterLevelWarn float64
	WaterLevelCrit float64

	GNSSDisplacementWarn float64
	GNSSDisplacementCrit float64
	GNSSVelocityWarn     float64
	GNSSVelocityCrit     float64

	TiltWarn float64
	TiltCrit float64
}

// DefaultThresholds returns the stock rule tiers.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RainIntensityWarn: 20,
		RainIntensityCrit: 50,
		RainAccumWarn:     100,
		RainAccumCrit:     200,

		WaterLevelWarn: 3.0,
		WaterLevelCrit: 4.5,

		GNSSDisplacementWarn: 100,
		GNSSDisplacementCrit: 250,
		GNSSVelocityWarn:     10,
		GNSSVelocityCrit:     50,

		TiltWarn: 2.0,
		TiltCrit: 5.0,
	}
}

type point struct {
	ts time.Time
	v  float64
}

// window is a bounded per-(station, sensor type) history, oldest evicted
// first.
type window struct {
	points []point
}

func (w *window) push(p point) {
	if len(w.points) >= windowCap {
		copy(w.points, w.points[1:])
		w.points = w.points[:len(w.points)-1]
	}
	w.points = append(w.points, p)
}

func (a *Analyzer) windowFor(r telemetry.Reading) *window {
	key := fmt.Sprintf("%d/%s", r.StationID, r.SensorType)
	w, ok := a.windows[key]
	if !ok {
		w = &window{}
		a.windows[key] = w
	}
	return w
}

// pushAndSum records a sample and returns the sum of window samples within
// the last 24 hours of the reading's timestamp.
func (a *Analyzer) pushAndSum(r telemetry.Reading, v float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.windowFor(r)
	w.push(point{ts: r.Timestamp, v: v})

	cutoff := r.Timestamp.Add(-24 * time.Hour)
	var sum float64
	for _, p := range w.points {
		if !p.ts.Before(cutoff) {
			sum += p.v
		}
	}
	return sum
}

// pushAndRate records a sample and returns the rate of change across the
// window in units per day. Needs at least two samples spread over time.
func (a *Analyzer) pushAndRate(r telemetry.Reading, v float64) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.windowFor(r)
	w.push(point{ts: r.Timestamp, v: v})

	if len(w.points) < 2 {
		return 0, false
	}
	first, last := w.points[0], w.points[len(w.points)-1]
	days := last.ts.Sub(first.ts).Hours() / 24
	if days <= 0 {
		return 0, false
	}
	return (last.v - first.v) / days, true
}

// Package throttle rate-limits persistence per station and sensor type.
package throttle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"slopewatch/internal/telemetry"
)

// Gate decides whether a reading is written to durable storage. Each
// (station, sensor type) pair owns one timestamp that is advanced with a
// compare-and-swap, so unrelated stations never contend and no global lock
// exists. State is process-local: a restart allows one early write, which
// is acceptable.
type Gate struct {
	intervals map[telemetry.SensorType]time.Duration
	fallback  time.Duration

	// last maps "stationID/sensorType" to *atomic.Int64 holding the unix
	// nanoseconds of the last accepted reading (0 = never).
	last sync.Map
}

// New creates a gate. Sensor types missing from intervals use fallback.
func New(intervals map[telemetry.SensorType]time.Duration, fallback time.Duration) *Gate {
	g := &Gate{
		intervals: make(map[telemetry.SensorType]time.Duration, len(intervals)),
		fallback:  fallback,
	}
	for k, v := range intervals {
		g.intervals[k] = v
	}
	return g
}

// Interval returns the minimum persistence gap for a sensor type.
func (g *Gate) Interval(t telemetry.SensorType) time.Duration {
	if iv, ok := g.intervals[t]; ok {
		return iv
	}
	return g.fallback
}

// Allow reports whether a reading with the given timestamp may be persisted
// and, if so, advances the per-key state. A reading is accepted iff its
// timestamp is at least one interval past the last accepted one. Concurrent
// callers for the same key are linearized by the CAS loop: exactly one of
// two simultaneous equal-timestamp readings wins.
func (g *Gate) Allow(stationID int64, t telemetry.SensorType, ts time.Time) bool {
	key := fmt.Sprintf("%d/%s", stationID, t)
	v, _ := g.last.LoadOrStore(key, new(atomic.Int64))
	last := v.(*atomic.Int64)
	interval := g.Interval(t).Nanoseconds()
	nanos := ts.UnixNano()

	for {
		prev := last.Load()
		if prev != 0 && nanos-prev < interval {
			return false
		}
		if last.CompareAndSwap(prev, nanos) {
			return true
		}
	}
}

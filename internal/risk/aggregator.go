// Package risk condenses a station's unresolved alerts into a single
// ordinal risk level for operators.
package risk

import (
	"context"
	"log"
	"sync"

	"slopewatch/internal/storage"
)

// Risk levels, lowest to highest.
const (
	LevelLow     = "LOW"
	LevelMedium  = "MEDIUM"
	LevelHigh    = "HIGH"
	LevelExtreme = "EXTREME"
)

// Classify maps unresolved alert counts onto a risk level. The mapping
// depends only on the counts, never on alert order or age.
func Classify(critical, warning int) string {
	switch {
	case critical >= 2:
		return LevelExtreme
	case critical == 1 || warning >= 3:
		return LevelHigh
	case warning >= 1:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Aggregator computes station risk from the alert store and remembers the
// last level per station so transitions can be detected.
type Aggregator struct {
	alerts storage.AlertStore

	mu   sync.Mutex
	last map[int64]string
}

func New(alerts storage.AlertStore) *Aggregator {
	return &Aggregator{
		alerts: alerts,
		last:   make(map[int64]string),
	}
}

// For returns the station's current risk level. A store failure degrades to
// LOW rather than surfacing an error to callers.
func (a *Aggregator) For(ctx context.Context, stationID int64) string {
	counts, err := a.alerts.UnresolvedCounts(ctx, stationID)
	if err != nil {
		log.Printf("risk: counting alerts for station %d: %v", stationID, err)
		return LevelLow
	}
	return Classify(counts.Critical, counts.Warning)
}

// Observe records the station's current level and reports whether it changed
// since the previous observation. The first observation of a station counts
// as a change only if the level is not LOW.
func (a *Aggregator) Observe(stationID int64, level string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev, seen := a.last[stationID]
	a.last[stationID] = level
	if !seen {
		return level != LevelLow
	}
	return prev != level
}

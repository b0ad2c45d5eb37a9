package risk

import (
	"context"
	"errors"
	"testing"

	"slopewatch/internal/storage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		critical int
		warning  int
		want     string
	}{
		{0, 0, LevelLow},
		{0, 1, LevelMedium},
		{0, 2, LevelMedium},
		{0, 3, LevelHigh},
		{0, 7, LevelHigh},
		{1, 0, LevelHigh},
		{1, 2, LevelHigh},
		{2, 0, LevelExtreme},
		{2, 5, LevelExtreme},
		{3, 0, LevelExtreme},
	}
	for _, tt := range tests {
		if got := Classify(tt.critical, tt.warning); got != tt.want {
			t.Errorf("Classify(%d, %d) = %s, want %s", tt.critical, tt.warning, got, tt.want)
		}
	}
}

type fakeAlertStore struct {
	counts storage.AlertCounts
	err    error
}

func (f *fakeAlertStore) InsertAlert(ctx context.Context, a *storage.Alert) error { return nil }
func (f *fakeAlertStore) ListAlerts(ctx context.Context, q storage.AlertQuery) ([]storage.Alert, error) {
	return nil, nil
}
func (f *fakeAlertStore) UnresolvedCounts(ctx context.Context, stationID int64) (storage.AlertCounts, error) {
	return f.counts, f.err
}
func (f *fakeAlertStore) ResolveAlert(ctx context.Context, id int64) error { return nil }

func TestFor_UsesUnresolvedCounts(t *testing.T) {
	a := New(&fakeAlertStore{counts: storage.AlertCounts{Critical: 1, Warning: 1}})
	if got := a.For(context.Background(), 5); got != LevelHigh {
		t.Errorf("For = %s, want HIGH", got)
	}
}

func TestFor_StoreErrorDegradesToLow(t *testing.T) {
	a := New(&fakeAlertStore{err: errors.New("connection refused")})
	if got := a.For(context.Background(), 5); got != LevelLow {
		t.Errorf("For = %s, want LOW on store error", got)
	}
}

func TestObserve_ReportsTransitions(t *testing.T) {
	a := New(&fakeAlertStore{})

	if a.Observe(1, LevelLow) {
		t.Error("first LOW observation should not count as a change")
	}
	if !a.Observe(1, LevelMedium) {
		t.Error("LOW -> MEDIUM should be a change")
	}
	if a.Observe(1, LevelMedium) {
		t.Error("MEDIUM -> MEDIUM should not be a change")
	}
	if !a.Observe(1, LevelLow) {
		t.Error("MEDIUM -> LOW should be a change")
	}

	// Stations are tracked independently.
	if !a.Observe(2, LevelHigh) {
		t.Error("first non-LOW observation of a new station should be a change")
	}
}

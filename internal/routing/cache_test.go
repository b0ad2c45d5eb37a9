package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"slopewatch/internal/storage"
	"slopewatch/internal/telemetry"
)

type fakeRoutingStore struct {
	mu      sync.Mutex
	entries []storage.RoutingEntry
	err     error
}

func (f *fakeRoutingStore) ListRoutes(ctx context.Context) ([]storage.RoutingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]storage.RoutingEntry(nil), f.entries...), nil
}

func (f *fakeRoutingStore) set(entries []storage.RoutingEntry) {
	f.mu.Lock()
	f.entries = entries
	f.mu.Unlock()
}

func TestCache_ResolveMissBeforeRefresh(t *testing.T) {
	c := New(&fakeRoutingStore{}, time.Minute)
	if _, ok := c.Resolve("stations/s01/rain"); ok {
		t.Error("empty cache resolved a topic")
	}
}

func TestCache_RefreshAndResolve(t *testing.T) {
	src := &fakeRoutingStore{entries: []storage.RoutingEntry{
		{Topic: "stations/s01/rain", StationID: 1, DeviceID: 10, SensorType: telemetry.SensorRain},
	}}
	c := New(src, time.Minute)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	e, ok := c.Resolve("stations/s01/rain")
	if !ok {
		t.Fatal("topic not resolved after refresh")
	}
	if e.StationID != 1 || e.DeviceID != 10 || e.SensorType != telemetry.SensorRain {
		t.Errorf("entry = %+v", e)
	}
	if _, ok := c.Resolve("stations/s99/rain"); ok {
		t.Error("unknown topic resolved")
	}
}

func TestCache_RemovedTopicStopsResolving(t *testing.T) {
	src := &fakeRoutingStore{entries: []storage.RoutingEntry{
		{Topic: "stations/s01/rain", StationID: 1, DeviceID: 10, SensorType: telemetry.SensorRain},
	}}
	c := New(src, time.Minute)
	_ = c.Refresh(context.Background())

	src.set(nil)
	_ = c.Refresh(context.Background())

	if _, ok := c.Resolve("stations/s01/rain"); ok {
		t.Error("removed topic still resolves after refresh")
	}
}

func TestCache_FailedRefreshKeepsOldTable(t *testing.T) {
	src := &fakeRoutingStore{entries: []storage.RoutingEntry{
		{Topic: "stations/s01/rain", StationID: 1, DeviceID: 10, SensorType: telemetry.SensorRain},
	}}
	c := New(src, time.Minute)
	_ = c.Refresh(context.Background())

	src.mu.Lock()
	src.err = errors.New("config store down")
	src.mu.Unlock()

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if _, ok := c.Resolve("stations/s01/rain"); !ok {
		t.Error("failed refresh dropped the previous table")
	}
}

// Both topics of a generation are swapped in together: a reader must never
// see topics from two different generations at once.
func TestCache_RefreshIsAtomic(t *testing.T) {
	genA := []storage.RoutingEntry{
		{Topic: "t1", StationID: 1, DeviceID: 1, SensorType: telemetry.SensorRain},
		{Topic: "t2", StationID: 1, DeviceID: 2, SensorType: telemetry.SensorWater},
	}
	genB := []storage.RoutingEntry{
		{Topic: "t1", StationID: 2, DeviceID: 1, SensorType: telemetry.SensorRain},
		{Topic: "t2", StationID: 2, DeviceID: 2, SensorType: telemetry.SensorWater},
	}

	src := &fakeRoutingStore{entries: genA}
	c := New(src, time.Minute)
	_ = c.Refresh(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				src.set(genB)
			} else {
				src.set(genA)
			}
			_ = c.Refresh(context.Background())
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		// One Load gives one immutable generation; both topics must be
		// present and agree on which generation they came from.
		table := c.table.Load().(map[string]storage.RoutingEntry)
		e1, ok1 := table["t1"]
		e2, ok2 := table["t2"]
		if !ok1 || !ok2 {
			t.Fatal("observed a table with only some entries")
		}
		if e1.StationID != e2.StationID {
			t.Fatalf("observed mixed generations: %d vs %d", e1.StationID, e2.StationID)
		}
	}
}

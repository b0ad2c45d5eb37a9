package storage

import (
	"context"
	"testing"
	"time"

	"slopewatch/internal/telemetry"
)

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLite_RoutingRoundtrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	entries := []RoutingEntry{
		{Topic: "stations/s01/gnss", StationID: 1, DeviceID: 11, SensorType: telemetry.SensorGNSS},
		{Topic: "stations/s01/rain", StationID: 1, DeviceID: 12, SensorType: telemetry.SensorRain},
	}
	for _, e := range entries {
		if err := db.UpsertRoute(ctx, e); err != nil {
			t.Fatalf("UpsertRoute: %v", err)
		}
	}

	// Re-upserting the same topic must replace, not duplicate.
	if err := db.UpsertRoute(ctx, RoutingEntry{Topic: "stations/s01/gnss", StationID: 2, DeviceID: 21, SensorType: telemetry.SensorGNSS}); err != nil {
		t.Fatalf("UpsertRoute: %v", err)
	}

	routes, err := db.ListRoutes(ctx)
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("got %d routes, want 2", len(routes))
	}
	for _, r := range routes {
		if r.Topic == "stations/s01/gnss" && r.StationID != 2 {
			t.Errorf("topic not replaced on upsert: station = %d, want 2", r.StationID)
		}
	}
}

func TestSQLite_ReadingInsertAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v := 4.2
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := telemetry.Reading{
			StationID:  1,
			DeviceID:   12,
			SensorType: telemetry.SensorWater,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			RawPayload: []byte(`{"water_level":4.2}`),
			Value1:     &v,
		}
		if err := db.InsertReading(ctx, r); err != nil {
			t.Fatalf("InsertReading: %v", err)
		}
	}

	got, err := db.ListReadings(ctx, ReadingQuery{StationID: 1, SensorType: telemetry.SensorWater})
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d readings, want 3", len(got))
	}
	// Newest first.
	if !got[0].Timestamp.After(got[2].Timestamp) {
		t.Errorf("readings not ordered newest first: %v, %v", got[0].Timestamp, got[2].Timestamp)
	}
	if got[0].Value1 == nil || *got[0].Value1 != 4.2 {
		t.Errorf("Value1 = %v, want 4.2", got[0].Value1)
	}
	if got[0].Value2 != nil {
		t.Errorf("Value2 = %v, want nil preserved", got[0].Value2)
	}

	// Since filter.
	got, err = db.ListReadings(ctx, ReadingQuery{StationID: 1, Since: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d readings since cutoff, want 1", len(got))
	}
}

func TestSQLite_AlertLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := &Alert{
		StationID: 5,
		Level:     LevelWarning,
		Category:  "rain",
		Message:   "rainfall intensity 22.0 mm/h over threshold 20.0",
		Timestamp: time.Now().UTC(),
	}
	if err := db.InsertAlert(ctx, a); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("InsertAlert did not assign an ID")
	}

	counts, err := db.UnresolvedCounts(ctx, 5)
	if err != nil {
		t.Fatalf("UnresolvedCounts: %v", err)
	}
	if counts.Warning != 1 || counts.Critical != 0 {
		t.Errorf("counts = %+v, want 1 warning", counts)
	}

	if err := db.ResolveAlert(ctx, a.ID); err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	counts, err = db.UnresolvedCounts(ctx, 5)
	if err != nil {
		t.Fatalf("UnresolvedCounts: %v", err)
	}
	if counts.Warning != 0 {
		t.Errorf("warning count after resolve = %d, want 0", counts.Warning)
	}

	resolved := true
	alerts, err := db.ListAlerts(ctx, AlertQuery{StationID: 5, Resolved: &resolved})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 || !alerts[0].IsResolved {
		t.Errorf("resolved filter returned %+v", alerts)
	}

	if err := db.ResolveAlert(ctx, 9999); err == nil {
		t.Error("ResolveAlert on missing id should fail")
	}
}

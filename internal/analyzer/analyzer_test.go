package analyzer

import (
	"testing"
	"time"

	"slopewatch/internal/storage"
	"slopewatch/internal/telemetry"
)

func reading(st telemetry.SensorType, ts time.Time, v1, v2, v3 *float64) telemetry.Reading {
	return telemetry.Reading{
		StationID:  1,
		DeviceID:   10,
		SensorType: st,
		Timestamp:  ts,
		Value1:     v1,
		Value2:     v2,
		Value3:     v3,
	}
}

func f(v float64) *float64 { return &v }

func TestEvaluate_RainIntensityTiers(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		intensity float64
		wantLevel string // empty = no alert
	}{
		{5, ""},
		{20, storage.LevelWarning},
		{35, storage.LevelWarning},
		{50, storage.LevelCritical},
		{80, storage.LevelCritical},
	}

	for _, tt := range tests {
		a := New(DefaultThresholds())
		alerts := a.Evaluate(reading(telemetry.SensorRain, now, nil, f(tt.intensity), nil))
		if tt.wantLevel == "" {
			if len(alerts) != 0 {
				t.Errorf("intensity %.0f: got %d alerts, want none", tt.intensity, len(alerts))
			}
			continue
		}
		if len(alerts) != 1 {
			t.Fatalf("intensity %.0f: got %d alerts, want 1", tt.intensity, len(alerts))
		}
		if alerts[0].Level != tt.wantLevel {
			t.Errorf("intensity %.0f: level = %s, want %s", tt.intensity, alerts[0].Level, tt.wantLevel)
		}
		if alerts[0].Category != "rain" {
			t.Errorf("category = %s, want rain", alerts[0].Category)
		}
		if !alerts[0].Timestamp.Equal(now) {
			t.Errorf("alert timestamp = %v, want reading timestamp", alerts[0].Timestamp)
		}
	}
}

func TestEvaluate_MissingValuesMatchNoRule(t *testing.T) {
	a := New(DefaultThresholds())
	alerts := a.Evaluate(reading(telemetry.SensorWater, time.Now(), nil, nil, nil))
	if len(alerts) != 0 {
		t.Errorf("got %d alerts for nil values, want none", len(alerts))
	}
}

func TestEvaluate_WaterLevel(t *testing.T) {
	a := New(DefaultThresholds())
	alerts := a.Evaluate(reading(telemetry.SensorWater, time.Now(), f(4.9), nil, nil))
	if len(alerts) != 1 || alerts[0].Level != storage.LevelCritical {
		t.Fatalf("alerts = %+v, want one CRITICAL", alerts)
	}
}

func TestEvaluate_GNSSVelocityFromWindow(t *testing.T) {
	a := New(DefaultThresholds())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// 40mm displacement, well under the 100mm total threshold; a second
	// sample one day later moving 60mm/day crosses the velocity CRITICAL
	// tier (50 mm/day).
	alerts := a.Evaluate(reading(telemetry.SensorGNSS, base, nil, nil, f(40)))
	if len(alerts) != 0 {
		t.Fatalf("first sample raised %d alerts, want none", len(alerts))
	}

	alerts = a.Evaluate(reading(telemetry.SensorGNSS, base.Add(24*time.Hour), nil, nil, f(100)))

	var gotVelocity, gotDisplacement bool
	for _, al := range alerts {
		switch {
		case al.Level == storage.LevelCritical:
			gotVelocity = true
		case al.Level == storage.LevelWarning:
			gotDisplacement = true
		}
	}
	if !gotVelocity {
		t.Errorf("expected CRITICAL velocity alert, got %+v", alerts)
	}
	if !gotDisplacement {
		t.Errorf("expected WARNING displacement alert at 100mm, got %+v", alerts)
	}
}

func TestEvaluate_InertialTilt(t *testing.T) {
	a := New(DefaultThresholds())
	alerts := a.Evaluate(reading(telemetry.SensorInertial, time.Now(), f(2.5), nil, nil))
	if len(alerts) != 1 || alerts[0].Level != storage.LevelWarning {
		t.Fatalf("alerts = %+v, want one WARNING", alerts)
	}
}

func TestEvaluate_GenericHasNoRules(t *testing.T) {
	a := New(DefaultThresholds())
	alerts := a.Evaluate(reading(telemetry.SensorGeneric, time.Now(), f(99999), nil, nil))
	if len(alerts) != 0 {
		t.Errorf("generic sensor raised %d alerts, want none", len(alerts))
	}
}

func TestWindow_EvictsOldestAtCapacity(t *testing.T) {
	w := &window{}
	base := time.Now()
	for i := 0; i < windowCap+5; i++ {
		w.push(point{ts: base.Add(time.Duration(i) * time.Minute), v: float64(i)})
	}
	if len(w.points) != windowCap {
		t.Fatalf("window holds %d points, want %d", len(w.points), windowCap)
	}
	if w.points[0].v != 5 {
		t.Errorf("oldest retained point = %.0f, want 5 (oldest evicted first)", w.points[0].v)
	}
}

func TestEvaluate_RainAccumulationWindow(t *testing.T) {
	a := New(DefaultThresholds())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Four samples of 60mm each within 24h: sum crosses the CRITICAL 200mm
	// tier on the fourth.
	var last []storage.Alert
	for i := 0; i < 4; i++ {
		last = a.Evaluate(reading(telemetry.SensorRain, base.Add(time.Duration(i)*time.Hour), f(60), nil, nil))
	}
	if len(last) != 1 || last[0].Level != storage.LevelCritical {
		t.Fatalf("fourth sample alerts = %+v, want one CRITICAL accumulation alert", last)
	}
}

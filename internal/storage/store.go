// Package storage provides persistent storage for sensor readings, alerts
// and routing configuration. Two backends exist: an embedded SQLite database
// for single-node deployments and tests, and a ClickHouse + PostgreSQL pair
// for clusters (ClickHouse holds the append-only reading stream, PostgreSQL
// the mutable configuration and alert state).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slopewatch/internal/telemetry"
)

// ErrNotFound reports that the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// Alert levels, ordered by severity.
const (
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelCritical = "CRITICAL"
)

// RoutingEntry maps one broker topic to the station, device and sensor type
// it belongs to. Topics are unique in the configuration store.
type RoutingEntry struct {
	Topic      string               `json:"topic"`
	StationID  int64                `json:"station_id"`
	DeviceID   int64                `json:"device_id"`
	SensorType telemetry.SensorType `json:"sensor_type"`
}

// Alert is a threshold violation raised by the analyzer. Level and category
// are immutable after creation; resolution only flips IsResolved.
type Alert struct {
	ID         int64     `json:"id"`
	StationID  int64     `json:"station_id"`
	Level      string    `json:"level"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	IsResolved bool      `json:"is_resolved"`
}

// AlertCounts summarises unresolved alerts for one station.
type AlertCounts struct {
	Critical int
	Warning  int
}

// ReadingQuery filters ListReadings.
type ReadingQuery struct {
	StationID  int64
	SensorType telemetry.SensorType // empty = all types
	Since      time.Time            // zero = no lower bound
	Limit      int                  // <=0 = backend default
}

// AlertQuery filters ListAlerts.
type AlertQuery struct {
	StationID int64
	Resolved  *bool // nil = both
	Limit     int
}

// RoutingStore supplies the routing configuration the cache is built from.
type RoutingStore interface {
	ListRoutes(ctx context.Context) ([]RoutingEntry, error)
}

// ReadingStore persists and serves sensor readings.
type ReadingStore interface {
	InsertReading(ctx context.Context, r telemetry.Reading) error
	ListReadings(ctx context.Context, q ReadingQuery) ([]telemetry.Reading, error)
}

// AlertStore persists and serves alerts.
type AlertStore interface {
	// InsertAlert stores the alert and fills in its ID.
	InsertAlert(ctx context.Context, a *Alert) error
	ListAlerts(ctx context.Context, q AlertQuery) ([]Alert, error)
	UnresolvedCounts(ctx context.Context, stationID int64) (AlertCounts, error)
	ResolveAlert(ctx context.Context, id int64) error
}

// Store is the full persistence surface the pipeline needs.
type Store interface {
	RoutingStore
	ReadingStore
	AlertStore
	Close() error
}

// Config selects and parameterises a backend.
type Config struct {
	Driver string // "sqlite" or "cluster"

	SQLitePath string

	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
}

// Open opens the configured backend and bootstraps its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "cluster":
		return OpenCluster(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

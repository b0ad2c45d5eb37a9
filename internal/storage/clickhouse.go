package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"slopewatch/internal/telemetry"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB holds the append-only sensor reading stream. Readings are
// immutable once written, which is exactly the MergeTree model.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS sensor_readings (
		station_id      Int64,
		device_id       Int64,
		sensor_type     LowCardinality(String),
		timestamp       DateTime64(3),
		raw_payload     String,
		value_1         Nullable(Float64),
		value_2         Nullable(Float64),
		value_3         Nullable(Float64),
		created_at      DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (station_id, sensor_type, timestamp)
	SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertReading appends one reading.
func (d *ClickHouseDB) InsertReading(ctx context.Context, r telemetry.Reading) error {
	err := d.conn.Exec(ctx, `
		INSERT INTO sensor_readings (station_id, device_id, sensor_type, timestamp, raw_payload, value_1, value_2, value_3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.StationID, r.DeviceID, string(r.SensorType), r.Timestamp, string(r.RawPayload), r.Value1, r.Value2, r.Value3)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ListReadings returns readings matching the query, newest first.
func (d *ClickHouseDB) ListReadings(ctx context.Context, q ReadingQuery) ([]telemetry.Reading, error) {
	conditions := []string{"station_id = ?"}
	args := []any{q.StationID}

	if q.SensorType != "" {
		conditions = append(conditions, "sensor_type = ?")
		args = append(args, string(q.SensorType))
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, q.Since)
	}

	query := `SELECT station_id, device_id, sensor_type, timestamp, raw_payload, value_1, value_2, value_3 FROM sensor_readings`
	query += " WHERE " + strings.Join(conditions, " AND ")
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", normalLimit(q.Limit))

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []telemetry.Reading
	for rows.Next() {
		var r telemetry.Reading
		var sensorType, raw string
		if err := rows.Scan(&r.StationID, &r.DeviceID, &sensorType, &r.Timestamp, &raw, &r.Value1, &r.Value2, &r.Value3); err != nil {
			return nil, err
		}
		r.SensorType = telemetry.SensorType(sensorType)
		if raw != "" {
			r.RawPayload = []byte(raw)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slopewatch/internal/telemetry"

	_ "modernc.org/sqlite"
)

// SQLiteDB implements Store in one embedded database. Used for single-node
// deployments and tests; an empty or ":memory:" path keeps everything in
// memory.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database and bootstraps the schema.
func OpenSQLite(path string) (*SQLiteDB, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The modernc driver is not safe for concurrent writes over multiple
	// connections on one file; a single connection serialises them.
	db.SetMaxOpenConns(1)

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS routing (
		topic       TEXT PRIMARY KEY,
		station_id  INTEGER NOT NULL,
		device_id   INTEGER NOT NULL,
		sensor_type TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sensor_readings (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id  INTEGER NOT NULL,
		device_id   INTEGER NOT NULL,
		sensor_type TEXT NOT NULL,
		timestamp   INTEGER NOT NULL,
		raw_payload TEXT,
		value_1     REAL,
		value_2     REAL,
		value_3     REAL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_station_ts ON sensor_readings(station_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_readings_type ON sensor_readings(sensor_type);

	CREATE TABLE IF NOT EXISTS alerts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id  INTEGER NOT NULL,
		level       TEXT NOT NULL,
		category    TEXT NOT NULL,
		message     TEXT NOT NULL,
		timestamp   INTEGER NOT NULL,
		is_resolved INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_station_resolved ON alerts(station_id, is_resolved);
	`

	_, err := db.Exec(schema)
	return err
}

// ListRoutes returns every routing entry.
func (d *SQLiteDB) ListRoutes(ctx context.Context) ([]RoutingEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT topic, station_id, device_id, sensor_type FROM routing
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []RoutingEntry
	for rows.Next() {
		var e RoutingEntry
		var sensorType string
		if err := rows.Scan(&e.Topic, &e.StationID, &e.DeviceID, &sensorType); err != nil {
			return nil, err
		}
		e.SensorType = telemetry.ParseSensorType(sensorType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertRoute inserts or replaces a routing entry. The pipeline itself only
// reads routes; this exists for provisioning tools and tests.
func (d *SQLiteDB) UpsertRoute(ctx context.Context, e RoutingEntry) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO routing (topic, station_id, device_id, sensor_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (topic) DO UPDATE SET
			station_id = excluded.station_id,
			device_id = excluded.device_id,
			sensor_type = excluded.sensor_type
	`, e.Topic, e.StationID, e.DeviceID, string(e.SensorType))
	return err
}

// InsertReading appends one reading.
func (d *SQLiteDB) InsertReading(ctx context.Context, r telemetry.Reading) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sensor_readings (station_id, device_id, sensor_type, timestamp, raw_payload, value_1, value_2, value_3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.StationID, r.DeviceID, string(r.SensorType), r.Timestamp.Unix(), string(r.RawPayload), r.Value1, r.Value2, r.Value3)
	return err
}

// ListReadings returns readings matching the query, newest first.
func (d *SQLiteDB) ListReadings(ctx context.Context, q ReadingQuery) ([]telemetry.Reading, error) {
	query := `
		SELECT station_id, device_id, sensor_type, timestamp, raw_payload, value_1, value_2, value_3
		FROM sensor_readings
		WHERE station_id = ?
	`
	args := []any{q.StationID}

	if q.SensorType != "" {
		query += " AND sensor_type = ?"
		args = append(args, string(q.SensorType))
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, q.Since.Unix())
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, normalLimit(q.Limit))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var readings []telemetry.Reading
	for rows.Next() {
		var r telemetry.Reading
		var sensorType string
		var ts int64
		var raw sql.NullString
		if err := rows.Scan(&r.StationID, &r.DeviceID, &sensorType, &ts, &raw, &r.Value1, &r.Value2, &r.Value3); err != nil {
			return nil, err
		}
		r.SensorType = telemetry.SensorType(sensorType)
		r.Timestamp = time.Unix(ts, 0).UTC()
		if raw.Valid {
			r.RawPayload = []byte(raw.String)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// InsertAlert appends one alert and fills in its ID.
func (d *SQLiteDB) InsertAlert(ctx context.Context, a *Alert) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO alerts (station_id, level, category, message, timestamp, is_resolved)
		VALUES (?, ?, ?, ?, ?, 0)
	`, a.StationID, a.Level, a.Category, a.Message, a.Timestamp.Unix())
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

// ListAlerts returns alerts matching the query, newest first.
func (d *SQLiteDB) ListAlerts(ctx context.Context, q AlertQuery) ([]Alert, error) {
	query := `
		SELECT id, station_id, level, category, message, timestamp, is_resolved
		FROM alerts
		WHERE station_id = ?
	`
	args := []any{q.StationID}

	if q.Resolved != nil {
		query += " AND is_resolved = ?"
		args = append(args, boolToInt(*q.Resolved))
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, normalLimit(q.Limit))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var ts int64
		var resolved int
		if err := rows.Scan(&a.ID, &a.StationID, &a.Level, &a.Category, &a.Message, &ts, &resolved); err != nil {
			return nil, err
		}
		a.Timestamp = time.Unix(ts, 0).UTC()
		a.IsResolved = resolved != 0
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UnresolvedCounts counts unresolved alerts for a station by level.
func (d *SQLiteDB) UnresolvedCounts(ctx context.Context, stationID int64) (AlertCounts, error) {
	var c AlertCounts
	err := d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN level = ? THEN 1 END),
			COUNT(CASE WHEN level = ? THEN 1 END)
		FROM alerts
		WHERE station_id = ? AND is_resolved = 0
	`, LevelCritical, LevelWarning, stationID).Scan(&c.Critical, &c.Warning)
	return c, err
}

// ResolveAlert marks one alert resolved.
func (d *SQLiteDB) ResolveAlert(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `UPDATE alerts SET is_resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return nil
}

func normalLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

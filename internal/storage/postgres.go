package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"slopewatch/internal/telemetry"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB holds the routing configuration (devices) and the mutable
// alert state. Readings live in ClickHouse; see clickhouse.go.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Configuration: one row per field device. The pipeline reads only the
	-- routing columns; the rest belongs to the provisioning layer.
	CREATE TABLE IF NOT EXISTS devices (
		id              BIGSERIAL PRIMARY KEY,
		device_code     TEXT UNIQUE NOT NULL,
		name            TEXT,
		station_id      BIGINT NOT NULL,
		device_type     TEXT NOT NULL,
		mqtt_topic      TEXT NOT NULL DEFAULT '',
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_devices_station ON devices(station_id);

	CREATE TABLE IF NOT EXISTS alerts (
		id              BIGSERIAL PRIMARY KEY,
		station_id      BIGINT NOT NULL,
		level           TEXT NOT NULL,
		category        TEXT NOT NULL,
		message         TEXT NOT NULL,
		timestamp       TIMESTAMPTZ NOT NULL,
		is_resolved     BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_station_resolved ON alerts(station_id, is_resolved);
	CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ListRoutes returns the topic routing for every active device with a topic.
func (d *PostgresDB) ListRoutes(ctx context.Context) ([]RoutingEntry, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT mqtt_topic, station_id, id, device_type
		FROM devices
		WHERE is_active AND mqtt_topic <> ''
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RoutingEntry
	for rows.Next() {
		var e RoutingEntry
		var deviceType string
		if err := rows.Scan(&e.Topic, &e.StationID, &e.DeviceID, &deviceType); err != nil {
			return nil, err
		}
		e.SensorType = telemetry.ParseSensorType(deviceType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertAlert appends one alert and fills in its ID.
func (d *PostgresDB) InsertAlert(ctx context.Context, a *Alert) error {
	return d.pool.QueryRow(ctx, `
		INSERT INTO alerts (station_id, level, category, message, timestamp, is_resolved)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id
	`, a.StationID, a.Level, a.Category, a.Message, a.Timestamp).Scan(&a.ID)
}

// ListAlerts returns alerts matching the query, newest first.
func (d *PostgresDB) ListAlerts(ctx context.Context, q AlertQuery) ([]Alert, error) {
	query := `
		SELECT id, station_id, level, category, message, timestamp, is_resolved
		FROM alerts
		WHERE station_id = $1
	`
	args := []any{q.StationID}

	if q.Resolved != nil {
		args = append(args, *q.Resolved)
		query += fmt.Sprintf(" AND is_resolved = $%d", len(args))
	}
	args = append(args, normalLimit(q.Limit))
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.StationID, &a.Level, &a.Category, &a.Message, &a.Timestamp, &a.IsResolved); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UnresolvedCounts counts unresolved alerts for a station by level.
func (d *PostgresDB) UnresolvedCounts(ctx context.Context, stationID int64) (AlertCounts, error) {
	var c AlertCounts
	err := d.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE level = $1),
			COUNT(*) FILTER (WHERE level = $2)
		FROM alerts
		WHERE station_id = $3 AND NOT is_resolved
	`, LevelCritical, LevelWarning, stationID).Scan(&c.Critical, &c.Warning)
	return c, err
}

// ResolveAlert marks one alert resolved.
func (d *PostgresDB) ResolveAlert(ctx context.Context, id int64) error {
	tag, err := d.pool.Exec(ctx, `UPDATE alerts SET is_resolved = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return nil
}

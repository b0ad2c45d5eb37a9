// Package config loads runtime configuration from environment variables.
// Every setting has a default so the binary starts with no environment at
// all (sqlite store, local broker).
package config

import (
	"os"
	"strconv"
	"time"

	"slopewatch/internal/telemetry"
)

// MQTT holds broker connection settings for the device transport.
type MQTT struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicFilter string // root subscription filter, devices publish below it
}

// Config is the full runtime configuration.
type Config struct {
	MQTT     MQTT
	HTTPPort int

	// Storage backend: "sqlite" (embedded, default) or "cluster"
	// (ClickHouse readings + Postgres config/alerts).
	StoreDriver string
	SQLitePath  string

	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	PostgresHost     string
	PostgresPort     int
	PostgresDatabase string
	PostgresUser     string
	PostgresPassword string

	// NATSURL enables the event relay when non-empty.
	NATSURL string

	// TopicReload is how often the routing cache is rebuilt from the
	// configuration store.
	TopicReload time.Duration

	// SaveIntervals is the minimum gap between two persisted readings of
	// the same sensor type at the same station. SaveIntervalDefault covers
	// types without an explicit entry.
	SaveIntervals       map[telemetry.SensorType]time.Duration
	SaveIntervalDefault time.Duration

	QueueSize int
	Workers   int
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		MQTT: MQTT{
			BrokerURL:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "slopewatch"),
			Username:    getEnv("MQTT_USER", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			TopicFilter: getEnv("MQTT_TOPIC_FILTER", "stations/#"),
		},
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		StoreDriver: getEnv("STORE_DRIVER", "sqlite"),
		SQLitePath:  getEnv("SQLITE_PATH", "slopewatch.db"),

		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "slopewatch"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresDatabase: getEnv("POSTGRES_DATABASE", "slopewatch"),
		PostgresUser:     getEnv("POSTGRES_USER", "slopewatch"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "slopewatch"),

		NATSURL: getEnv("NATS_URL", ""),

		TopicReload: getEnvSeconds("TOPIC_RELOAD_INTERVAL", 60),

		// GNSS moves slowest, rain and water fastest. One row per day for
		// GNSS, hourly for rain/water, monthly for tilt baselines.
		SaveIntervals: map[telemetry.SensorType]time.Duration{
			telemetry.SensorGNSS:     getEnvSeconds("SAVE_INTERVAL_GNSS", 86400),
			telemetry.SensorRain:     getEnvSeconds("SAVE_INTERVAL_RAIN", 3600),
			telemetry.SensorWater:    getEnvSeconds("SAVE_INTERVAL_WATER", 3600),
			telemetry.SensorInertial: getEnvSeconds("SAVE_INTERVAL_IMU", 2592000),
		},
		SaveIntervalDefault: getEnvSeconds("SAVE_INTERVAL_DEFAULT", 60),

		QueueSize: getEnvInt("QUEUE_SIZE", 1024),
		Workers:   getEnvInt("WORKERS", 4),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

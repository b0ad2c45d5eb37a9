package storage

import (
	"context"
	"fmt"

	"slopewatch/internal/telemetry"
)

// ClusterDB implements Store over the ClickHouse + PostgreSQL pair:
// ClickHouse serves the reading stream, PostgreSQL the routing configuration
// and alert state.
type ClusterDB struct {
	CH *ClickHouseDB
	PG *PostgresDB
}

// OpenCluster opens both connections and bootstraps both schemas.
func OpenCluster(ctx context.Context, cfg Config) (*ClusterDB, error) {
	ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}

	pg, err := OpenPostgres(ctx, cfg.Postgres)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := ch.CreateSchema(ctx); err != nil {
		_ = ch.Close()
		pg.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	if err := pg.CreateSchema(ctx); err != nil {
		_ = ch.Close()
		pg.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	return &ClusterDB{CH: ch, PG: pg}, nil
}

// Close closes both connections.
func (d *ClusterDB) Close() error {
	var errs []error
	if d.CH != nil {
		if err := d.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if d.PG != nil {
		d.PG.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (d *ClusterDB) ListRoutes(ctx context.Context) ([]RoutingEntry, error) {
	return d.PG.ListRoutes(ctx)
}

func (d *ClusterDB) InsertReading(ctx context.Context, r telemetry.Reading) error {
	return d.CH.InsertReading(ctx, r)
}

func (d *ClusterDB) ListReadings(ctx context.Context, q ReadingQuery) ([]telemetry.Reading, error) {
	return d.CH.ListReadings(ctx, q)
}

func (d *ClusterDB) InsertAlert(ctx context.Context, a *Alert) error {
	return d.PG.InsertAlert(ctx, a)
}

func (d *ClusterDB) ListAlerts(ctx context.Context, q AlertQuery) ([]Alert, error) {
	return d.PG.ListAlerts(ctx, q)
}

func (d *ClusterDB) UnresolvedCounts(ctx context.Context, stationID int64) (AlertCounts, error) {
	return d.PG.UnresolvedCounts(ctx, stationID)
}

func (d *ClusterDB) ResolveAlert(ctx context.Context, id int64) error {
	return d.PG.ResolveAlert(ctx, id)
}

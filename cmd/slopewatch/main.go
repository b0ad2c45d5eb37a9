// slopewatch ingests slope-monitoring telemetry from an MQTT broker,
// throttles it into durable storage, raises threshold alerts and pushes
// live updates to dashboards over websockets.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slopewatch/internal/analyzer"
	"slopewatch/internal/api"
	"slopewatch/internal/config"
	"slopewatch/internal/dispatch"
	"slopewatch/internal/hub"
	"slopewatch/internal/ingest"
	"slopewatch/internal/relay"
	"slopewatch/internal/risk"
	"slopewatch/internal/routing"
	"slopewatch/internal/storage"
	"slopewatch/internal/throttle"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.Open(ctx, storage.Config{
		Driver:     cfg.StoreDriver,
		SQLitePath: cfg.SQLitePath,
		ClickHouse: storage.ClickHouseConfig{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDatabase,
			User:     cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		},
		Postgres: storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			Database: cfg.PostgresDatabase,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
		},
	})
	cancel()
	if err != nil {
		log.Fatalf("opening store (%s): %v", cfg.StoreDriver, err)
	}
	defer store.Close()

	routes := routing.New(store, cfg.TopicReload)
	if err := routes.Refresh(context.Background()); err != nil {
		// Not fatal: the periodic refresh will retry, messages are dropped
		// until then.
		log.Printf("initial routing refresh failed: %v", err)
	}
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	go routes.Run(refreshCtx)

	eventHub := hub.New()

	eventRelay, err := relay.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatalf("connecting event relay: %v", err)
	}

	agg := risk.New(store)

	dispatcher := dispatch.New(dispatch.Config{
		Routes:    routes,
		Analyzer:  analyzer.New(analyzer.DefaultThresholds()),
		Gate:      throttle.New(cfg.SaveIntervals, cfg.SaveIntervalDefault),
		Risk:      agg,
		Store:     store,
		Hub:       eventHub,
		Relay:     eventRelay,
		QueueSize: cfg.QueueSize,
		Workers:   cfg.Workers,
	})
	dispatcher.Start()

	listener, err := ingest.Listen(ingest.Config{
		Broker:      cfg.MQTT.BrokerURL,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicFilter: cfg.MQTT.TopicFilter,
	}, dispatcher)
	if err != nil {
		log.Fatalf("starting mqtt listener: %v", err)
	}

	server := api.NewServer(store, agg, eventHub, api.Config{Port: cfg.HTTPPort})
	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("shutting down")

	// Stop intake first, then drain the pipeline, then drop the fan-out.
	listener.Close()
	stopRefresh()
	dispatcher.Stop(15 * time.Second)
	eventRelay.Close()
	eventHub.CloseAll()
}

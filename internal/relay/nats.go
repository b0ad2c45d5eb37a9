// Package relay republishes hub events onto NATS so downstream consumers
// (archival jobs, SMS gateways) can subscribe without touching the pipeline.
package relay

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"slopewatch/internal/hub"
)

// Relay publishes events to "slopewatch.events.<station_id>". A nil Relay
// is valid and does nothing, so the pipeline works without a NATS server.
type Relay struct {
	nc *nats.Conn
}

// Connect dials the NATS server. An empty URL disables the relay.
func Connect(url string) (*Relay, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("slopewatch"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	log.Printf("relay: connected to nats at %s", url)
	return &Relay{nc: nc}, nil
}

// Publish forwards one event. Failures are logged, never propagated: the
// relay is best-effort and must not stall ingestion.
func (r *Relay) Publish(ev hub.Event) {
	if r == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("relay: encoding event: %v", err)
		return
	}
	subject := fmt.Sprintf("slopewatch.events.%d", ev.StationID)
	if err := r.nc.Publish(subject, data); err != nil {
		log.Printf("relay: publishing to %s: %v", subject, err)
	}
}

// Close flushes pending publishes and drops the connection.
func (r *Relay) Close() {
	if r == nil {
		return
	}
	if err := r.nc.Drain(); err != nil {
		r.nc.Close()
	}
}

// Package dispatch runs the ingestion pipeline: broker messages come in on
// a bounded queue, a worker pool resolves them through the routing cache,
// evaluates alert rules, throttles persistence and pushes live updates out.
package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"slopewatch/internal/analyzer"
	"slopewatch/internal/hub"
	"slopewatch/internal/relay"
	"slopewatch/internal/risk"
	"slopewatch/internal/routing"
	"slopewatch/internal/storage"
	"slopewatch/internal/telemetry"
	"slopewatch/internal/throttle"
)

// Message is one raw broker publication.
type Message struct {
	Topic   string
	Payload []byte
	Arrival time.Time
}

// Dispatcher owns the queue and the worker pool. The queue is bounded: when
// it is full the oldest queued message is dropped so fresh telemetry always
// gets in.
type Dispatcher struct {
	routes   *routing.Cache
	analyzer *analyzer.Analyzer
	gate     *throttle.Gate
	risk     *risk.Aggregator
	store    storage.Store
	hub      *hub.Hub
	relay    *relay.Relay

	workers int

	mu    sync.Mutex // guards queue writes for the drop-oldest path
	queue chan Message

	wg   sync.WaitGroup
	stop chan struct{}
}

// Config collects the dispatcher's collaborators.
type Config struct {
	Routes   *routing.Cache
	Analyzer *analyzer.Analyzer
	Gate     *throttle.Gate
	Risk     *risk.Aggregator
	Store    storage.Store
	Hub      *hub.Hub
	Relay    *relay.Relay

	QueueSize int
	Workers   int
}

func New(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Dispatcher{
		routes:   cfg.Routes,
		analyzer: cfg.Analyzer,
		gate:     cfg.Gate,
		risk:     cfg.Risk,
		store:    cfg.Store,
		hub:      cfg.Hub,
		relay:    cfg.Relay,
		workers:  cfg.Workers,
		queue:    make(chan Message, cfg.QueueSize),
		stop:     make(chan struct{}),
	}
}

// Enqueue hands a message to the worker pool. If the queue is full the
// oldest entry is evicted first; enqueueing never blocks the broker
// callback.
func (d *Dispatcher) Enqueue(m Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		select {
		case d.queue <- m:
			return
		default:
		}
		select {
		case dropped := <-d.queue:
			log.Printf("dispatch: queue full, dropping oldest message on %s", dropped.Topic)
		default:
		}
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	log.Printf("dispatch: %d workers started (queue %d)", d.workers, cap(d.queue))
}

// Stop drains queued messages and waits for the workers, up to the given
// timeout. Returns false if workers were still busy when it expired.
func (d *Dispatcher) Stop(timeout time.Duration) bool {
	close(d.stop)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.Printf("dispatch: shutdown timed out after %v", timeout)
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case m := <-d.queue:
			d.process(m)
		case <-d.stop:
			// Drain what is already queued, then exit.
			for {
				select {
				case m := <-d.queue:
					d.process(m)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) process(m Message) {
	route, ok := d.routes.Resolve(m.Topic)
	if !ok {
		log.Printf("dispatch: no route for topic %s, dropping message", m.Topic)
		return
	}

	reading := telemetry.Decode(route.StationID, route.DeviceID, route.SensorType, m.Payload, m.Arrival)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Alerts are evaluated on every reading, before the persistence gate:
	// a throttled-away reading can still cross a threshold.
	alerts := d.analyzer.Evaluate(reading)
	for i := range alerts {
		if err := d.store.InsertAlert(ctx, &alerts[i]); err != nil {
			log.Printf("dispatch: storing alert for station %d: %v", alerts[i].StationID, err)
			continue
		}
		d.emit(hub.Event{
			Type:      hub.EventNewAlert,
			StationID: alerts[i].StationID,
			Payload:   alerts[i],
			Timestamp: time.Now().UTC(),
		})
	}

	if len(alerts) > 0 {
		level := d.risk.For(ctx, route.StationID)
		if d.risk.Observe(route.StationID, level) {
			d.emit(hub.Event{
				Type:      hub.EventRiskChanged,
				StationID: route.StationID,
				Payload:   map[string]string{"risk_level": level},
				Timestamp: time.Now().UTC(),
			})
		}
	}

	if !d.gate.Allow(route.StationID, route.SensorType, reading.Timestamp) {
		return
	}
	if err := d.store.InsertReading(ctx, reading); err != nil {
		log.Printf("dispatch: storing reading for station %d: %v", route.StationID, err)
		return
	}
	d.emit(hub.Event{
		Type:      hub.EventNewReading,
		StationID: route.StationID,
		Payload:   reading,
		Timestamp: time.Now().UTC(),
	})
}

func (d *Dispatcher) emit(ev hub.Event) {
	d.hub.Broadcast(ev)
	d.relay.Publish(ev)
}

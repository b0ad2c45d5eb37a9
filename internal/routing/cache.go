// Package routing resolves broker topics to the station, device and sensor
// type they were provisioned for.
package routing

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"slopewatch/internal/storage"
)

// Cache is a copy-on-write view of the topic routing table. Refresh builds
// a complete new map off to the side and publishes it with one atomic swap,
// so Resolve never blocks and never observes a half-built table.
type Cache struct {
	src      storage.RoutingStore
	interval time.Duration
	table    atomic.Value // map[string]storage.RoutingEntry
}

// New creates a cache that rebuilds from src every interval. The cache is
// empty until the first Refresh.
func New(src storage.RoutingStore, interval time.Duration) *Cache {
	c := &Cache{src: src, interval: interval}
	c.table.Store(map[string]storage.RoutingEntry{})
	return c
}

// Resolve looks up the routing entry for a topic. Safe to call concurrently
// with an in-flight Refresh.
func (c *Cache) Resolve(topic string) (storage.RoutingEntry, bool) {
	table := c.table.Load().(map[string]storage.RoutingEntry)
	e, ok := table[topic]
	return e, ok
}

// Len returns the number of routable topics.
func (c *Cache) Len() int {
	return len(c.table.Load().(map[string]storage.RoutingEntry))
}

// Refresh reloads the whole mapping from the configuration store and swaps
// it in. On error the previous table stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	entries, err := c.src.ListRoutes(ctx)
	if err != nil {
		return err
	}

	table := make(map[string]storage.RoutingEntry, len(entries))
	for _, e := range entries {
		table[e.Topic] = e
	}
	c.table.Store(table)
	return nil
}

// Run refreshes on the configured interval until ctx is cancelled. Refresh
// failures keep the last good table and are retried next tick.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Printf("routing: refresh failed, keeping %d cached topics: %v", c.Len(), err)
			}
		}
	}
}

// Package ingest connects to the MQTT broker and feeds raw publications
// into the dispatcher.
package ingest

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"slopewatch/internal/dispatch"
)

// Config holds the broker connection settings.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicFilter string
}

// Listener is a subscribed MQTT client. Its only job is to hand messages to
// the dispatcher as fast as they arrive; all real work happens in the
// worker pool.
type Listener struct {
	client mqtt.Client
	filter string
}

// Listen connects, subscribes and starts delivering messages to the
// dispatcher queue.
func Listen(cfg Config, d *dispatch.Dispatcher) (*Listener, error) {
	// A random suffix lets several instances share a configured client ID
	// without the broker kicking the older session.
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Printf("ingest: connected to broker %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Printf("ingest: broker connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to broker %s: %w", cfg.Broker, token.Error())
	}

	handler := func(c mqtt.Client, m mqtt.Message) {
		d.Enqueue(dispatch.Message{
			Topic:   m.Topic(),
			Payload: m.Payload(),
			Arrival: time.Now().UTC(),
		})
	}
	if token := client.Subscribe(cfg.TopicFilter, 0, handler); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribing to %s: %w", cfg.TopicFilter, token.Error())
	}
	log.Printf("ingest: subscribed to %s", cfg.TopicFilter)

	return &Listener{client: client, filter: cfg.TopicFilter}, nil
}

// Close unsubscribes and disconnects, letting in-flight callbacks finish.
func (l *Listener) Close() {
	if token := l.client.Unsubscribe(l.filter); token.Wait() && token.Error() != nil {
		log.Printf("ingest: unsubscribe failed: %v", token.Error())
	}
	l.client.Disconnect(250)
}

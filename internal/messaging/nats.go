// Package messaging provides a NATS client wrapper for cross-instance room
// fan-out. When the backend runs as multiple chat server instances, accepted
// messages are published to a per-slot subject so every instance can deliver
// them to its own locally connected room members.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectRooms is the subject prefix for room fan-out; the slot ID is
// appended as the final token (rooms.<slot_id>).
const SubjectRooms = "rooms"

// NATSClient wraps the NATS connection with helpers for room subscriptions.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription // slotID -> subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "slot-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishRoom publishes data to the rooms.<slotID> subject. It satisfies the
// broadcaster's Publisher contract.
func (c *NATSClient) PublishRoom(slotID string, data []byte) error {
	return c.conn.Publish(SubjectRooms+"."+slotID, data)
}

// SubscribeRoom subscribes to a slot's fan-out subject. Called when the first
// local session joins the slot's room. Subscribing to the same slot twice
// is a no-op.
func (c *NATSClient) SubscribeRoom(slotID string, handler func(data []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[slotID]; ok {
		return nil
	}

	subject := SubjectRooms + "." + slotID
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.subs[slotID] = sub
	return nil
}

// UnsubscribeRoom drops a slot's fan-out subscription. Called when the last
// local session leaves the slot's room.
func (c *NATSClient) UnsubscribeRoom(slotID string) error {
	c.mu.Lock()
	sub, ok := c.subs[slotID]
	if ok {
		delete(c.subs, slotID)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("nats: no subscription for slot %s", slotID)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe rooms.%s: %w", slotID, err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for slotID, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain rooms.%s: %v", slotID, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// Package mirror republishes broadcast session events to Redis pub/sub so
// spectators and tooling can follow a match without joining it.
package mirror

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"breakout/events"
)

const defaultQueue = 256

// Topic is the pub/sub channel for a session. Events outside a game go to the lobby topic.
func Topic(session string) string {
	if session == "" {
		return "breakout:lobby:events"
	}
	return "breakout:" + session + ":events"
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis is an events.Sink. Publish queues; Run does the network writes.
type Redis struct {
	pub    publisher
	closer func() error
	queue  chan events.Event
	logger *log.Logger
}

// NewRedis connects lazily to the server at addr.
func NewRedis(addr string, logger *log.Logger) *Redis {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	m := newRedis(rdb, defaultQueue, logger)
	m.closer = rdb.Close
	return m
}

func newRedis(pub publisher, size int, logger *log.Logger) *Redis {
	if logger == nil {
		logger = log.New(os.Stderr, "mirror: ", log.LstdFlags)
	}
	if size <= 0 {
		size = defaultQueue
	}
	return &Redis{pub: pub, queue: make(chan events.Event, size), logger: logger}
}

// Publish never blocks the frame loop; a full queue drops the event.
func (m *Redis) Publish(ev events.Event) {
	select {
	case m.queue <- ev:
	default:
		m.logger.Printf("queue full, dropping %s event", ev.Kind)
	}
}

// Run publishes queued events until ctx is done, then closes the client.
func (m *Redis) Run(ctx context.Context) error {
	defer m.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.queue:
			m.send(ctx, ev)
		}
	}
}

func (m *Redis) send(ctx context.Context, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Printf("encode %s event: %v", ev.Kind, err)
		return
	}
	if err := m.pub.Publish(ctx, Topic(ev.Session), payload).Err(); err != nil {
		m.logger.Printf("publish %s event: %v", ev.Kind, err)
	}
}

func (m *Redis) close() {
	if m.closer == nil {
		return
	}
	if err := m.closer(); err != nil {
		m.logger.Printf("close redis client: %v", err)
	}
}

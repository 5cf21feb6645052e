// Package events carries discrete session facts (joins, leaves, brick breaks,
// wins, latency probes) over the reliable transport class.
package events

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"breakout/peer"
	"breakout/protocol"
	"breakout/transport"
)

var (
	ErrUnregistered = errors.New("event type not registered")
	ErrNotReliable  = errors.New("event type must be reliable")
	ErrNotServer    = errors.New("only a server can do this")
	ErrNoClient     = errors.New("no client connection")
)

// Hooks are called from Dispatch on the frame loop. Nil hooks are skipped.
// Consumers must treat an unknown or already removed target as a no-op.
type Hooks struct {
	GameStarted     func(start protocol.StartGame)
	ObjectDestroyed func(id uint32)
	TeamWon         func(winner protocol.Team)
	PeerJoined      func(id peer.ID, name string)
	PeerLeft        func(id peer.ID)
	Ping            func(probe protocol.Ping, rtt time.Duration)
}

// Event is a broadcast fact as handed to a Sink.
type Event struct {
	Session string    `json:"session,omitempty"`
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Sink receives a copy of every broadcast event. Publish must not block.
type Sink interface {
	Publish(ev Event)
}

type tags struct {
	start, brick, win, joined, left, ping protocol.Tag
}

func (t tags) all() []protocol.Tag {
	return []protocol.Tag{t.start, t.brick, t.win, t.joined, t.left, t.ping}
}

// Channel reads this frame's event buffers and emits events.
type Channel struct {
	table  *protocol.Table
	server *transport.Server
	client *transport.Client
	hooks  Hooks
	tags   tags

	logger  *log.Logger
	sink    Sink
	session string
	now     func() time.Time
}

type Option func(*Channel)

func WithLogger(logger *log.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithSink(s Sink) Option {
	return func(c *Channel) { c.sink = s }
}

func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

func lookup[M any](table *protocol.Table) (protocol.Tag, error) {
	tag, ok := protocol.TagFor[M](table)
	if !ok {
		var zero M
		return 0, fmt.Errorf("%T: %w", zero, ErrUnregistered)
	}
	if rel, _ := table.Reliability(tag); rel != protocol.Reliable {
		var zero M
		return 0, fmt.Errorf("%T: %w", zero, ErrNotReliable)
	}
	return tag, nil
}

// New resolves the event tags in table. Either handle may be nil; a host passes both.
func New(table *protocol.Table, server *transport.Server, client *transport.Client, hooks Hooks, opts ...Option) (*Channel, error) {
	c := &Channel{
		table:  table,
		server: server,
		client: client,
		hooks:  hooks,
		logger: log.New(os.Stderr, "events: ", log.LstdFlags),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	var err error
	if c.tags.start, err = lookup[protocol.StartGame](table); err != nil {
		return nil, err
	}
	if c.tags.brick, err = lookup[protocol.BrickBreak](table); err != nil {
		return nil, err
	}
	if c.tags.win, err = lookup[protocol.GameWin](table); err != nil {
		return nil, err
	}
	if c.tags.joined, err = lookup[protocol.ConnectionBroadcast](table); err != nil {
		return nil, err
	}
	if c.tags.left, err = lookup[protocol.DisconnectBroadcast](table); err != nil {
		return nil, err
	}
	if c.tags.ping, err = lookup[protocol.Ping](table); err != nil {
		return nil, err
	}
	return c, nil
}

// SetSession tags later sink events with a session id. Empty outside a game.
func (c *Channel) SetSession(id string) {
	c.session = id
}

// Dispatch handles the events polled this frame. A server echoes pings and
// ignores world facts sent by clients; a client fires the hooks.
func (c *Channel) Dispatch() {
	if c.server != nil {
		c.dispatchServer()
		return
	}
	if c.client != nil && c.client.Status().State == transport.Connected {
		c.dispatchClient()
	}
}

func (c *Channel) dispatchServer() {
	for _, in := range c.server.ReceivedInOrder(c.tags.all()...) {
		if in.Tag != c.tags.ping {
			c.logger.Printf("ignoring %s from peer %d", c.table.Name(in.Tag), in.From)
			continue
		}
		if err := c.server.SendTo(in.From, c.tags.ping, in.Payload); err != nil {
			c.logger.Printf("echo ping to peer %d: %v", in.From, err)
		}
	}
}

func decode[M any](c *Channel, in transport.Inbound, fn func(M)) {
	v, err := protocol.Unmarshal[M](in.Payload)
	if err != nil {
		c.logger.Printf("decode %s: %v", c.table.Name(in.Tag), err)
		return
	}
	fn(v)
}

// dispatchClient fires hooks in arrival order, so a leave followed by a join
// in the same frame is seen in that order.
func (c *Channel) dispatchClient() {
	h := c.hooks
	for _, in := range c.client.ReceivedInOrder(c.tags.all()...) {
		switch in.Tag {
		case c.tags.joined:
			decode(c, in, func(m protocol.ConnectionBroadcast) {
				if h.PeerJoined != nil {
					h.PeerJoined(m.Peer, m.Name)
				}
			})
		case c.tags.start:
			decode(c, in, func(m protocol.StartGame) {
				if h.GameStarted != nil {
					h.GameStarted(m)
				}
			})
		case c.tags.brick:
			decode(c, in, func(m protocol.BrickBreak) {
				if h.ObjectDestroyed != nil {
					h.ObjectDestroyed(m.ID)
				}
			})
		case c.tags.win:
			decode(c, in, func(m protocol.GameWin) {
				if h.TeamWon != nil {
					h.TeamWon(m.Winner)
				}
			})
		case c.tags.left:
			decode(c, in, func(m protocol.DisconnectBroadcast) {
				if h.PeerLeft != nil {
					h.PeerLeft(m.Peer)
				}
			})
		case c.tags.ping:
			decode(c, in, func(m protocol.Ping) {
				if h.Ping != nil {
					h.Ping(m, c.now().Sub(time.Unix(0, m.SentAt)))
				}
			})
		}
	}
}

func (c *Channel) encode(ev any) (protocol.Tag, []byte, error) {
	tag, ok := c.table.TagOf(ev)
	if !ok {
		return 0, nil, fmt.Errorf("%T: %w", ev, ErrUnregistered)
	}
	payload, err := protocol.Marshal(ev)
	return tag, payload, err
}

// Broadcast sends ev to the peers matched by spec and mirrors it to the sink.
func (c *Channel) Broadcast(spec peer.Spec, ev any) error {
	if c.server == nil {
		return ErrNotServer
	}
	tag, payload, err := c.encode(ev)
	if err != nil {
		return err
	}
	if c.sink != nil {
		c.sink.Publish(Event{Session: c.session, Kind: Kind(ev), At: c.now(), Payload: ev})
	}
	return c.server.Send(spec, tag, payload)
}

// SendTo sends ev to one peer.
func (c *Channel) SendTo(id peer.ID, ev any) error {
	if c.server == nil {
		return ErrNotServer
	}
	tag, payload, err := c.encode(ev)
	if err != nil {
		return err
	}
	return c.server.SendTo(id, tag, payload)
}

// SendToServer sends ev from a client to its server.
func (c *Channel) SendToServer(ev any) error {
	if c.client == nil {
		return ErrNoClient
	}
	tag, payload, err := c.encode(ev)
	if err != nil {
		return err
	}
	return c.client.Send(tag, payload)
}

// Kind names an event for logs and sinks.
func Kind(ev any) string {
	switch ev.(type) {
	case protocol.StartGame:
		return "start_game"
	case protocol.BrickBreak:
		return "brick_break"
	case protocol.GameWin:
		return "game_win"
	case protocol.ConnectionBroadcast:
		return "peer_joined"
	case protocol.DisconnectBroadcast:
		return "peer_left"
	case protocol.Ping:
		return "ping"
	default:
		return fmt.Sprintf("%T", ev)
	}
}

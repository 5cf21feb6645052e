package transport

import (
	"fmt"
	"log"
	"sync"

	"breakout/peer"
	"breakout/protocol"
)

// Client is the single-peer side of a session. Deliver and Drop are called from
// backend goroutines; the rest belongs to the frame loop.
type Client struct {
	table  *protocol.Table
	logger *log.Logger
	conn   Conn
	in     inbox

	mu      sync.Mutex
	status  Status
	welcome protocol.Welcome
}

// NewClient wraps conn. The client is Connecting until the server's Welcome arrives.
func NewClient(table *protocol.Table, conn Conn, logger *log.Logger) *Client {
	return &Client{
		table:  table,
		logger: loggerOrStderr(logger),
		conn:   conn,
		status: Status{State: Connecting},
	}
}

func (c *Client) Table() *protocol.Table {
	return c.table
}

// Deliver queues one inbound frame. Handshake frames update the status directly.
func (c *Client) Deliver(frame []byte) {
	f, err := protocol.DecodeFrame(frame)
	if err != nil {
		c.logger.Printf("server: %v", err)
		return
	}
	if f.Tag == protocol.HandshakeTag {
		c.handshake(f)
		return
	}
	if !c.table.Known(f.Tag) {
		c.logger.Printf("server: dropping frame with tag %d", f.Tag)
		return
	}
	c.in.push(Inbound{Tag: f.Tag, Message: Message{Payload: f.Payload}})
}

func (c *Client) handshake(f protocol.Frame) {
	w, err := protocol.DecodePayload[protocol.Welcome](f)
	if err != nil {
		c.logger.Printf("server: bad welcome: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State != Connecting {
		return
	}
	c.welcome = w
	if w.Rejected != protocol.NotRejected {
		c.status = Status{State: Disconnected, Reason: w.Rejected.String()}
		return
	}
	c.status = Status{State: Connected}
}

// Drop marks the connection as gone. A nil err is a clean disconnect.
// An earlier Disconnected reason (such as a rejection) is kept.
func (c *Client) Drop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status.State {
	case Disconnected, Dropped:
		return
	}
	if err != nil {
		c.status = Status{State: Dropped, Err: err}
		return
	}
	c.status = Status{State: Disconnected, Reason: "connection closed"}
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Welcome returns the server's answer to Hello. Zero until connected.
func (c *Client) Welcome() protocol.Welcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.welcome
}

// ID is the id the server assigned to this client.
func (c *Client) ID() peer.ID {
	return c.Welcome().PeerID
}

// Poll drops last frame's inbound buffers and exposes what arrived since.
func (c *Client) Poll() {
	c.in.swap()
}

// Received returns this frame's messages for tag. The slice is valid until the next Poll.
func (c *Client) Received(tag protocol.Tag) []Message {
	return c.in.received(tag)
}

// ReceivedInOrder returns this frame's messages for any of tags in the order
// they arrived. The slice is valid until the next Poll.
func (c *Client) ReceivedInOrder(tags ...protocol.Tag) []Inbound {
	return c.in.inOrder(tags)
}

// Send sends payload to the server.
func (c *Client) Send(tag protocol.Tag, payload []byte) error {
	if st := c.Status(); st.State != Connected {
		return fmt.Errorf("send tag %d: %w (%v)", tag, ErrNotConnected, st)
	}
	rel, ok := c.table.Reliability(tag)
	if !ok {
		return fmt.Errorf("tag %d: %w", tag, ErrUnknownTag)
	}
	frame, err := protocol.EncodeFrame(tag, payload)
	if err != nil {
		return err
	}
	return c.conn.Send(frame, rel)
}

func (c *Client) Close() error {
	c.Drop(nil)
	return c.conn.Close()
}

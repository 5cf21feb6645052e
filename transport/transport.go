// Package transport is the connection layer under replication: server-assigned
// peer ids, reliable and best-effort sends, and per-frame inbound buffers.
//
// Backends (websocket in package network, in-memory Loopback here) only move
// frames. Buffering, handshake, and addressing live in Server and Client.
package transport

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"

	"breakout/peer"
	"breakout/protocol"
)

var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrClosed        = errors.New("connection closed")
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrUnknownTag    = errors.New("unregistered message tag")
	ErrNotConnected  = errors.New("not connected")
)

// Conn is one connection as seen by a backend. Send must not block: a full
// queue returns ErrSendQueueFull for reliable frames and drops unreliable ones.
type Conn interface {
	Send(frame []byte, rel protocol.Reliability) error
	Close() error
}

// Message is one inbound payload. From is the sender on a server and zero on a client.
type Message struct {
	From    peer.ID
	Payload []byte
}

type State uint8

const (
	Connecting State = iota
	Connected
	Disconnected
	Dropped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Status is the connection status of a client.
type Status struct {
	State  State
	Reason string // set when Disconnected
	Err    error  // set when Dropped
}

func (s Status) String() string {
	switch s.State {
	case Disconnected:
		return fmt.Sprintf("disconnected: %s", s.Reason)
	case Dropped:
		return fmt.Sprintf("dropped: %v", s.Err)
	default:
		return s.State.String()
	}
}

// Inbound is one message together with its tag.
type Inbound struct {
	Tag protocol.Tag
	Message
}

// inbox collects frames from backend goroutines until the frame loop polls.
type inbox struct {
	mu     sync.Mutex
	queued []Inbound
	frame  []Inbound
	byTag  map[protocol.Tag][]Message
}

func (b *inbox) push(in Inbound) {
	b.mu.Lock()
	b.queued = append(b.queued, in)
	b.mu.Unlock()
}

// swap discards the previous frame's buffers and exposes everything queued since.
func (b *inbox) swap() {
	b.mu.Lock()
	frame := b.queued
	b.queued = nil
	b.mu.Unlock()

	byTag := make(map[protocol.Tag][]Message)
	for _, in := range frame {
		byTag[in.Tag] = append(byTag[in.Tag], in.Message)
	}
	b.frame = frame
	b.byTag = byTag
}

func (b *inbox) received(tag protocol.Tag) []Message {
	return b.byTag[tag]
}

// inOrder returns this frame's messages carrying any of tags, in arrival order.
func (b *inbox) inOrder(tags []protocol.Tag) []Inbound {
	var out []Inbound
	for _, in := range b.frame {
		if slices.Contains(tags, in.Tag) {
			out = append(out, in)
		}
	}
	return out
}

func loggerOrStderr(logger *log.Logger) *log.Logger {
	if logger != nil {
		return logger
	}
	return log.New(os.Stderr, "transport: ", log.LstdFlags)
}

package transport

import (
	"log"
	"sync"

	"breakout/protocol"
)

// memConn hands frames straight to the other side's inbox.
type memConn struct {
	mu      sync.Mutex
	closed  bool
	deliver func([]byte)
	onClose func()
}

func (m *memConn) Send(frame []byte, _ protocol.Reliability) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	m.deliver(append([]byte(nil), frame...))
	return nil
}

func (m *memConn) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	if m.onClose != nil {
		m.onClose()
	}
	return nil
}

// Loopback connects an in-process client to s, as a host does for its own
// player. The client stays Connecting until s.HandleNewConns accepts it.
func Loopback(s *Server, hello protocol.Hello, logger *log.Logger) (*Client, error) {
	toServer := &memConn{}
	c := NewClient(s.table, toServer, logger)
	toClient := &memConn{
		deliver: c.Deliver,
		onClose: func() { c.Drop(nil) },
	}
	id, err := s.Attach(toClient, hello)
	if err != nil {
		return nil, err
	}
	toServer.deliver = func(frame []byte) { s.Deliver(id, frame) }
	toServer.onClose = func() { s.Detach(id, nil) }
	return c, nil
}

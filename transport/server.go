package transport

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"breakout/peer"
	"breakout/protocol"
)

// AcceptFunc decides on a pending connection. A Welcome with Rejected set turns it away.
type AcceptFunc func(id peer.ID, hello protocol.Hello) protocol.Welcome

type pendingJoin struct {
	id    peer.ID
	conn  Conn
	hello protocol.Hello
}

// Server is the hub side of a session. Attach, Deliver and Detach are called
// from backend goroutines; everything else belongs to the frame loop.
type Server struct {
	table  *protocol.Table
	logger *log.Logger
	in     inbox

	mu      sync.Mutex
	nextID  peer.ID
	conns   map[peer.ID]Conn
	pending []pendingJoin
	left    []peer.ID
	closed  bool

	gone []peer.ID
}

func NewServer(table *protocol.Table, logger *log.Logger) *Server {
	return &Server{
		table:  table,
		logger: loggerOrStderr(logger),
		nextID: 1,
		conns:  make(map[peer.ID]Conn),
	}
}

func (s *Server) Table() *protocol.Table {
	return s.table
}

// Attach registers a new connection that has sent hello. It stays pending until
// the next HandleNewConns.
func (s *Server) Attach(conn Conn, hello protocol.Hello) (peer.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	id := s.nextID
	s.nextID++
	s.pending = append(s.pending, pendingJoin{id: id, conn: conn, hello: hello})
	return id, nil
}

// Deliver queues one inbound frame from peer id.
func (s *Server) Deliver(id peer.ID, frame []byte) {
	f, err := protocol.DecodeFrame(frame)
	if err != nil {
		s.logger.Printf("peer %d: %v", id, err)
		return
	}
	if f.Tag == protocol.HandshakeTag || !s.table.Known(f.Tag) {
		s.logger.Printf("peer %d: dropping frame with tag %d", id, f.Tag)
		return
	}
	s.mu.Lock()
	_, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.in.push(Inbound{Tag: f.Tag, Message: Message{From: id, Payload: f.Payload}})
}

// Detach removes peer id after its connection ended. err is nil for a clean close.
func (s *Server) Detach(id peer.ID, err error) {
	s.mu.Lock()
	conn, accepted := s.conns[id]
	delete(s.conns, id)
	if accepted {
		s.left = append(s.left, id)
	}
	for i, p := range s.pending {
		if p.id == id {
			conn = p.conn
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if accepted {
		if err != nil {
			s.logger.Printf("peer %d dropped: %v", id, err)
		} else {
			s.logger.Printf("peer %d disconnected", id)
		}
	}
}

// HandleNewConns runs accept for every pending connection and answers each with its Welcome.
func (s *Server) HandleNewConns(accept AcceptFunc) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, p := range pending {
		w := accept(p.id, p.hello)
		w.PeerID = p.id
		frame, err := protocol.Encode(protocol.HandshakeTag, w)
		if err != nil {
			s.logger.Printf("peer %d: encode welcome: %v", p.id, err)
			_ = p.conn.Close()
			continue
		}
		if w.Rejected != protocol.NotRejected {
			_ = p.conn.Send(frame, protocol.Reliable)
			_ = p.conn.Close()
			s.logger.Printf("peer %d rejected: %v", p.id, w.Rejected)
			continue
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = p.conn.Close()
			continue
		}
		s.conns[p.id] = p.conn
		s.mu.Unlock()
		if err := p.conn.Send(frame, protocol.Reliable); err != nil {
			s.logger.Printf("peer %d: send welcome: %v", p.id, err)
		}
	}
}

// Poll drops last frame's inbound buffers and exposes what arrived since.
func (s *Server) Poll() {
	s.in.swap()
	s.mu.Lock()
	s.gone = s.left
	s.left = nil
	s.mu.Unlock()
}

// Received returns this frame's messages for tag. The slice is valid until the next Poll.
func (s *Server) Received(tag protocol.Tag) []Message {
	return s.in.received(tag)
}

// ReceivedInOrder returns this frame's messages for any of tags in the order
// they arrived. Messages from one peer keep that peer's send order.
func (s *Server) ReceivedInOrder(tags ...protocol.Tag) []Inbound {
	return s.in.inOrder(tags)
}

// Left returns the peers that disconnected before the last Poll.
func (s *Server) Left() []peer.ID {
	return s.gone
}

// Peers returns the accepted peers in id order.
func (s *Server) Peers() []peer.ID {
	s.mu.Lock()
	ids := make([]peer.ID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.Sort(ids)
	return ids
}

func (s *Server) frame(tag protocol.Tag, payload []byte) ([]byte, protocol.Reliability, error) {
	rel, ok := s.table.Reliability(tag)
	if !ok {
		return nil, 0, fmt.Errorf("tag %d: %w", tag, ErrUnknownTag)
	}
	frame, err := protocol.EncodeFrame(tag, payload)
	return frame, rel, err
}

// Send fans payload out to every accepted peer matched by spec. Failures for
// single peers are joined into the returned error; the others still receive it.
func (s *Server) Send(spec peer.Spec, tag protocol.Tag, payload []byte) error {
	frame, rel, err := s.frame(tag, payload)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range spec.Filter(s.Peers()) {
		s.mu.Lock()
		conn, ok := s.conns[id]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if err := conn.Send(frame, rel); err != nil {
			errs = append(errs, fmt.Errorf("peer %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// SendTo sends payload to exactly one peer.
func (s *Server) SendTo(id peer.ID, tag protocol.Tag, payload []byte) error {
	frame, rel, err := s.frame(tag, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("peer %d: %w", id, ErrUnknownPeer)
	}
	return conn.Send(frame, rel)
}

// Close disconnects every peer and refuses new ones.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]Conn, 0, len(s.conns)+len(s.pending))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	for _, p := range s.pending {
		conns = append(conns, p.conn)
	}
	s.conns = make(map[peer.ID]Conn)
	s.pending = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

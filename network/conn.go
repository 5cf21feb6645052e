// Package network carries transport frames over websockets.
package network

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"breakout/protocol"
	"breakout/transport"
)

const (
	readLimit  = 1 << 20 // 1MB
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	writeWait  = 10 * time.Second
	helloWait  = 10 * time.Second
	sendQueue  = 256
)

// wsConn is a transport.Conn over one websocket. Only writePump writes to ws.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:   ws,
		send: make(chan []byte, sendQueue),
		done: make(chan struct{}),
	}
}

// Send queues frame for the write pump. A full queue fails reliable frames
// and silently drops unreliable ones.
func (c *wsConn) Send(frame []byte, rel protocol.Reliability) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		if rel == protocol.Reliable {
			return transport.ErrSendQueueFull
		}
		return nil
	}
}

// Close stops the write pump after it flushes what is queued.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *wsConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *wsConn) write(frame []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			for {
				select {
				case frame := <-c.send:
					if err := c.write(frame); err != nil {
						return
					}
				default:
					_ = c.ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

// readPump hands every binary frame to deliver until the connection ends.
// It returns nil for a clean close from either side.
func (c *wsConn) readPump(deliver func([]byte)) error {
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		deliver(msg)
	}
}

var errNotHello = errors.New("first frame is not a hello")

func (c *wsConn) readHello() (protocol.Hello, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(helloWait))
	mt, msg, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Hello{}, fmt.Errorf("read hello: %w", err)
	}
	if mt != websocket.BinaryMessage {
		return protocol.Hello{}, errNotHello
	}
	f, err := protocol.DecodeFrame(msg)
	if err != nil {
		return protocol.Hello{}, fmt.Errorf("read hello: %w", err)
	}
	if f.Tag != protocol.HandshakeTag {
		return protocol.Hello{}, errNotHello
	}
	return protocol.DecodePayload[protocol.Hello](f)
}

package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"breakout/protocol"
	"breakout/transport"
)

// Dial connects to a /ws endpoint, retrying with exponential backoff up to
// attempts times, and sends hello. The client is Connecting until the server
// answers.
func Dial(ctx context.Context, url string, hello protocol.Hello, table *protocol.Table, attempts uint, logger *log.Logger) (*transport.Client, error) {
	logger = loggerOrStderr(logger)
	if attempts == 0 {
		attempts = 1
	}
	dial := func() (*websocket.Conn, error) {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if errors.Is(err, websocket.ErrBadHandshake) {
			// The server answered but is not a websocket endpoint.
			return nil, backoff.Permanent(err)
		}
		return ws, err
	}
	ws, err := backoff.Retry(ctx, dial,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Printf("dial %s: %v (retrying in %v)", url, err, wait)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	frame, err := protocol.Encode(protocol.HandshakeTag, hello)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	c := newWSConn(ws)
	client := transport.NewClient(table, c, logger)
	if err := c.Send(frame, protocol.Reliable); err != nil {
		_ = ws.Close()
		return nil, err
	}
	go c.writePump()
	go func() {
		err := c.readPump(client.Deliver)
		client.Drop(err)
		_ = c.Close()
	}()
	return client, nil
}

package transport

import (
	"errors"
	"testing"

	"breakout/peer"
	"breakout/protocol"
)

type note struct{ N int }
type blip struct{ N int }

func testTable(t *testing.T) (*protocol.Table, protocol.Tag, protocol.Tag) {
	t.Helper()
	r := protocol.NewRegistry()
	reliable := protocol.MustRegister[note](r, protocol.Reliable)
	lossy := protocol.MustRegister[blip](r, protocol.Unreliable)
	table, err := r.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return table, reliable, lossy
}

func acceptAll(id peer.ID, hello protocol.Hello) protocol.Welcome {
	return protocol.Welcome{TickHz: protocol.SimTickHz}
}

func join(t *testing.T, s *Server, name string) *Client {
	t.Helper()
	c, err := Loopback(s, protocol.Hello{V: protocol.Version, Name: name}, nil)
	if err != nil {
		t.Fatalf("loopback: %v", err)
	}
	if st := c.Status(); st.State != Connecting {
		t.Fatalf("status before accept = %v, want connecting", st)
	}
	s.HandleNewConns(acceptAll)
	if st := c.Status(); st.State != Connected {
		t.Fatalf("status after accept = %v, want connected", st)
	}
	return c
}

func payload(t *testing.T, n int) []byte {
	t.Helper()
	b, err := protocol.Marshal(note{N: n})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestLoopbackAssignsDistinctIDs(t *testing.T) {
	table, _, _ := testTable(t)
	s := NewServer(table, nil)
	a := join(t, s, "a")
	b := join(t, s, "b")
	if a.ID() == 0 || b.ID() == 0 || a.ID() == b.ID() {
		t.Fatalf("ids = %d,%d", a.ID(), b.ID())
	}
	if got := s.Peers(); len(got) != 2 || got[0] != a.ID() || got[1] != b.ID() {
		t.Fatalf("Peers = %v", got)
	}
}

func TestClientToServerCarriesSender(t *testing.T) {
	table, tag, _ := testTable(t)
	s := NewServer(table, nil)
	c := join(t, s, "a")

	if err := c.Send(tag, payload(t, 1)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := s.Received(tag); len(got) != 0 {
		t.Fatalf("messages visible before Poll: %d", len(got))
	}
	s.Poll()
	got := s.Received(tag)
	if len(got) != 1 || got[0].From != c.ID() {
		t.Fatalf("received = %+v", got)
	}
	s.Poll()
	if got := s.Received(tag); len(got) != 0 {
		t.Fatalf("poll should drain previous frame, still have %d", len(got))
	}
}

func TestServerSendHonorsSpec(t *testing.T) {
	table, tag, _ := testTable(t)
	s := NewServer(table, nil)
	a := join(t, s, "a")
	b := join(t, s, "b")

	if err := s.Send(peer.Except(a.ID()), tag, payload(t, 2)); err != nil {
		t.Fatalf("send: %v", err)
	}
	a.Poll()
	b.Poll()
	if n := len(a.Received(tag)); n != 0 {
		t.Fatalf("excluded peer got %d messages", n)
	}
	got := b.Received(tag)
	if len(got) != 1 {
		t.Fatalf("b got %d messages, want 1", len(got))
	}
	msg, err := protocol.Unmarshal[note](got[0].Payload)
	if err != nil || msg.N != 2 {
		t.Fatalf("payload = %+v, %v", msg, err)
	}
}

func TestSendToUnknownPeer(t *testing.T) {
	table, tag, _ := testTable(t)
	s := NewServer(table, nil)
	if err := s.SendTo(9, tag, payload(t, 1)); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("err = %v, want ErrUnknownPeer", err)
	}
	if err := s.Send(peer.All(), 99, payload(t, 1)); !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("err = %v, want ErrUnknownTag", err)
	}
}

func TestRejectedClientIsDisconnected(t *testing.T) {
	table, tag, _ := testTable(t)
	s := NewServer(table, nil)
	c, err := Loopback(s, protocol.Hello{V: protocol.Version}, nil)
	if err != nil {
		t.Fatalf("loopback: %v", err)
	}
	s.HandleNewConns(func(peer.ID, protocol.Hello) protocol.Welcome {
		return protocol.Welcome{Rejected: protocol.RejectMaxPlayers}
	})
	st := c.Status()
	if st.State != Disconnected || st.Reason != protocol.RejectMaxPlayers.String() {
		t.Fatalf("status = %v", st)
	}
	if len(s.Peers()) != 0 {
		t.Fatalf("rejected peer kept: %v", s.Peers())
	}
	if err := c.Send(tag, payload(t, 1)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send err = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectSurfacesOnPoll(t *testing.T) {
	table, tag, _ := testTable(t)
	s := NewServer(table, nil)
	a := join(t, s, "a")
	b := join(t, s, "b")
	id := a.ID()

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(s.Left()) != 0 {
		t.Fatalf("left visible before poll")
	}
	s.Poll()
	if left := s.Left(); len(left) != 1 || left[0] != id {
		t.Fatalf("Left = %v, want [%d]", left, id)
	}
	if err := s.SendTo(id, tag, payload(t, 1)); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("send to departed peer err = %v", err)
	}
	if err := s.Send(peer.Only(id), tag, payload(t, 1)); err != nil {
		t.Fatalf("stale spec should just match nobody, got %v", err)
	}
	if err := s.Send(peer.All(), tag, payload(t, 3)); err != nil {
		t.Fatalf("send: %v", err)
	}
	b.Poll()
	if n := len(b.Received(tag)); n != 1 {
		t.Fatalf("remaining peer got %d messages", n)
	}
	s.Poll()
	if len(s.Left()) != 0 {
		t.Fatalf("Left should reset every poll")
	}
}

func TestServerCloseDropsClients(t *testing.T) {
	table, _, _ := testTable(t)
	s := NewServer(table, nil)
	c := join(t, s, "a")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := c.Status(); st.State != Disconnected {
		t.Fatalf("status = %v, want disconnected", st)
	}
	if _, err := Loopback(s, protocol.Hello{}, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("attach after close err = %v", err)
	}
}

func TestDeliverDropsUnknownTags(t *testing.T) {
	table, _, _ := testTable(t)
	s := NewServer(table, nil)
	c := join(t, s, "a")
	frame, err := protocol.EncodeFrame(42, []byte{0xa0})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s.Deliver(c.ID(), frame)
	s.Deliver(c.ID(), []byte("garbage"))
	s.Poll()
	if n := len(s.Received(42)); n != 0 {
		t.Fatalf("unknown tag delivered %d messages", n)
	}
}

func TestReceivedInOrderInterleavesTags(t *testing.T) {
	table, reliable, lossy := testTable(t)
	s := NewServer(table, nil)
	c := join(t, s, "a")

	send := func(tag protocol.Tag, v any) {
		t.Helper()
		frame, err := protocol.Encode(tag, v)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		c.Deliver(frame)
	}
	send(reliable, note{N: 1})
	send(lossy, blip{N: 2})
	send(reliable, note{N: 3})
	c.Poll()

	got := c.ReceivedInOrder(reliable, lossy)
	if len(got) != 3 || got[0].Tag != reliable || got[1].Tag != lossy || got[2].Tag != reliable {
		t.Fatalf("in order = %+v", got)
	}
	last, err := protocol.Unmarshal[note](got[2].Payload)
	if err != nil || last.N != 3 {
		t.Fatalf("last payload = %+v, %v", last, err)
	}
	if only := c.ReceivedInOrder(lossy); len(only) != 1 {
		t.Fatalf("lossy only = %+v", only)
	}

	c.Poll()
	if rest := c.ReceivedInOrder(reliable, lossy); len(rest) != 0 {
		t.Fatalf("poll should drain previous frame, still have %d", len(rest))
	}
}

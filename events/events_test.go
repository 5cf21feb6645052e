package events

import (
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"testing"
	"time"

	"breakout/peer"
	"breakout/protocol"
	"breakout/transport"
)

var quiet = log.New(io.Discard, "", 0)

func eventTable(t *testing.T, pingRel protocol.Reliability) *protocol.Table {
	t.Helper()
	reg := protocol.NewRegistry()
	protocol.MustRegister[protocol.ConnectionBroadcast](reg, protocol.Reliable)
	protocol.MustRegister[protocol.DisconnectBroadcast](reg, protocol.Reliable)
	protocol.MustRegister[protocol.StartGame](reg, protocol.Reliable)
	protocol.MustRegister[protocol.BrickBreak](reg, protocol.Reliable)
	protocol.MustRegister[protocol.GameWin](reg, protocol.Reliable)
	protocol.MustRegister[protocol.Ping](reg, pingRel)
	table, err := reg.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return table
}

type recorder struct {
	joined    []string
	left      []peer.ID
	destroyed []uint32
	won       []protocol.Team
	started   []protocol.StartGame
	rtts      []time.Duration
	order     []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		GameStarted: func(s protocol.StartGame) {
			r.started = append(r.started, s)
			r.order = append(r.order, "start")
		},
		ObjectDestroyed: func(id uint32) {
			r.destroyed = append(r.destroyed, id)
			r.order = append(r.order, fmt.Sprintf("brick %d", id))
		},
		TeamWon: func(w protocol.Team) {
			r.won = append(r.won, w)
			r.order = append(r.order, "win")
		},
		PeerJoined: func(id peer.ID, name string) {
			r.joined = append(r.joined, name)
			r.order = append(r.order, fmt.Sprintf("join %d", id))
		},
		PeerLeft: func(id peer.ID) {
			r.left = append(r.left, id)
			r.order = append(r.order, fmt.Sprintf("leave %d", id))
		},
		Ping: func(_ protocol.Ping, rtt time.Duration) {
			r.rtts = append(r.rtts, rtt)
			r.order = append(r.order, "ping")
		},
	}
}

type sinkFunc func(Event)

func (f sinkFunc) Publish(ev Event) { f(ev) }

type pair struct {
	server *Channel
	client *Channel
	s      *transport.Server
	c      *transport.Client
	rec    *recorder
}

func newPair(t *testing.T, opts ...Option) *pair {
	t.Helper()
	table := eventTable(t, protocol.Reliable)
	s := transport.NewServer(table, quiet)
	c, err := transport.Loopback(s, protocol.Hello{V: protocol.Version, Name: "bob"}, quiet)
	if err != nil {
		t.Fatalf("loopback: %v", err)
	}
	s.HandleNewConns(func(peer.ID, protocol.Hello) protocol.Welcome { return protocol.Welcome{} })

	server, err := New(table, s, nil, Hooks{}, append([]Option{WithLogger(quiet)}, opts...)...)
	if err != nil {
		t.Fatalf("server channel: %v", err)
	}
	rec := &recorder{}
	client, err := New(table, nil, c, rec.hooks(), append([]Option{WithLogger(quiet)}, opts...)...)
	if err != nil {
		t.Fatalf("client channel: %v", err)
	}
	return &pair{server: server, client: client, s: s, c: c, rec: rec}
}

func TestBrickBreakReachesClientHook(t *testing.T) {
	p := newPair(t)
	if err := p.server.Broadcast(peer.All(), protocol.BrickBreak{ID: 17}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	p.c.Poll()
	p.client.Dispatch()
	if len(p.rec.destroyed) != 1 || p.rec.destroyed[0] != 17 {
		t.Fatalf("destroyed = %v, want [17]", p.rec.destroyed)
	}

	// Nothing new next frame.
	p.c.Poll()
	p.client.Dispatch()
	if len(p.rec.destroyed) != 1 {
		t.Fatalf("event dispatched twice: %v", p.rec.destroyed)
	}
}

func TestEventsDispatchInArrivalOrder(t *testing.T) {
	p := newPair(t)
	for _, ev := range []any{
		protocol.ConnectionBroadcast{Name: "alice", Peer: 1},
		protocol.StartGame{Session: "s1", Ball: 9},
		protocol.BrickBreak{ID: 4},
		protocol.GameWin{Winner: protocol.Right},
		protocol.DisconnectBroadcast{Peer: 1},
		protocol.ConnectionBroadcast{Name: "carol", Peer: 3},
		protocol.BrickBreak{ID: 5},
	} {
		if err := p.server.Broadcast(peer.All(), ev); err != nil {
			t.Fatalf("broadcast %T: %v", ev, err)
		}
	}
	p.c.Poll()
	p.client.Dispatch()

	want := []string{"join 1", "start", "brick 4", "win", "leave 1", "join 3", "brick 5"}
	if !slices.Equal(p.rec.order, want) {
		t.Fatalf("hook order = %v, want %v", p.rec.order, want)
	}
	if len(p.rec.started) != 1 || p.rec.started[0].Session != "s1" || p.rec.started[0].Ball != 9 {
		t.Fatalf("started = %+v", p.rec.started)
	}
	if !slices.Equal(p.rec.joined, []string{"alice", "carol"}) {
		t.Fatalf("joined = %v", p.rec.joined)
	}
	if len(p.rec.won) != 1 || p.rec.won[0] != protocol.Right {
		t.Fatalf("won = %v", p.rec.won)
	}
}

func TestLeaveBeforeJoinKeepsOrder(t *testing.T) {
	p := newPair(t)
	if err := p.server.Broadcast(peer.All(), protocol.DisconnectBroadcast{Peer: 1}); err != nil {
		t.Fatalf("broadcast leave: %v", err)
	}
	if err := p.server.Broadcast(peer.All(), protocol.ConnectionBroadcast{Name: "carol", Peer: 3}); err != nil {
		t.Fatalf("broadcast join: %v", err)
	}
	p.c.Poll()
	p.client.Dispatch()

	if want := []string{"leave 1", "join 3"}; !slices.Equal(p.rec.order, want) {
		t.Fatalf("hook order = %v, want %v", p.rec.order, want)
	}
}

func TestBroadcastHonorsSpec(t *testing.T) {
	p := newPair(t)
	if err := p.server.Broadcast(peer.Except(p.c.ID()), protocol.BrickBreak{ID: 3}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	p.c.Poll()
	p.client.Dispatch()
	if len(p.rec.destroyed) != 0 {
		t.Fatalf("excluded peer got %v", p.rec.destroyed)
	}

	if err := p.server.SendTo(p.c.ID(), protocol.BrickBreak{ID: 4}); err != nil {
		t.Fatalf("send to: %v", err)
	}
	p.c.Poll()
	p.client.Dispatch()
	if len(p.rec.destroyed) != 1 || p.rec.destroyed[0] != 4 {
		t.Fatalf("destroyed = %v, want [4]", p.rec.destroyed)
	}
}

func TestPingIsEchoedWithRTT(t *testing.T) {
	start := time.Unix(100, 0)
	now := start
	p := newPair(t, WithClock(func() time.Time { return now }))
	pinger := NewPinger(p.client, time.Second)

	if err := pinger.Tick(start); err != nil {
		t.Fatalf("ping: %v", err)
	}
	// Not due yet.
	if err := pinger.Tick(start.Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("ping: %v", err)
	}

	p.s.Poll()
	p.server.Dispatch()

	now = start.Add(30 * time.Millisecond)
	p.c.Poll()
	p.client.Dispatch()

	if len(p.rec.rtts) != 1 {
		t.Fatalf("rtts = %v, want one sample", p.rec.rtts)
	}
	if p.rec.rtts[0] != 30*time.Millisecond {
		t.Fatalf("rtt = %v, want 30ms", p.rec.rtts[0])
	}
}

func TestServerIgnoresWorldEventsFromClients(t *testing.T) {
	p := newPair(t)
	if err := p.client.SendToServer(protocol.GameWin{Winner: protocol.Left}); err != nil {
		t.Fatalf("send: %v", err)
	}
	p.s.Poll()
	p.server.Dispatch()

	p.c.Poll()
	p.client.Dispatch()
	if len(p.rec.won) != 0 {
		t.Fatalf("client-originated win was relayed: %v", p.rec.won)
	}
}

func TestSinkSeesBroadcasts(t *testing.T) {
	var got []Event
	p := newPair(t, WithSink(sinkFunc(func(ev Event) { got = append(got, ev) })))
	p.server.SetSession("s-1")

	if err := p.server.Broadcast(peer.All(), protocol.GameWin{Winner: protocol.Left}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(got) != 1 || got[0].Kind != "game_win" || got[0].Session != "s-1" {
		t.Fatalf("sink got %+v", got)
	}
}

func TestRoleErrors(t *testing.T) {
	p := newPair(t)
	if err := p.client.Broadcast(peer.All(), protocol.BrickBreak{}); !errors.Is(err, ErrNotServer) {
		t.Fatalf("client broadcast err = %v, want ErrNotServer", err)
	}
	if err := p.client.SendTo(1, protocol.BrickBreak{}); !errors.Is(err, ErrNotServer) {
		t.Fatalf("client send to err = %v, want ErrNotServer", err)
	}
	if err := p.server.SendToServer(protocol.Ping{}); !errors.Is(err, ErrNoClient) {
		t.Fatalf("server send to server err = %v, want ErrNoClient", err)
	}
	if err := p.server.Broadcast(peer.All(), struct{}{}); !errors.Is(err, ErrUnregistered) {
		t.Fatalf("unregistered err = %v, want ErrUnregistered", err)
	}
}

func TestNewRejectsUnreliableEvents(t *testing.T) {
	table := eventTable(t, protocol.Unreliable)
	if _, err := New(table, nil, nil, Hooks{}, WithLogger(quiet)); !errors.Is(err, ErrNotReliable) {
		t.Fatalf("err = %v, want ErrNotReliable", err)
	}
}

func TestNewRequiresEveryEvent(t *testing.T) {
	reg := protocol.NewRegistry()
	protocol.MustRegister[protocol.Ping](reg, protocol.Reliable)
	table, err := reg.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := New(table, nil, nil, Hooks{}); !errors.Is(err, ErrUnregistered) {
		t.Fatalf("err = %v, want ErrUnregistered", err)
	}
}

func TestKind(t *testing.T) {
	if got := Kind(protocol.BrickBreak{}); got != "brick_break" {
		t.Fatalf("Kind = %q", got)
	}
	if got := Kind(3); got != "int" {
		t.Fatalf("Kind(int) = %q", got)
	}
}

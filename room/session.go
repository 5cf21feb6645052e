package room

import (
	"time"

	"breakout/game"
	"breakout/netsync"
	"breakout/peer"
	"breakout/protocol"
)

// session owns everything that lives between StartGame and the return to the lobby.
type session struct {
	id      string
	world   *game.World
	ball    netsync.ObjectID
	paddles map[protocol.Team]netsync.ObjectID
	peers   map[protocol.Team]peer.ID
	names   map[protocol.Team]string
	started time.Time
	broken  int
}

func newSession(id string, now time.Time) *session {
	return &session{
		id:      id,
		world:   game.NewWorld(),
		paddles: make(map[protocol.Team]netsync.ObjectID, 2),
		peers:   make(map[protocol.Team]peer.ID, 2),
		names:   make(map[protocol.Team]string, 2),
		started: now,
	}
}

func sessionFromStart(start protocol.StartGame, now time.Time) *session {
	s := newSession(start.Session, now)
	s.ball = netsync.ObjectID(start.Ball)
	s.paddles[protocol.Left] = netsync.ObjectID(start.LeftPaddle)
	s.paddles[protocol.Right] = netsync.ObjectID(start.RightPaddle)
	s.peers[protocol.Left] = start.LeftPeer
	s.peers[protocol.Right] = start.RightPeer
	return s
}

func (s *session) startMessage() protocol.StartGame {
	return protocol.StartGame{
		Session:     s.id,
		Ball:        uint64(s.ball),
		LeftPaddle:  uint64(s.paddles[protocol.Left]),
		RightPaddle: uint64(s.paddles[protocol.Right]),
		LeftPeer:    s.peers[protocol.Left],
		RightPeer:   s.peers[protocol.Right],
	}
}

func (s *session) teamOf(id peer.ID) (protocol.Team, bool) {
	for team, p := range s.peers {
		if p == id {
			return team, true
		}
	}
	return 0, false
}

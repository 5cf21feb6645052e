package room

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"breakout/events"
	"breakout/game"
	"breakout/netsync"
	"breakout/peer"
	"breakout/protocol"
	"breakout/store"
	"breakout/transport"
)

const dt = 1.0 / protocol.SimTickHz

var teams = [...]protocol.Team{protocol.Left, protocol.Right}

var ErrNoTransport = errors.New("room needs a server or a client")

type State uint8

const (
	Lobby State = iota
	Game
	GameOver
)

func (s State) String() string {
	switch s {
	case Lobby:
		return "lobby"
	case Game:
		return "game"
	case GameOver:
		return "game over"
	default:
		return "unknown"
	}
}

// MatchRecorder receives finished matches. Enqueue must not block.
type MatchRecorder interface {
	Enqueue(m store.Match) bool
}

type Options struct {
	Server *transport.Server
	Client *transport.Client
	// Autopilot steers the local paddle toward the ball instead of Input.
	Autopilot      bool
	PingInterval   time.Duration
	Logger         *log.Logger
	TracerProvider trace.TracerProvider
	Sink           events.Sink
	Matches        MatchRecorder
	Now            func() time.Time
}

// Room runs one two-player session on a single goroutine. A server-only room
// referees; a room with both handles is a host that also plays.
type Room struct {
	Inbox chan any

	schema    *Schema
	server    *transport.Server
	client    *transport.Client
	rep       *netsync.Replicator
	events    *events.Channel
	pinger    *events.Pinger
	matches   MatchRecorder
	logger    *log.Logger
	now       func() time.Time
	autopilot bool

	frame     int
	state     State
	roster    Roster
	session   *session
	winner    protocol.Team
	lobbyAt   int
	move      float64
	linkState transport.State
	latency   time.Duration
	measured  bool
}

// New builds a room around schema. A Schema serves exactly one Room.
func New(schema *Schema, opts Options) (*Room, error) {
	if schema == nil {
		return nil, errors.New("room: schema is required")
	}
	if opts.Server == nil && opts.Client == nil {
		return nil, ErrNoTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "room: ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := &Room{
		Inbox:     make(chan any, 64),
		schema:    schema,
		server:    opts.Server,
		client:    opts.Client,
		matches:   opts.Matches,
		logger:    logger,
		now:       now,
		autopilot: opts.Autopilot,
		linkState: transport.Connecting,
	}

	r.rep = netsync.NewReplicator(opts.Server, opts.Client,
		netsync.WithLogger(logger),
		netsync.WithTracerProvider(opts.TracerProvider),
	)
	if err := r.rep.Attach(schema.Transforms, schema.Velocities); err != nil {
		return nil, err
	}

	evOpts := []events.Option{events.WithLogger(logger), events.WithClock(now)}
	if opts.Sink != nil {
		evOpts = append(evOpts, events.WithSink(opts.Sink))
	}
	ch, err := events.New(schema.Table, opts.Server, opts.Client, r.hooks(), evOpts...)
	if err != nil {
		return nil, err
	}
	r.events = ch
	if opts.Server == nil {
		r.pinger = events.NewPinger(ch, opts.PingInterval)
	}
	return r, nil
}

func (r *Room) hooks() events.Hooks {
	return events.Hooks{
		PeerJoined: func(id peer.ID, name string) {
			if _, ok := r.roster.Add(id, name); !ok {
				r.logger.Printf("no free seat for %s (peer %d)", name, id)
			}
		},
		PeerLeft: func(id peer.ID) {
			r.roster.Remove(id)
		},
		GameStarted: r.joinGame,
		ObjectDestroyed: func(id uint32) {
			if r.session != nil && r.session.world.RemoveBrick(id) {
				r.session.broken++
			}
		},
		TeamWon: func(winner protocol.Team) {
			r.finish(winner, "")
		},
		Ping: func(_ protocol.Ping, rtt time.Duration) {
			r.latency = rtt
			r.measured = true
		},
	}
}

// Run steps the room at protocol.SimTickHz and serves Inbox until ctx is done.
func (r *Room) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / protocol.SimTickHz)
	defer ticker.Stop()
	defer r.rep.Release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-r.Inbox:
			r.handleCommand(cmd)
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

func (r *Room) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case Input:
		r.move = max(-1, min(1, c.Move))
	case Query:
		c.Reply <- r.Snapshot()
	default:
		r.logger.Printf("unknown command %T", cmd)
	}
}

// Step runs one frame: replication, connections, events, state, simulation, ping.
func (r *Room) Step(ctx context.Context) {
	r.frame++
	r.rep.Tick(ctx)
	r.handleConnections()
	r.events.Dispatch()
	r.updateState()
	r.simulate()
	r.ping()
}

func (r *Room) handleConnections() {
	if r.server == nil {
		r.watchClient()
		return
	}

	// Departures free their seats before this frame's joins are admitted.
	for _, id := range r.server.Left() {
		r.playerLeft(id)
	}

	var joined []Player
	r.server.HandleNewConns(func(id peer.ID, hello protocol.Hello) protocol.Welcome {
		w, p, ok := r.admit(id, hello)
		if ok {
			joined = append(joined, p)
		}
		return w
	})
	for _, p := range joined {
		r.logger.Printf("%s joined as peer %d on the %v", p.Name, p.Peer, p.Team)
		r.broadcast(peer.All(), protocol.ConnectionBroadcast{Name: p.Name, Peer: p.Peer})
	}
}

func (r *Room) admit(id peer.ID, hello protocol.Hello) (protocol.Welcome, Player, bool) {
	if hello.V != protocol.Version {
		return protocol.Welcome{Rejected: protocol.RejectVersion}, Player{}, false
	}
	var existing *protocol.PlayerInfo
	if ps := r.roster.Players(); len(ps) > 0 {
		existing = &protocol.PlayerInfo{Peer: ps[0].Peer, Name: ps[0].Name}
	}
	p, ok := r.roster.Add(id, hello.Name)
	if !ok {
		return protocol.Welcome{Rejected: protocol.RejectMaxPlayers}, Player{}, false
	}
	return protocol.Welcome{TickHz: protocol.SimTickHz, Existing: existing}, p, true
}

func (r *Room) playerLeft(id peer.ID) {
	p, ok := r.roster.Remove(id)
	if !ok {
		return
	}
	r.logger.Printf("%s (peer %d) left", p.Name, id)
	r.broadcast(peer.All(), protocol.DisconnectBroadcast{Peer: id})
	if r.state == Game && r.session != nil {
		if _, playing := r.session.teamOf(id); playing {
			r.finish(p.Team.Opponent(), "disconnect")
		}
	}
}

func (r *Room) watchClient() {
	st := r.client.Status()
	if st.State == r.linkState {
		return
	}
	r.linkState = st.State
	switch st.State {
	case transport.Connected:
		r.logger.Printf("connected as peer %d", r.client.ID())
		if ex := r.client.Welcome().Existing; ex != nil {
			r.roster.Add(ex.Peer, ex.Name)
		}
	case transport.Disconnected, transport.Dropped:
		r.logger.Printf("server connection lost: %v", st)
		if r.session != nil {
			r.endSession()
		}
		r.state = Lobby
		r.roster.Reset()
	}
}

func (r *Room) updateState() {
	switch r.state {
	case Lobby:
		if r.server != nil && r.roster.Full() {
			r.startGame()
		}
	case GameOver:
		if r.frame >= r.lobbyAt {
			r.endSession()
		}
	}
}

// startGame creates the session on the server and tells every peer about it.
func (r *Room) startGame() {
	s := newSession(uuid.NewString(), r.now())
	s.ball = netsync.NewObjectID()
	for _, p := range r.roster.Players() {
		s.paddles[p.Team] = netsync.NewObjectID()
		s.peers[p.Team] = p.Peer
		s.names[p.Team] = p.Name
	}
	r.session = s
	r.state = Game
	r.winner = 0
	r.events.SetSession(s.id)
	r.broadcast(peer.All(), s.startMessage())

	w := s.world
	r.bindTransform(s.ball, &w.Ball.Transform, netsync.To(peer.All()))
	r.bindVelocity(s.ball, &w.Ball.Velocity, netsync.To(peer.All()))
	self, playing := r.self()
	for _, team := range teams {
		owner := s.peers[team]
		dir := netsync.ToFrom(peer.Except(owner), peer.Only(owner))
		if playing && owner == self {
			dir = netsync.To(peer.Except(self))
		}
		r.bindTransform(s.paddles[team], &w.Paddles[team].Body.Transform, dir)
	}
	r.logger.Printf("game %s started: %s vs %s", s.id, s.names[protocol.Left], s.names[protocol.Right])
}

// joinGame mirrors a StartGame on a client.
func (r *Room) joinGame(start protocol.StartGame) {
	if r.session != nil {
		r.endSession()
	}
	s := sessionFromStart(start, r.now())
	for _, team := range teams {
		p, _ := r.roster.ByPeer(s.peers[team])
		s.names[team] = p.Name
	}
	r.roster.Reset()
	for _, team := range teams {
		r.roster.place(Player{Peer: s.peers[team], Name: s.names[team], Team: team})
	}
	r.session = s
	r.state = Game
	r.winner = 0
	r.events.SetSession(s.id)

	w := s.world
	r.bindTransform(s.ball, &w.Ball.Transform, netsync.From(peer.All()))
	r.bindVelocity(s.ball, &w.Ball.Velocity, netsync.From(peer.All()))
	self := r.client.ID()
	for _, team := range teams {
		dir := netsync.From(peer.All())
		if s.peers[team] == self {
			dir = netsync.To(peer.All())
		}
		r.bindTransform(s.paddles[team], &w.Paddles[team].Body.Transform, dir)
	}
	r.logger.Printf("joined game %s", s.id)
}

func (r *Room) bindTransform(id netsync.ObjectID, t *game.Transform, dir netsync.Direction) {
	if _, err := r.schema.Transforms.Bind(id, netsync.Ptr(t), dir); err != nil {
		r.logger.Printf("transform of %v stays local: %v", id, err)
	}
}

func (r *Room) bindVelocity(id netsync.ObjectID, v *game.Velocity, dir netsync.Direction) {
	if _, err := r.schema.Velocities.Bind(id, netsync.Ptr(v), dir); err != nil {
		r.logger.Printf("velocity of %v stays local: %v", id, err)
	}
}

// self is the local player's peer id, if this room has a connected client.
func (r *Room) self() (peer.ID, bool) {
	if r.client == nil || r.client.Status().State != transport.Connected {
		return 0, false
	}
	return r.client.ID(), true
}

func (r *Room) localTeam() (protocol.Team, bool) {
	id, ok := r.self()
	if !ok || r.session == nil {
		return 0, false
	}
	return r.session.teamOf(id)
}

func (r *Room) simulate() {
	if r.state != Game || r.session == nil {
		return
	}
	w := r.session.world
	if team, ok := r.localTeam(); ok {
		if r.autopilot {
			game.TrackBall(w, team)
		} else {
			w.MovePaddle(team, r.move)
		}
	}

	hits := game.Step(w, dt)
	if r.server == nil {
		// Clients only remove bricks on BrickBreak.
		return
	}
	for _, h := range hits {
		switch h.Kind {
		case game.CollisionBrick:
			if w.RemoveBrick(h.Brick) {
				r.session.broken++
				r.broadcast(peer.All(), protocol.BrickBreak{ID: h.Brick})
			}
		case game.CollisionTarget:
			r.finish(h.Team.Opponent(), "target")
			return
		}
	}
}

// finish ends the current game. Only the first call per session has any effect.
func (r *Room) finish(winner protocol.Team, reason string) {
	if r.state != Game {
		return
	}
	r.state = GameOver
	r.winner = winner
	r.lobbyAt = r.frame + protocol.GameOverDwellSeconds*protocol.SimTickHz
	r.logger.Printf("%v team wins", winner)
	if r.server == nil {
		return
	}
	r.broadcast(peer.All(), protocol.GameWin{Winner: winner})
	if r.matches != nil && r.session != nil {
		s := r.session
		r.matches.Enqueue(store.Match{
			Session:   s.id,
			Winner:    winner.String(),
			Reason:    reason,
			Left:      s.names[protocol.Left],
			Right:     s.names[protocol.Right],
			Bricks:    s.broken,
			StartedAt: s.started,
			EndedAt:   r.now(),
		})
	}
}

// endSession releases every binding and returns to the lobby.
func (r *Room) endSession() {
	r.rep.Release()
	r.session = nil
	r.state = Lobby
	r.events.SetSession("")
}

func (r *Room) ping() {
	if r.pinger == nil || r.linkState != transport.Connected {
		return
	}
	if err := r.pinger.Tick(r.now()); err != nil {
		r.logger.Printf("ping: %v", err)
	}
}

func (r *Room) broadcast(spec peer.Spec, ev any) {
	if err := r.events.Broadcast(spec, ev); err != nil {
		r.logger.Printf("broadcast %s: %v", events.Kind(ev), err)
	}
}

func (r *Room) State() State {
	return r.state
}

// Status is the connection label shown to the player.
func (r *Room) Status() string {
	switch {
	case r.server != nil:
		return "Server Listening"
	case r.client.Status().State == transport.Connected:
		return "Client connected"
	default:
		return "Client not connected"
	}
}

func (r *Room) Snapshot() Snapshot {
	snap := Snapshot{
		State:   r.state.String(),
		Status:  r.Status(),
		Players: r.roster.Players(),
		Frame:   r.frame,
	}
	if r.session != nil {
		snap.Session = r.session.id
		snap.Bricks = r.session.world.BrickCount()
	}
	if r.state == GameOver {
		snap.Winner = r.winner.String()
	}
	if r.measured {
		snap.LatencyMS = r.latency.Milliseconds()
	}
	return snap
}

package room

import (
	"fmt"

	"breakout/peer"
	"breakout/protocol"
)

type Player struct {
	Peer peer.ID       `json:"peer"`
	Name string        `json:"name"`
	Team protocol.Team `json:"team"`
}

// Roster has two seats. The first player to join takes Left.
type Roster struct {
	seats [2]*Player
}

func seatTeam(i int) protocol.Team {
	if i == 0 {
		return protocol.Left
	}
	return protocol.Right
}

// Add seats id in the first free seat. Adding a seated peer returns its seat.
func (r *Roster) Add(id peer.ID, name string) (Player, bool) {
	if p, ok := r.ByPeer(id); ok {
		return p, true
	}
	for i, s := range r.seats {
		if s != nil {
			continue
		}
		if name == "" {
			name = fmt.Sprintf("Player %d", i+1)
		}
		r.seats[i] = &Player{Peer: id, Name: name, Team: seatTeam(i)}
		return *r.seats[i], true
	}
	return Player{}, false
}

func (r *Roster) Remove(id peer.ID) (Player, bool) {
	for i, s := range r.seats {
		if s != nil && s.Peer == id {
			r.seats[i] = nil
			return *s, true
		}
	}
	return Player{}, false
}

func (r *Roster) ByPeer(id peer.ID) (Player, bool) {
	for _, s := range r.seats {
		if s != nil && s.Peer == id {
			return *s, true
		}
	}
	return Player{}, false
}

func (r *Roster) Seat(team protocol.Team) (Player, bool) {
	for i, s := range r.seats {
		if s != nil && seatTeam(i) == team {
			return *s, true
		}
	}
	return Player{}, false
}

func (r *Roster) Full() bool {
	return r.seats[0] != nil && r.seats[1] != nil
}

// Players returns the seated players, Left first.
func (r *Roster) Players() []Player {
	out := make([]Player, 0, 2)
	for _, s := range r.seats {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (r *Roster) Reset() {
	r.seats = [2]*Player{}
}

// place puts p in its team's seat, replacing whoever sat there.
func (r *Roster) place(p Player) {
	r.Remove(p.Peer)
	i := 0
	if p.Team == protocol.Right {
		i = 1
	}
	r.seats[i] = &p
}

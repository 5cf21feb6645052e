package protocol

import "breakout/peer"

// Team is a side of the arena.
type Team uint8

const (
	Left Team = iota + 1
	Right
)

func (t Team) Opponent() Team {
	if t == Left {
		return Right
	}
	return Left
}

func (t Team) String() string {
	switch t {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "none"
	}
}

type RejectReason uint8

const (
	NotRejected RejectReason = iota
	RejectMaxPlayers
	RejectVersion
)

func (r RejectReason) String() string {
	switch r {
	case RejectMaxPlayers:
		return "max players reached"
	case RejectVersion:
		return "protocol version mismatch"
	default:
		return "accepted"
	}
}

type PlayerInfo struct {
	Peer peer.ID `cbor:"peer"`
	Name string  `cbor:"name"`
}

// Welcome answers Hello on HandshakeTag. Existing names the player already seated, if any.
type Welcome struct {
	PeerID   peer.ID      `cbor:"peer"`
	TickHz   int          `cbor:"tickHz"`
	Existing *PlayerInfo  `cbor:"existing,omitempty"`
	Rejected RejectReason `cbor:"rejected,omitempty"`
}

// ConnectionBroadcast tells everyone a player took a seat.
type ConnectionBroadcast struct {
	Name string  `cbor:"name"`
	Peer peer.ID `cbor:"peer"`
}

// DisconnectBroadcast tells everyone a player left.
type DisconnectBroadcast struct {
	Peer peer.ID `cbor:"peer"`
}

// StartGame moves every peer into the game and names the replicated objects.
type StartGame struct {
	Session     string  `cbor:"session"`
	Ball        uint64  `cbor:"ball"`
	LeftPaddle  uint64  `cbor:"leftPaddle"`
	RightPaddle uint64  `cbor:"rightPaddle"`
	LeftPeer    peer.ID `cbor:"leftPeer"`
	RightPeer   peer.ID `cbor:"rightPeer"`
}

type GameWin struct {
	Winner Team `cbor:"winner"`
}

// BrickBreak removes one brick by id.
type BrickBreak struct {
	ID uint32 `cbor:"id"`
}

// TransformMsg is the networked part of a transform. Depth and scale are not sent.
type TransformMsg struct {
	X        float32 `cbor:"x"`
	Y        float32 `cbor:"y"`
	Rotation float32 `cbor:"r,omitempty"`
}

// VelocityMsg is the networked part of a velocity. Angular velocity is not sent.
type VelocityMsg struct {
	X float32 `cbor:"x"`
	Y float32 `cbor:"y"`
}

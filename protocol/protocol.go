package protocol

import "time"

// Version is sent in Hello; the server rejects other versions.
const Version = 1

const (
	SimTickHz            = 40
	PingInterval         = time.Second
	GameOverDwellSeconds = 3
)

// HandshakeTag carries Hello and Welcome frames. Registered messages start at 1.
const HandshakeTag Tag = 0

// Reliability is the transport class a message type travels on.
type Reliability uint8

const (
	// Reliable messages are delivered in order or the send fails.
	Reliable Reliability = iota + 1
	// Unreliable messages are best effort and may be dropped under load.
	Unreliable
)

func (r Reliability) String() string {
	switch r {
	case Reliable:
		return "reliable"
	case Unreliable:
		return "unreliable"
	default:
		return "unknown"
	}
}

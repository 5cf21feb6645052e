package protocol

// Messages a client originates.

// Hello opens every connection on HandshakeTag.
type Hello struct {
	V    int    `cbor:"v"`
	Name string `cbor:"name,omitempty"`
}

// Ping is a latency probe. The server echoes it back unmodified.
type Ping struct {
	SentAt int64 `cbor:"sentAt"` // unix nanoseconds on the client clock
}

package room

// Commands accepted on Room.Inbox.

// Input sets the local paddle direction in [-1, 1].
type Input struct {
	Move float64
}

// Query asks for a Snapshot of the room.
type Query struct {
	Reply chan<- Snapshot
}

type Snapshot struct {
	State     string   `json:"state"`
	Status    string   `json:"status"`
	Players   []Player `json:"players"`
	Session   string   `json:"session,omitempty"`
	Bricks    int      `json:"bricks"`
	Winner    string   `json:"winner,omitempty"`
	LatencyMS int64    `json:"latencyMs,omitempty"`
	Frame     int      `json:"frame"`
}

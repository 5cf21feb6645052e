package room

import (
	"fmt"

	"breakout/game"
	"breakout/netsync"
	"breakout/protocol"
)

// Schema is the message table every peer builds identically, plus the sync
// channels registered into it.
type Schema struct {
	Table      *protocol.Table
	Transforms *netsync.Channel[game.Transform, protocol.TransformMsg]
	Velocities *netsync.Channel[game.Velocity, protocol.VelocityMsg]
}

// NewSchema registers the events first and the sync channels after them.
// Changing the order changes the wire format.
func NewSchema() (*Schema, error) {
	reg := protocol.NewRegistry()
	for _, v := range []any{
		protocol.ConnectionBroadcast{},
		protocol.DisconnectBroadcast{},
		protocol.StartGame{},
		protocol.GameWin{},
		protocol.BrickBreak{},
		protocol.Ping{},
	} {
		if _, err := reg.Register(v, protocol.Reliable); err != nil {
			return nil, fmt.Errorf("register %T: %w", v, err)
		}
	}
	transforms, err := netsync.Register(reg, protocol.Unreliable, game.TransformToWire, game.TransformFromWire)
	if err != nil {
		return nil, err
	}
	velocities, err := netsync.Register(reg, protocol.Unreliable, game.VelocityToWire, game.VelocityFromWire)
	if err != nil {
		return nil, err
	}
	table, err := reg.Build()
	if err != nil {
		return nil, err
	}
	return &Schema{Table: table, Transforms: transforms, Velocities: velocities}, nil
}

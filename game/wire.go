package game

import "breakout/protocol"

// TransformToWire drops Scale, which is never replicated.
func TransformToWire(t Transform) protocol.TransformMsg {
	return protocol.TransformMsg{
		X:        float32(t.Translation.X),
		Y:        float32(t.Translation.Y),
		Rotation: float32(t.Rotation),
	}
}

func TransformFromWire(m protocol.TransformMsg) Transform {
	return Transform{
		Translation: Vec2{float64(m.X), float64(m.Y)},
		Rotation:    float64(m.Rotation),
		Scale:       Vec2{1, 1},
	}
}

func VelocityToWire(v Velocity) protocol.VelocityMsg {
	return protocol.VelocityMsg{X: float32(v.Linear.X), Y: float32(v.Linear.Y)}
}

func VelocityFromWire(m protocol.VelocityMsg) Velocity {
	return Velocity{Linear: Vec2{float64(m.X), float64(m.Y)}}
}

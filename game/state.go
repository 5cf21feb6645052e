package game

import (
	"slices"

	"breakout/protocol"
)

type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2        { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2        { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(k float64) Vec2   { return Vec2{v.X * k, v.Y * k} }
func (v Vec2) Dot(o Vec2) float64     { return v.X*o.X + v.Y*o.Y }
func (v Vec2) LengthSquared() float64 { return v.Dot(v) }

// Transform is the local pose of a body. Scale is never replicated.
type Transform struct {
	Translation Vec2
	Rotation    float64
	Scale       Vec2
}

type Velocity struct {
	Linear  Vec2
	Angular float64
}

type Body struct {
	Transform Transform
	Velocity  Velocity
}

type Brick struct {
	ID     uint32
	Team   protocol.Team
	Center Vec2
}

// Target is the goal a team defends. A ball touching it wins the game for the opponent.
type Target struct {
	Team   protocol.Team
	Center Vec2
}

type Paddle struct {
	Team protocol.Team
	Body Body
	// Move is the requested vertical direction in [-1, 1].
	Move float64
}

// World is the arena. The server's copy is authoritative; a client's copy is
// overwritten by replication every frame.
type World struct {
	Tick    int
	Ball    Body
	Paddles map[protocol.Team]*Paddle
	Targets []Target

	bricks map[uint32]*Brick
}

func NewWorld() *World {
	w := &World{
		Ball: Body{
			Transform: Transform{Scale: Vec2{1, 1}},
			Velocity:  Velocity{Linear: Vec2{BallStartVX, BallStartVY}},
		},
		Paddles: make(map[protocol.Team]*Paddle, 2),
		Targets: []Target{
			{Team: protocol.Left, Center: Vec2{-TargetX, 0}},
			{Team: protocol.Right, Center: Vec2{TargetX, 0}},
		},
		bricks: make(map[uint32]*Brick, 2*BrickColumns*BrickRows),
	}
	for _, team := range []protocol.Team{protocol.Left, protocol.Right} {
		x := PaddleX
		if team == protocol.Left {
			x = -PaddleX
		}
		w.Paddles[team] = &Paddle{
			Team: team,
			Body: Body{Transform: Transform{Translation: Vec2{x, 0}, Scale: Vec2{1, 1}}},
		}
	}

	var id uint32
	for _, team := range []protocol.Team{protocol.Left, protocol.Right} {
		for col := 0; col < BrickColumns; col++ {
			x := BrickInnerX + BrickWidth*float64(col)
			if team == protocol.Left {
				x = -x
			}
			for row := 1; row <= BrickRows; row++ {
				h := float64(row) - float64(BrickRows+1)/2
				w.bricks[id] = &Brick{ID: id, Team: team, Center: Vec2{x, h * BrickHeight}}
				id++
			}
		}
	}
	return w
}

// RemoveBrick deletes a brick and reports whether it was present. Removing an
// unknown or already removed brick is a no-op.
func (w *World) RemoveBrick(id uint32) bool {
	if _, ok := w.bricks[id]; !ok {
		return false
	}
	delete(w.bricks, id)
	return true
}

func (w *World) Brick(id uint32) (Brick, bool) {
	b, ok := w.bricks[id]
	if !ok {
		return Brick{}, false
	}
	return *b, true
}

func (w *World) BrickCount() int {
	return len(w.bricks)
}

// Bricks returns the remaining bricks ordered by id.
func (w *World) Bricks() []Brick {
	out := make([]Brick, 0, len(w.bricks))
	for _, b := range w.bricks {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b Brick) int { return int(a.ID) - int(b.ID) })
	return out
}

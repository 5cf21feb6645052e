package game

import (
	"math"

	"breakout/protocol"
)

type CollisionKind uint8

const (
	CollisionBrick CollisionKind = iota + 1
	CollisionTarget
)

// Collision is reported by Step. Brick is set for CollisionBrick, Team (the
// target's owner) for CollisionTarget.
type Collision struct {
	Kind  CollisionKind
	Brick uint32
	Team  protocol.Team
}

// MovePaddle sets the requested direction for a team's paddle, clamped to [-1, 1].
func (w *World) MovePaddle(team protocol.Team, dir float64) {
	p, ok := w.Paddles[team]
	if !ok {
		return
	}
	p.Move = math.Max(-1, math.Min(1, dir))
}

// Step advances the world by dt seconds and returns what the ball touched.
// Bricks are not removed here; callers decide with RemoveBrick.
func Step(w *World, dt float64) []Collision {
	w.Tick++

	for _, p := range w.Paddles {
		p.Body.Velocity.Linear = Vec2{0, p.Move * PaddleSpeed}
		t := &p.Body.Transform.Translation
		t.Y += p.Body.Velocity.Linear.Y * dt
		limit := ArenaHeight/2 - PaddleHeight/2
		t.Y = math.Max(-limit, math.Min(limit, t.Y))
	}

	ball := &w.Ball
	pos := &ball.Transform.Translation
	vel := &ball.Velocity.Linear
	*pos = pos.Add(vel.Scale(dt))
	ball.Transform.Rotation += ball.Velocity.Angular * dt

	bounceWalls(pos, vel)

	for _, team := range []protocol.Team{protocol.Left, protocol.Right} {
		p, ok := w.Paddles[team]
		if !ok {
			continue
		}
		half := Vec2{PaddleWidth / 2, PaddleHeight / 2}
		bounceBox(pos, vel, p.Body.Transform.Translation, half)
	}

	var hits []Collision
	brickHalf := Vec2{BrickWidth / 2, BrickHeight / 2}
	for _, b := range w.Bricks() {
		if bounceBox(pos, vel, b.Center, brickHalf) {
			hits = append(hits, Collision{Kind: CollisionBrick, Brick: b.ID})
		}
	}

	reach := BallRadius + TargetSize/2
	for _, t := range w.Targets {
		if pos.Sub(t.Center).LengthSquared() <= reach*reach {
			hits = append(hits, Collision{Kind: CollisionTarget, Team: t.Team})
		}
	}
	return hits
}

func bounceWalls(pos, vel *Vec2) {
	maxX := ArenaWidth/2 - BallRadius
	maxY := ArenaHeight/2 - BallRadius
	if pos.X < -maxX {
		pos.X = -maxX
		vel.X = math.Abs(vel.X)
	} else if pos.X > maxX {
		pos.X = maxX
		vel.X = -math.Abs(vel.X)
	}
	if pos.Y < -maxY {
		pos.Y = -maxY
		vel.Y = math.Abs(vel.Y)
	} else if pos.Y > maxY {
		pos.Y = maxY
		vel.Y = -math.Abs(vel.Y)
	}
}

// bounceBox resolves the ball against an axis-aligned box with full restitution.
func bounceBox(pos, vel *Vec2, center, half Vec2) bool {
	closest := Vec2{
		X: math.Max(center.X-half.X, math.Min(center.X+half.X, pos.X)),
		Y: math.Max(center.Y-half.Y, math.Min(center.Y+half.Y, pos.Y)),
	}
	d := pos.Sub(closest)
	dist2 := d.LengthSquared()
	if dist2 >= BallRadius*BallRadius {
		return false
	}

	var n Vec2
	if dist2 == 0 {
		// Centre inside the box: push out along the shallowest axis.
		dx := half.X - math.Abs(pos.X-center.X)
		dy := half.Y - math.Abs(pos.Y-center.Y)
		if dx < dy {
			n = Vec2{math.Copysign(1, pos.X-center.X), 0}
			closest = Vec2{center.X + n.X*half.X, pos.Y}
		} else {
			n = Vec2{0, math.Copysign(1, pos.Y-center.Y)}
			closest = Vec2{pos.X, center.Y + n.Y*half.Y}
		}
	} else {
		n = d.Scale(1 / math.Sqrt(dist2))
	}

	*pos = closest.Add(n.Scale(BallRadius))
	if vn := vel.Dot(n); vn < 0 {
		*vel = vel.Sub(n.Scale(2 * vn))
	}
	return true
}

// TrackBall steers a team's paddle toward the ball's height.
func TrackBall(w *World, team protocol.Team) {
	p, ok := w.Paddles[team]
	if !ok {
		return
	}
	dy := w.Ball.Transform.Translation.Y - p.Body.Transform.Translation.Y
	switch {
	case dy > AutopilotDead:
		w.MovePaddle(team, 1)
	case dy < -AutopilotDead:
		w.MovePaddle(team, -1)
	default:
		w.MovePaddle(team, 0)
	}
}

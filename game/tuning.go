package game

const (
	ArenaWidth    = 1920.0
	ArenaHeight   = 1080.0
	BallRadius    = 10.0
	BallStartVX   = 750.0 // units per second
	BallStartVY   = -500.0
	TargetX       = 897.5 // centre distance from the midline
	TargetSize    = 125.0
	BrickWidth    = 60.0
	BrickHeight   = 108.0
	BrickColumns  = 6  // per side
	BrickRows     = 10 // per column
	BrickInnerX   = 500.0
	PaddleX       = 420.0
	PaddleWidth   = 20.0
	PaddleHeight  = 160.0
	PaddleSpeed   = 900.0 // units per second at full input
	AutopilotDead = 12.0  // autopilot holds still this close to the ball
)

package plinko

import (
	"math"

	"github.com/MJE43/plinko-drop/internal/engine"
)

const (
	stallThreshold = 0.1 // |vx| below this after a bounce gets a kick
	stallKick      = 0.2
	wallDamping    = 0.5
	exitSpeed      = 6.0
)

// stepDropping advances a dropping ball by one frame. It reports true when the
// ball reached the bottom boundary on this frame; the ball is then resting on
// the boundary and the caller owns the transition to Exiting.
func stepDropping(b *Board, l *Lattice, ball *Ball, gravity float64, rng engine.RandomSource, onCollision func(peg int)) bool {
	// semi-implicit Euler
	ball.VY += gravity
	ball.X += ball.VX
	ball.Y += ball.VY

	contact := b.BallRadius + b.PegRadius
	for i, p := range l.pegs {
		dx := ball.X - p.X
		dy := ball.Y - p.Y
		distSq := dx*dx + dy*dy
		if distSq >= contact*contact {
			continue
		}

		// A ball centred exactly on a peg has no normal; push it straight up.
		nx, ny := 0.0, -1.0
		if dist := math.Sqrt(distSq); dist > 0 {
			nx, ny = dx/dist, dy/dist
		}

		dot := ball.VX*nx + ball.VY*ny
		if dot >= 0 {
			// already separating
			continue
		}

		ball.VX = (ball.VX - 2*dot*nx) * b.BounceDamping
		ball.VY = (ball.VY - 2*dot*ny) * b.BounceDamping
		ball.X = p.X + nx*contact
		ball.Y = p.Y + ny*contact

		if math.Abs(ball.VX) < stallThreshold {
			if rng.Float64() < 0.5 {
				ball.VX = -stallKick
			} else {
				ball.VX = stallKick
			}
		}

		if onCollision != nil {
			onCollision(i)
		}
	}

	if ball.X < b.BallRadius {
		ball.X = b.BallRadius
		ball.VX = math.Abs(ball.VX) * wallDamping
	} else if ball.X > b.Width-b.BallRadius {
		ball.X = b.Width - b.BallRadius
		ball.VX = -math.Abs(ball.VX) * wallDamping
	}
	ball.VX = clamp(ball.VX, -b.MaxHorizontalSpeed, b.MaxHorizontalSpeed)

	if ball.Y+b.BallRadius >= b.Height {
		ball.Y = b.Height - b.BallRadius
		return true
	}
	return false
}

// stepExiting moves a resolved ball straight down, reporting true once it is
// fully below the board.
func stepExiting(b *Board, ball *Ball) bool {
	ball.Y += ball.VY
	return ball.Y-b.BallRadius > b.Height
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package plinko

import (
	"math"
	"testing"
)

// fixedSource returns the same value forever.
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func TestStepDroppingReflectsOffPeg(t *testing.T) {
	b := DefaultBoard()
	l := NewLattice(b)
	top := l.Pegs()[0]

	ball := Ball{X: top.X + 2, Y: top.Y - 10, VY: 2, Phase: PhaseDropping}
	var hits []int
	landed := stepDropping(&b, l, &ball, 0, fixedSource(0.9), func(peg int) { hits = append(hits, peg) })

	if landed {
		t.Fatal("ball near the top row should not land")
	}
	if len(hits) != 1 || hits[0] != 0 {
		t.Fatalf("Expected one collision with peg 0, got %v", hits)
	}
	if ball.VY >= 0 {
		t.Errorf("Expected upward velocity after bounce, got vy=%v", ball.VY)
	}
	if ball.VX <= 0 {
		t.Errorf("Expected ball deflected right, got vx=%v", ball.VX)
	}
	dist := math.Hypot(ball.X-top.X, ball.Y-top.Y)
	if math.Abs(dist-(b.BallRadius+b.PegRadius)) > 1e-9 {
		t.Errorf("Expected ball on the contact circle, distance %v", dist)
	}
}

func TestStepDroppingZeroDistanceFallback(t *testing.T) {
	b := DefaultBoard()
	l := NewLattice(b)
	top := l.Pegs()[0]

	// lands exactly on the peg centre after integration
	ball := Ball{X: top.X, Y: top.Y - 1, VY: 1, Phase: PhaseDropping}
	collisions := 0
	stepDropping(&b, l, &ball, 0, fixedSource(0.9), func(int) { collisions++ })

	if collisions != 1 {
		t.Fatalf("Expected 1 collision, got %d", collisions)
	}
	if math.IsNaN(ball.X) || math.IsNaN(ball.Y) || math.IsNaN(ball.VX) || math.IsNaN(ball.VY) {
		t.Fatalf("ball state must stay finite, got %+v", ball)
	}
	if want := top.Y - (b.BallRadius + b.PegRadius); math.Abs(ball.Y-want) > 1e-9 {
		t.Errorf("Expected ball pushed straight up to y=%v, got %v", want, ball.Y)
	}
	if ball.X != top.X {
		t.Errorf("Expected x unchanged at %v, got %v", top.X, ball.X)
	}
	if math.Abs(ball.VY-(-b.BounceDamping)) > 1e-9 {
		t.Errorf("Expected vy=%v, got %v", -b.BounceDamping, ball.VY)
	}
	// vertical bounce leaves vx at zero so the stall kick applies
	if ball.VX != stallKick {
		t.Errorf("Expected stall kick vx=%v, got %v", stallKick, ball.VX)
	}
}

func TestStallKickDirection(t *testing.T) {
	b := DefaultBoard()
	l := NewLattice(b)
	top := l.Pegs()[0]

	ball := Ball{X: top.X, Y: top.Y - 1, VY: 1, Phase: PhaseDropping}
	stepDropping(&b, l, &ball, 0, fixedSource(0.1), nil)

	if ball.VX != -stallKick {
		t.Errorf("Expected leftward kick %v, got %v", -stallKick, ball.VX)
	}
}

func TestStepDroppingIgnoresSeparatingBall(t *testing.T) {
	b := DefaultBoard()
	l := NewLattice(b)
	top := l.Pegs()[0]

	ball := Ball{X: top.X, Y: top.Y - 7, VY: -1, Phase: PhaseDropping}
	collisions := 0
	stepDropping(&b, l, &ball, 0, fixedSource(0.5), func(int) { collisions++ })

	if collisions != 0 {
		t.Errorf("Expected no collision for a separating ball, got %d", collisions)
	}
	if ball.VY != -1 {
		t.Errorf("Expected velocity untouched, got vy=%v", ball.VY)
	}
}

func TestStepDroppingWalls(t *testing.T) {
	b := DefaultBoard()
	l := NewLattice(b)

	tests := []struct {
		name   string
		ball   Ball
		wantX  float64
		wantVX float64
	}{
		{"left wall", Ball{X: 3, Y: 290, VX: -2}, b.BallRadius, 1},
		{"right wall", Ball{X: 637, Y: 290, VX: 3}, b.Width - b.BallRadius, -1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ball := tt.ball
			ball.Phase = PhaseDropping
			stepDropping(&b, l, &ball, 0, fixedSource(0.5), nil)

			if ball.X != tt.wantX {
				t.Errorf("Expected x=%v, got %v", tt.wantX, ball.X)
			}
			if math.Abs(ball.VX-tt.wantVX) > 1e-12 {
				t.Errorf("Expected vx=%v, got %v", tt.wantVX, ball.VX)
			}
		})
	}
}

func TestStepDroppingClampsHorizontalSpeed(t *testing.T) {
	b := DefaultBoard()
	l := NewLattice(b)

	ball := Ball{X: 300, Y: 290, VX: 10, Phase: PhaseDropping}
	stepDropping(&b, l, &ball, 0, fixedSource(0.5), nil)
	if ball.VX != b.MaxHorizontalSpeed {
		t.Errorf("Expected vx clamped to %v, got %v", b.MaxHorizontalSpeed, ball.VX)
	}

	ball = Ball{X: 300, Y: 290, VX: -10, Phase: PhaseDropping}
	stepDropping(&b, l, &ball, 0, fixedSource(0.5), nil)
	if ball.VX != -b.MaxHorizontalSpeed {
		t.Errorf("Expected vx clamped to %v, got %v", -b.MaxHorizontalSpeed, ball.VX)
	}
}

func TestStepDroppingLandsOnBottom(t *testing.T) {
	b := DefaultBoard()
	l := NewLattice(b)

	ball := Ball{X: b.LaneCenter(2), Y: b.Height - b.BallRadius - 1, VY: 2, Phase: PhaseDropping}
	if !stepDropping(&b, l, &ball, b.Gravity, fixedSource(0.5), nil) {
		t.Fatal("Expected ball to land")
	}
	if ball.Y != b.Height-b.BallRadius {
		t.Errorf("Expected ball resting at y=%v, got %v", b.Height-b.BallRadius, ball.Y)
	}
}

func TestStepExiting(t *testing.T) {
	b := DefaultBoard()
	ball := Ball{X: 100, Y: b.Height - b.BallRadius, VY: exitSpeed, Phase: PhaseExiting}

	steps := 0
	for !stepExiting(&b, &ball) {
		steps++
		if steps > 10 {
			t.Fatal("ball never left the board")
		}
	}
	if ball.Y-b.BallRadius <= b.Height {
		t.Errorf("Expected ball fully below the board, y=%v", ball.Y)
	}
}

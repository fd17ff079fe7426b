package plinko

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxRoundTicks bounds a headless round. Gravity guarantees descent well
// within this; hitting it means the physics constants were broken.
const MaxRoundTicks = 20000

var ErrRoundStalled = errors.New("round did not finish within tick limit")

// Outcome summarises one headlessly played round.
type Outcome struct {
	Lane       int             `json:"lane"`
	Multiplier float64         `json:"multiplier"`
	Wager      decimal.Decimal `json:"wager"`
	Payout     decimal.Decimal `json:"payout"`
	Balance    decimal.Decimal `json:"balance"`
	Win        bool            `json:"win"`
	Ticks      int             `json:"ticks"`
	Collisions int             `json:"collisions"`
	Gravity    float64         `json:"gravity"`
	Path       []Point         `json:"path,omitempty"`
}

// Play drops a ball and ticks until the round is over, without any display.
// With trace set, the ball position after every tick is recorded in Path.
func (g *Game) Play(wager float64, trace bool) (Outcome, error) {
	if err := g.StartDrop(wager); err != nil {
		return Outcome{}, err
	}

	var path []Point
	if trace {
		path = append(path, Point{X: g.ball.X, Y: g.ball.Y})
	}

	for i := 0; i < MaxRoundTicks; i++ {
		g.Tick()
		if g.ball.Phase == PhaseIdle {
			r := g.last
			return Outcome{
				Lane:       r.Lane,
				Multiplier: r.Multiplier,
				Wager:      r.Wager,
				Payout:     r.Payout,
				Balance:    g.balance,
				Win:        IsWin(r.Multiplier),
				Ticks:      r.Ticks,
				Collisions: r.Collisions,
				Gravity:    r.Gravity,
				Path:       path,
			}, nil
		}
		if trace {
			path = append(path, Point{X: g.ball.X, Y: g.ball.Y})
		}
	}
	return Outcome{}, fmt.Errorf("%w: %d ticks", ErrRoundStalled, MaxRoundTicks)
}

package plinko

import (
	"github.com/shopspring/decimal"
)

// Round is one wager-to-payout cycle.
type Round struct {
	Wager      decimal.Decimal `json:"wager"`
	Gravity    float64         `json:"gravity"`
	Lane       int             `json:"lane"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Resolved   bool            `json:"resolved"`
	Ticks      int             `json:"ticks"`
	Collisions int             `json:"collisions"`
}

// IsWin reports the win/lose policy: a multiplier of exactly 1 counts as a win.
func IsWin(multiplier float64) bool {
	return multiplier >= 1
}

// resolve settles the active round from the ball's resting position. It is only
// reached from the single Dropping->Exiting transition, so it runs once per round.
func (g *Game) resolve() Event {
	r := g.round
	r.Lane = g.board.LaneAt(g.ball.X)
	r.Multiplier = g.multipliers[r.Lane]
	r.Payout = r.Wager.Mul(decimal.NewFromFloat(r.Multiplier))
	r.Resolved = true
	g.balance = g.balance.Add(r.Payout)

	kind := EventLose
	if IsWin(r.Multiplier) {
		kind = EventWin
	}

	return Event{
		Kind:       kind,
		Tick:       g.tick,
		X:          g.ball.X,
		Y:          g.ball.Y,
		Peg:        -1,
		Lane:       r.Lane,
		Multiplier: r.Multiplier,
		Wager:      r.Wager,
		Payout:     r.Payout,
		Balance:    g.balance,
	}
}

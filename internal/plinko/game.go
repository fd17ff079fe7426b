// Package plinko is the drop-physics and payout simulation for the Plinko
// board. A Game is driven one frame at a time by Tick and is not safe for
// concurrent use; independent Games share no state.
package plinko

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/plinko-drop/internal/engine"
)

// StartingBalance is the balance a new or reset game holds.
const StartingBalance = 10000

const (
	dropY         = 10.0
	dropOffset    = 3.0 // max horizontal offset from the start lane centre
	dropMaxVX     = 0.5
	gravityJitter = 0.05
)

var (
	ErrRoundActive         = errors.New("a round is already in progress")
	ErrInvalidWager        = errors.New("wager must be a positive finite number")
	ErrInsufficientBalance = errors.New("wager exceeds balance")
)

// Game owns the board, the ball, the balance and the active round.
type Game struct {
	board       Board
	lattice     *Lattice
	risk        string
	multipliers []float64
	rng         engine.RandomSource
	logger      *log.Logger
	listeners   []Listener

	startingBalance decimal.Decimal
	balance         decimal.Decimal

	ball    Ball
	round   *Round
	last    *Round
	tick    uint64
	pending []Event
}

// Option configures a Game.
type Option func(*Game) error

// WithRandomSource injects the source used for drop offset, gravity jitter
// and stall kicks.
func WithRandomSource(rng engine.RandomSource) Option {
	return func(g *Game) error {
		if rng == nil {
			return errors.New("random source must not be nil")
		}
		g.rng = rng
		return nil
	}
}

// WithRisk selects the payout table.
func WithRisk(risk string) Option {
	return func(g *Game) error {
		table, err := PayoutTable(risk, g.board.Rows)
		if err != nil {
			return err
		}
		g.risk = risk
		g.multipliers = table
		return nil
	}
}

// WithStartingBalance overrides the balance a new or reset game holds.
func WithStartingBalance(balance decimal.Decimal) Option {
	return func(g *Game) error {
		if balance.IsNegative() {
			return fmt.Errorf("starting balance must not be negative, got %s", balance)
		}
		g.startingBalance = balance
		g.balance = balance
		return nil
	}
}

// WithListener subscribes a collaborator to every event.
func WithListener(l Listener) Option {
	return func(g *Game) error {
		g.listeners = append(g.listeners, l)
		return nil
	}
}

// WithLogger sets the logger used for listener failures.
func WithLogger(logger *log.Logger) Option {
	return func(g *Game) error {
		g.logger = logger
		return nil
	}
}

// NewGame creates an idle game on the default board.
func NewGame(opts ...Option) (*Game, error) {
	board := DefaultBoard()
	table, err := PayoutTable(DefaultRisk, board.Rows)
	if err != nil {
		return nil, err
	}

	g := &Game{
		board:           board,
		lattice:         NewLattice(board),
		risk:            DefaultRisk,
		multipliers:     table,
		rng:             engine.DefaultSource(),
		logger:          log.New(io.Discard, "", 0),
		startingBalance: decimal.NewFromInt(StartingBalance),
		balance:         decimal.NewFromInt(StartingBalance),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, fmt.Errorf("configure game: %w", err)
		}
	}
	return g, nil
}

// Subscribe registers a listener after construction.
func (g *Game) Subscribe(l Listener) {
	g.listeners = append(g.listeners, l)
}

// StartDrop validates the wager and, on success, debits it and drops a new
// ball. Nothing is mutated when an error is returned. The RoundStart event is
// dispatched immediately and also returned by the next Tick.
func (g *Game) StartDrop(wager float64) error {
	if g.ball.Phase != PhaseIdle {
		return ErrRoundActive
	}
	if math.IsNaN(wager) || math.IsInf(wager, 0) || wager <= 0 {
		return ErrInvalidWager
	}
	amount := decimal.NewFromFloat(wager)
	if amount.GreaterThan(g.balance) {
		return ErrInsufficientBalance
	}

	g.balance = g.balance.Sub(amount)

	x := g.board.LaneCenter(g.board.StartLane()) + (g.rng.Float64()*2-1)*dropOffset
	vx := (g.rng.Float64()*2 - 1) * dropMaxVX
	gravity := g.board.Gravity * (1 + (g.rng.Float64()*2-1)*gravityJitter)

	g.ball = Ball{X: x, Y: dropY, VX: vx, VY: 0, Phase: PhaseDropping}
	g.round = &Round{Wager: amount, Gravity: gravity, Lane: -1}

	ev := Event{
		Kind:    EventRoundStart,
		Tick:    g.tick,
		X:       g.ball.X,
		Y:       g.ball.Y,
		Peg:     -1,
		Lane:    -1,
		Wager:   amount,
		Balance: g.balance,
	}
	g.pending = append(g.pending, ev)
	g.dispatch(ev)
	return nil
}

// Tick advances the simulation by exactly one frame and returns the events it
// produced. Ticking an idle game only flushes pending events.
func (g *Game) Tick() []Event {
	events := g.pending
	g.pending = nil
	fresh := 0

	switch g.ball.Phase {
	case PhaseDropping:
		g.tick++
		g.round.Ticks++
		landed := stepDropping(&g.board, g.lattice, &g.ball, g.round.Gravity, g.rng, func(peg int) {
			g.round.Collisions++
			events = append(events, Event{
				Kind: EventCollision,
				Tick: g.tick,
				X:    g.ball.X,
				Y:    g.ball.Y,
				Peg:  peg,
				Lane: -1,
			})
			fresh++
		})
		if landed {
			events = append(events, g.resolve())
			fresh++
			g.ball.Phase = PhaseExiting
			g.ball.VX = 0
			g.ball.VY = exitSpeed
		}
	case PhaseExiting:
		g.tick++
		g.round.Ticks++
		if stepExiting(&g.board, &g.ball) {
			r := g.round
			events = append(events, Event{
				Kind:       EventRoundEnd,
				Tick:       g.tick,
				X:          g.ball.X,
				Y:          g.ball.Y,
				Peg:        -1,
				Lane:       r.Lane,
				Multiplier: r.Multiplier,
				Wager:      r.Wager,
				Payout:     r.Payout,
				Balance:    g.balance,
			})
			fresh++
			g.last = r
			g.round = nil
			g.ball = Ball{Phase: PhaseIdle}
		}
	}

	for _, ev := range events[len(events)-fresh:] {
		g.dispatch(ev)
	}
	return events
}

// Reset abandons any active round, restores the starting balance and clears
// the ball. The wager of an abandoned round is not refunded.
func (g *Game) Reset() {
	g.ball = Ball{Phase: PhaseIdle}
	g.round = nil
	g.last = nil
	g.pending = nil
	g.balance = g.startingBalance
}

// dispatch delivers an event to every listener. A failing listener never
// affects the simulation.
func (g *Game) dispatch(ev Event) {
	for _, l := range g.listeners {
		func() {
			defer func() {
				if rvr := recover(); rvr != nil {
					g.logger.Printf("listener_panic kind=%s tick=%d panic=%v", ev.Kind, ev.Tick, rvr)
				}
			}()
			l.OnEvent(ev)
		}()
	}
}

// Board returns the board configuration.
func (g *Game) Board() Board { return g.board }

// Lattice returns the read-only peg field.
func (g *Game) Lattice() *Lattice { return g.lattice }

// Risk returns the name of the payout table in use.
func (g *Game) Risk() string { return g.risk }

// Multipliers returns a copy of the lane payout table.
func (g *Game) Multipliers() []float64 {
	out := make([]float64, len(g.multipliers))
	copy(out, g.multipliers)
	return out
}

// Balance returns the current balance.
func (g *Game) Balance() decimal.Decimal { return g.balance }

// Phase returns the ball lifecycle phase.
func (g *Game) Phase() Phase { return g.ball.Phase }

// Ball returns a copy of the ball state.
func (g *Game) Ball() Ball { return g.ball }

// ActiveRound returns the round in flight, if any.
func (g *Game) ActiveRound() (Round, bool) {
	if g.round == nil {
		return Round{}, false
	}
	return *g.round, true
}

// LastRound returns the most recently completed round, if any.
func (g *Game) LastRound() (Round, bool) {
	if g.last == nil {
		return Round{}, false
	}
	return *g.last, true
}

// Snapshot is what a render collaborator reads each frame.
type Snapshot struct {
	Tick    uint64          `json:"tick"`
	Ball    Ball            `json:"ball"`
	Balance decimal.Decimal `json:"balance"`
	Active  bool            `json:"active"`
	Round   *Round          `json:"round,omitempty"`
	Last    *Round          `json:"last,omitempty"`
}

// Snapshot returns a copy of the mutable state.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Tick:    g.tick,
		Ball:    g.ball,
		Balance: g.balance,
		Active:  g.ball.Phase != PhaseIdle,
	}
	if g.round != nil {
		r := *g.round
		s.Round = &r
	}
	if g.last != nil {
		r := *g.last
		s.Last = &r
	}
	return s
}

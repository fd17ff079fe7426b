// Package strategy runs user autobet scripts against a Plinko game. A script
// sets nextbet at top level and defines dobet(), which is called after every
// round with the round's result exposed as globals.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

// Stop reasons reported in Report.StopReason.
const (
	StopScript       = "script"
	StopMaxBets      = "max_bets"
	StopInvalidBet   = "invalid_bet"
	StopInsufficient = "insufficient_balance"
	StopCancelled    = "cancelled"
)

// Bettor plays one round at the given wager.
type Bettor interface {
	Bet(wager float64) (plinko.Outcome, error)
	Balance() float64
}

// GameBettor plays rounds headlessly on a Game.
type GameBettor struct {
	Game *plinko.Game
}

func (b GameBettor) Bet(wager float64) (plinko.Outcome, error) {
	return b.Game.Play(wager, false)
}

func (b GameBettor) Balance() float64 {
	return b.Game.Balance().InexactFloat64()
}

// Options bound a session.
type Options struct {
	MaxBets     int
	CallTimeout time.Duration
	// OnBet is called after every settled round, before dobet().
	OnBet func(n int, out plinko.Outcome)
}

// Report summarises a finished session.
type Report struct {
	Bets           int        `json:"bets"`
	Wins           int        `json:"wins"`
	Losses         int        `json:"losses"`
	StartBalance   float64    `json:"start_balance"`
	EndBalance     float64    `json:"end_balance"`
	Profit         float64    `json:"profit"`
	Wagered        float64    `json:"wagered"`
	HighestBalance float64    `json:"highest_balance"`
	LowestBalance  float64    `json:"lowest_balance"`
	LaneCounts     []int      `json:"lane_counts"`
	StopReason     string     `json:"stop_reason"`
	Logs           []LogEntry `json:"logs,omitempty"`
}

// Run executes script against bettor until the script calls stop(), a limit
// is reached, the next bet is unaffordable or invalid, or ctx is done. Script
// errors and timeouts end the session with an error alongside the partial
// report.
func Run(ctx context.Context, script string, bettor Bettor, opts Options) (*Report, error) {
	if opts.MaxBets <= 0 {
		return nil, errors.New("max bets must be positive")
	}

	vm := NewVM(opts.CallTimeout)
	start := bettor.Balance()
	vars := &Variables{Balance: start, StartBalance: start, LastLane: -1}
	report := &Report{
		StartBalance:   start,
		EndBalance:     start,
		HighestBalance: start,
		LowestBalance:  start,
		LaneCounts:     make([]int, plinko.DefaultRows+1),
	}
	defer func() { report.Logs = vm.Logs() }()

	vm.SetVariables(vars)
	if err := vm.Execute(script); err != nil {
		return report, err
	}
	if !vm.HasDobet() {
		return report, errors.New("script must define dobet()")
	}
	vm.SyncVariables(vars)
	if vars.BaseBet == 0 {
		vars.BaseBet = vars.NextBet
	}

	for {
		if vm.IsStopRequested() {
			report.StopReason = StopScript
			return report, nil
		}
		if ctx.Err() != nil {
			report.StopReason = StopCancelled
			return report, nil
		}
		if report.Bets >= opts.MaxBets {
			report.StopReason = StopMaxBets
			return report, nil
		}

		wager := vars.NextBet
		if math.IsNaN(wager) || math.IsInf(wager, 0) || wager <= 0 {
			report.StopReason = StopInvalidBet
			return report, nil
		}
		if wager > vars.Balance {
			report.StopReason = StopInsufficient
			return report, nil
		}

		out, err := bettor.Bet(wager)
		if err != nil {
			if errors.Is(err, plinko.ErrInsufficientBalance) {
				report.StopReason = StopInsufficient
				return report, nil
			}
			return report, fmt.Errorf("bet %d: %w", report.Bets+1, err)
		}

		record(vars, report, wager, out)
		if opts.OnBet != nil {
			opts.OnBet(report.Bets, out)
		}

		vm.SetVariables(vars)
		if err := vm.CallDobet(); err != nil {
			return report, err
		}
		vm.SyncVariables(vars)
	}
}

func record(vars *Variables, report *Report, wager float64, out plinko.Outcome) {
	balance := out.Balance.InexactFloat64()

	vars.PreviousBet = wager
	vars.Balance = balance
	vars.Win = out.Win
	vars.LastMultiplier = out.Multiplier
	vars.LastLane = out.Lane
	vars.Bets++
	vars.Wagered += wager
	vars.Profit = balance - vars.StartBalance
	if out.Win {
		vars.Wins++
		vars.WinStreak++
		vars.LoseStreak = 0
	} else {
		vars.Losses++
		vars.LoseStreak++
		vars.WinStreak = 0
	}

	report.Bets = vars.Bets
	report.Wins = vars.Wins
	report.Losses = vars.Losses
	report.Wagered = vars.Wagered
	report.EndBalance = balance
	report.Profit = vars.Profit
	report.LaneCounts[out.Lane]++
	if balance > report.HighestBalance {
		report.HighestBalance = balance
	}
	if balance < report.LowestBalance {
		report.LowestBalance = balance
	}
}

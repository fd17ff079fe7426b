package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/plinko-drop/internal/engine"
	"github.com/MJE43/plinko-drop/internal/plinko"
)

// scriptedBettor lands in lanes from a fixed cycle on the classic table.
type scriptedBettor struct {
	balance decimal.Decimal
	lanes   []int
	n       int
	wagers  []float64
}

var classic = []float64{5, 3, 1.5, 1, 0.5, 1, 1.5, 3, 5}

func newScriptedBettor(balance int64, lanes ...int) *scriptedBettor {
	return &scriptedBettor{balance: decimal.NewFromInt(balance), lanes: lanes}
}

func (b *scriptedBettor) Bet(wager float64) (plinko.Outcome, error) {
	w := decimal.NewFromFloat(wager)
	if w.GreaterThan(b.balance) {
		return plinko.Outcome{}, plinko.ErrInsufficientBalance
	}
	lane := b.lanes[b.n%len(b.lanes)]
	b.n++
	b.wagers = append(b.wagers, wager)

	m := classic[lane]
	payout := w.Mul(decimal.NewFromFloat(m))
	b.balance = b.balance.Sub(w).Add(payout)
	return plinko.Outcome{
		Lane:       lane,
		Multiplier: m,
		Wager:      w,
		Payout:     payout,
		Balance:    b.balance,
		Win:        plinko.IsWin(m),
	}, nil
}

func (b *scriptedBettor) Balance() float64 { return b.balance.InexactFloat64() }

func TestRunMaxBets(t *testing.T) {
	bettor := newScriptedBettor(1000, 4)
	script := `
		nextbet = 1
		dobet = function() {}
	`

	report, err := Run(context.Background(), script, bettor, Options{MaxBets: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Bets != 5 || report.StopReason != StopMaxBets {
		t.Errorf("Expected 5 bets stopped by max_bets, got %d (%s)", report.Bets, report.StopReason)
	}
	if report.Losses != 5 || report.LaneCounts[4] != 5 {
		t.Errorf("Expected five lane-4 losses, got losses=%d lanes=%v", report.Losses, report.LaneCounts)
	}
	if report.EndBalance != 997.5 {
		t.Errorf("Expected end balance 997.5, got %v", report.EndBalance)
	}
}

func TestRunMartingale(t *testing.T) {
	// lose, lose, win on lane 0
	bettor := newScriptedBettor(1000, 4, 4, 0)
	script := `
		basebet = 1
		nextbet = basebet
		dobet = function() {
			if (win) {
				nextbet = basebet
			} else {
				nextbet = previousbet * 2
			}
		}
	`

	if _, err := Run(context.Background(), script, bettor, Options{MaxBets: 4}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []float64{1, 2, 4, 1}
	for i, w := range want {
		if bettor.wagers[i] != w {
			t.Errorf("bet %d: expected wager %v, got %v", i, w, bettor.wagers[i])
		}
	}
}

func TestRunScriptStop(t *testing.T) {
	bettor := newScriptedBettor(1000, 4, 0)
	script := `
		nextbet = 10
		dobet = function() {
			log("lane", lastlane, "x", lastmultiplier)
			if (lastmultiplier >= 5) { stop() }
		}
	`

	report, err := Run(context.Background(), script, bettor, Options{MaxBets: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StopReason != StopScript || report.Bets != 2 {
		t.Errorf("Expected script stop after 2 bets, got %d (%s)", report.Bets, report.StopReason)
	}
	if report.Wins != 1 {
		t.Errorf("Expected 1 win, got %d", report.Wins)
	}
	if len(report.Logs) != 2 || !strings.Contains(report.Logs[1].Message, "lane 0 x 5") {
		t.Errorf("Expected script logs, got %+v", report.Logs)
	}
}

func TestRunInsufficientBalance(t *testing.T) {
	bettor := newScriptedBettor(10, 4)
	script := `
		nextbet = 8
		dobet = function() {}
	`

	report, err := Run(context.Background(), script, bettor, Options{MaxBets: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 10 -> 6 after one 0.5x round, then 8 is unaffordable
	if report.StopReason != StopInsufficient || report.Bets != 1 {
		t.Errorf("Expected stop for balance after 1 bet, got %d (%s)", report.Bets, report.StopReason)
	}
}

func TestRunInvalidBet(t *testing.T) {
	bettor := newScriptedBettor(100, 4)
	report, err := Run(context.Background(), `nextbet = 0; dobet = function() {}`, bettor, Options{MaxBets: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StopReason != StopInvalidBet || report.Bets != 0 {
		t.Errorf("Expected invalid bet stop, got %d (%s)", report.Bets, report.StopReason)
	}
}

func TestRunRequiresDobet(t *testing.T) {
	if _, err := Run(context.Background(), `nextbet = 1`, newScriptedBettor(100, 4), Options{MaxBets: 10}); err == nil {
		t.Error("Expected error when dobet is missing")
	}
}

func TestRunSyntaxError(t *testing.T) {
	if _, err := Run(context.Background(), `dobet = function( {`, newScriptedBettor(100, 4), Options{MaxBets: 10}); err == nil {
		t.Error("Expected error for invalid script")
	}
}

func TestRunTimeout(t *testing.T) {
	script := `
		nextbet = 1
		dobet = function() { while (true) {} }
	`
	_, err := Run(context.Background(), script, newScriptedBettor(100, 4), Options{MaxBets: 10, CallTimeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, `nextbet = 1; dobet = function() {}`, newScriptedBettor(100, 4), Options{MaxBets: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StopReason != StopCancelled || report.Bets != 0 {
		t.Errorf("Expected cancelled before any bet, got %d (%s)", report.Bets, report.StopReason)
	}
}

func TestSandboxBlocksGlobals(t *testing.T) {
	vm := NewVM(0)
	if err := vm.Execute(`require("fs")`); err == nil {
		t.Error("Expected require to be unavailable")
	}
	if err := vm.Execute(`if (ROWS !== 8 || LANES !== 9) { throw new Error("constants") }`); err != nil {
		t.Errorf("Expected board constants, got %v", err)
	}
}

func TestRunAgainstGame(t *testing.T) {
	g, err := plinko.NewGame(plinko.WithRandomSource(engine.NewSeededSource(5)))
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	report, err := Run(context.Background(), `nextbet = 50; dobet = function() {}`, GameBettor{Game: g}, Options{MaxBets: 20})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Bets != 20 {
		t.Errorf("Expected 20 bets, got %d", report.Bets)
	}
	if report.EndBalance != g.Balance().InexactFloat64() {
		t.Errorf("Report balance %v != game balance %s", report.EndBalance, g.Balance())
	}
	total := 0
	for _, c := range report.LaneCounts {
		total += c
	}
	if total != 20 {
		t.Errorf("Expected 20 lane entries, got %d", total)
	}
}

// Package tui is a terminal front end for the Plinko game. It renders the
// board with tcell and drives Game.Tick from a fixed 60 Hz ticker.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

const (
	frameInterval = time.Second / 60
	minWager      = 1.0

	hudRows    = 2
	footerRows = 2
	minCols    = 20
	minRows    = hudRows + footerRows + 6
)

var (
	styleDefault = tcell.StyleDefault
	stylePeg     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleSlot    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleBall    = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleWin     = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleLose    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleWarn    = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleHelp    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleLane    = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorGreen)
)

// App owns the screen and presents one Game.
type App struct {
	screen tcell.Screen
	game   *plinko.Game

	wager    float64
	message  string
	msgStyle tcell.Style

	// lane highlighted after the last resolution, -1 for none
	lastLane int
}

// New creates an app and subscribes it to the game's events.
func New(screen tcell.Screen, game *plinko.Game, wager float64) *App {
	if math.IsNaN(wager) || wager < minWager {
		wager = minWager
	}
	a := &App{
		screen:   screen,
		game:     game,
		wager:    wager,
		lastLane: -1,
		msgStyle: styleDefault,
	}
	game.Subscribe(a)
	return a
}

// Wager is the stake the next drop uses.
func (a *App) Wager() float64 { return a.wager }

// Message is the status line text.
func (a *App) Message() string { return a.message }

// OnEvent updates the status line from round results.
func (a *App) OnEvent(e plinko.Event) {
	switch e.Kind {
	case plinko.EventRoundStart:
		a.message = ""
		a.lastLane = -1
	case plinko.EventWin:
		a.setMessage(fmt.Sprintf("WIN  %gx  paid %s", e.Multiplier, e.Payout.StringFixed(2)), styleWin)
		a.lastLane = e.Lane
	case plinko.EventLose:
		a.setMessage(fmt.Sprintf("%gx  paid %s", e.Multiplier, e.Payout.StringFixed(2)), styleLose)
		a.lastLane = e.Lane
	}
}

func (a *App) setMessage(msg string, style tcell.Style) {
	a.message = msg
	a.msgStyle = style
}

// HandleKey applies one key press. It returns false when the app should quit.
func (a *App) HandleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRune:
	default:
		return true
	}

	switch ev.Rune() {
	case 'q', 'Q':
		return false
	case ' ':
		a.drop()
	case 'r', 'R':
		a.game.Reset()
		a.lastLane = -1
		a.setMessage("Balance reset", styleWarn)
	case '+', '=':
		a.wager *= 2
	case '-', '_':
		a.wager = math.Max(minWager, a.wager/2)
	}
	return true
}

func (a *App) drop() {
	err := a.game.StartDrop(a.wager)
	switch {
	case err == nil, errors.Is(err, plinko.ErrRoundActive):
	case errors.Is(err, plinko.ErrInsufficientBalance):
		a.setMessage("Insufficient balance", styleWarn)
	case errors.Is(err, plinko.ErrInvalidWager):
		a.setMessage("Enter a valid wager", styleWarn)
	default:
		a.setMessage(err.Error(), styleWarn)
	}
}

// Run polls input and advances the game one tick per frame until the user
// quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	a.Draw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if !a.HandleKey(ev) {
					return nil
				}
			case *tcell.EventResize:
				a.screen.Sync()
			}
		case <-ticker.C:
			a.game.Tick()
			a.Draw()
		}
	}
}

// Draw renders one frame.
func (a *App) Draw() {
	a.screen.Clear()
	w, h := a.screen.Size()
	if w < minCols || h < minRows {
		a.text(0, 0, "terminal too small", styleWarn)
		a.screen.Show()
		return
	}

	board := a.game.Board()
	view := NewViewport(board, 0, hudRows, w, h-hudRows-footerRows)

	a.text(0, 0, fmt.Sprintf("Balance %s   Wager %.2f   Risk %s",
		a.game.Balance().StringFixed(2), a.wager, a.game.Risk()), styleDefault)
	a.text(0, 1, a.message, a.msgStyle)

	// slot lines run from the last peg row to the floor
	_, top := view.Cell(0, board.RowY(board.Rows-1))
	for i := 0; i < board.Rows; i++ {
		col := view.Col(board.SlotX(i))
		for row := top + 1; row < view.Y+view.H; row++ {
			a.screen.SetContent(col, row, '│', nil, styleSlot)
		}
	}

	for _, p := range a.game.Lattice().Pegs() {
		col, row := view.Cell(p.X, p.Y)
		a.screen.SetContent(col, row, '•', nil, stylePeg)
	}

	if ball := a.game.Ball(); ball.Phase != plinko.PhaseIdle {
		col, row := view.Cell(ball.X, ball.Y)
		a.screen.SetContent(col, row, '●', nil, styleBall)
	}

	labelRow := view.Y + view.H
	for i, m := range a.game.Multipliers() {
		style := styleDefault
		if i == a.lastLane {
			style = styleLane
		}
		label := fmt.Sprintf("%g", m)
		col := view.Col(board.LaneCenter(i)) - len(label)/2
		a.text(col, labelRow, label, style)
	}

	a.text(0, h-1, "space drop   +/- wager   r reset   q quit", styleHelp)
	a.screen.Show()
}

func (a *App) text(x, y int, s string, style tcell.Style) {
	for _, r := range s {
		a.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

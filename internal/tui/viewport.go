package tui

import (
	"math"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

// Viewport maps board coordinates onto a rectangle of terminal cells.
type Viewport struct {
	X, Y int // top-left cell
	W, H int // size in cells

	board plinko.Board
}

// NewViewport fits the whole board into the given cell rectangle.
func NewViewport(b plinko.Board, x, y, w, h int) Viewport {
	return Viewport{X: x, Y: y, W: max(w, 1), H: max(h, 1), board: b}
}

// Cell returns the cell holding board point (px, py), clamped to the viewport.
func (v Viewport) Cell(px, py float64) (col, row int) {
	return v.X + scale(px, v.board.Width, v.W), v.Y + scale(py, v.board.Height, v.H)
}

// Col returns the column holding horizontal board position px.
func (v Viewport) Col(px float64) int {
	return v.X + scale(px, v.board.Width, v.W)
}

func scale(p, extent float64, cells int) int {
	if math.IsNaN(p) || p <= 0 {
		return 0
	}
	c := int(p / extent * float64(cells))
	if c >= cells {
		return cells - 1
	}
	return c
}

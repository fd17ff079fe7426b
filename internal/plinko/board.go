package plinko

import (
	"fmt"
	"math"
)

// Fixed board constants. The peg geometry of the game is not configurable.
const (
	DefaultRows               = 8
	DefaultWidth              = 640.0
	DefaultHeight             = 640.0
	DefaultPegRadius          = 5.0
	DefaultBallRadius         = 6.0
	DefaultGravity            = 0.25
	DefaultMaxHorizontalSpeed = 4.0
	DefaultBounceDamping      = 0.6

	pegSpacingFactor = 1.2
)

// Board is the immutable board configuration every other component derives from.
type Board struct {
	Rows   int     `json:"rows"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	VerticalSpacing float64 `json:"vertical_spacing"`
	LaneSpacing     float64 `json:"lane_spacing"`
	PegSpacing      float64 `json:"peg_spacing"`

	PegRadius          float64 `json:"peg_radius"`
	BallRadius         float64 `json:"ball_radius"`
	Gravity            float64 `json:"gravity"`
	MaxHorizontalSpeed float64 `json:"max_horizontal_speed"`
	BounceDamping      float64 `json:"bounce_damping"`
}

// NewBoard derives spacings for a board of the given row count and size. The
// physical constants are the game defaults.
func NewBoard(rows int, width, height float64) (Board, error) {
	if rows < 1 {
		return Board{}, fmt.Errorf("board rows must be >= 1, got %d", rows)
	}
	if !positiveFinite(width) || !positiveFinite(height) {
		return Board{}, fmt.Errorf("board dimensions must be positive and finite, got %vx%v", width, height)
	}

	laneSpacing := width / float64(rows+1)
	return Board{
		Rows:               rows,
		Width:              width,
		Height:             height,
		VerticalSpacing:    height / float64(rows+2),
		LaneSpacing:        laneSpacing,
		PegSpacing:         laneSpacing * pegSpacingFactor,
		PegRadius:          DefaultPegRadius,
		BallRadius:         DefaultBallRadius,
		Gravity:            DefaultGravity,
		MaxHorizontalSpeed: DefaultMaxHorizontalSpeed,
		BounceDamping:      DefaultBounceDamping,
	}, nil
}

// DefaultBoard returns the board the game is played on.
func DefaultBoard() Board {
	b, err := NewBoard(DefaultRows, DefaultWidth, DefaultHeight)
	if err != nil {
		panic(fmt.Sprintf("default board invalid: %v", err))
	}
	return b
}

// Lanes returns the number of scoring lanes (R+1).
func (b Board) Lanes() int {
	return b.Rows + 1
}

// RowY is the vertical position of peg row r, r in [0, R).
func (b Board) RowY(r int) float64 {
	return b.VerticalSpacing * float64(r+1)
}

// LaneCenter is the horizontal centre of lane i, i in [0, R].
func (b Board) LaneCenter(i int) float64 {
	return b.LaneSpacing*float64(i) + b.LaneSpacing/2
}

// SlotX is the position of the boundary line to the right of lane i.
func (b Board) SlotX(i int) float64 {
	return b.LaneSpacing * float64(i+1)
}

// LaneAt maps a horizontal position to a lane index, clamped to [0, R].
func (b Board) LaneAt(x float64) int {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x >= b.Width {
		return b.Rows
	}
	lane := int(math.Floor(x / b.LaneSpacing))
	if lane > b.Rows {
		return b.Rows
	}
	return lane
}

// StartLane is the lane the ball is dropped above.
func (b Board) StartLane() int {
	return b.Rows / 2
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

package plinko

import (
	"github.com/shopspring/decimal"
)

// EventKind identifies what happened during a tick.
type EventKind int

const (
	EventCollision EventKind = iota
	EventWin
	EventLose
	EventRoundStart
	EventRoundEnd
)

func (k EventKind) String() string {
	switch k {
	case EventCollision:
		return "collision"
	case EventWin:
		return "win"
	case EventLose:
		return "lose"
	case EventRoundStart:
		return "round_start"
	case EventRoundEnd:
		return "round_end"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON payloads.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is emitted by the simulation for presentation collaborators (audio,
// celebration, rendering). Fields that do not apply to a kind are zero; Peg
// and Lane are -1 when unset.
type Event struct {
	Kind       EventKind       `json:"kind"`
	Tick       uint64          `json:"tick"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Peg        int             `json:"peg"`
	Lane       int             `json:"lane"`
	Multiplier float64         `json:"multiplier,omitempty"`
	Wager      decimal.Decimal `json:"wager"`
	Payout     decimal.Decimal `json:"payout"`
	Balance    decimal.Decimal `json:"balance"`
}

// Listener receives events as they are produced.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

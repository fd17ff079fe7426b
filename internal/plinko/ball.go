package plinko

// Phase is the lifecycle state of the ball, and therefore of the round.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDropping
	PhaseExiting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDropping:
		return "dropping"
	case PhaseExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Ball is the single mutable physical entity.
type Ball struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Phase Phase   `json:"phase"`
}

// Point is a sampled ball position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

package sound

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

// EffectFor returns the effect played for an event kind.
func EffectFor(kind plinko.EventKind) (Effect, bool) {
	var file string
	switch kind {
	case plinko.EventCollision:
		file = "plink.wav"
	case plinko.EventWin:
		file = "win.wav"
	case plinko.EventLose:
		file = "lose.wav"
	default:
		return Effect{}, false
	}
	for _, e := range Effects {
		if e.File == file {
			return e, true
		}
	}
	return Effect{}, false
}

// Player plays effects on the local audio device as a game listener. Until
// Initialize succeeds it stays silent.
type Player struct {
	mu          sync.Mutex
	rate        beep.SampleRate
	mixer       *beep.Mixer
	initialized bool
}

// NewPlayer creates a silent player.
func NewPlayer(rate beep.SampleRate) *Player {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Player{rate: rate, mixer: &beep.Mixer{}}
}

// Initialize opens the audio device. Failure is not fatal to callers; the
// game runs without sound.
func (p *Player) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := speaker.Init(p.rate, p.rate.N(100*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(p.mixer)
	p.initialized = true
	return nil
}

// OnEvent queues the effect for e, if it has one.
func (p *Player) OnEvent(e plinko.Event) {
	eff, ok := EffectFor(e.Kind)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return
	}
	speaker.Lock()
	p.mixer.Add(eff.Streamer(p.rate))
	speaker.Unlock()
}

// Close stops playback and releases the device.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return
	}
	speaker.Clear()
	speaker.Close()
	p.initialized = false
}

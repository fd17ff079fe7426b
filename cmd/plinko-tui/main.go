// Command plinko-tui plays Plinko in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/gopxl/beep"
	"github.com/shopspring/decimal"

	"github.com/MJE43/plinko-drop/internal/config"
	"github.com/MJE43/plinko-drop/internal/engine"
	"github.com/MJE43/plinko-drop/internal/plinko"
	"github.com/MJE43/plinko-drop/internal/sound"
	"github.com/MJE43/plinko-drop/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $PLINKO_CONFIG)")
	risk := flag.String("risk", "", "payout table (overrides config)")
	wager := flag.Float64("wager", 0, "initial wager (overrides config)")
	seed := flag.Uint64("seed", 0, "deterministic random seed; 0 uses the system source")
	flag.Parse()

	if err := run(*configPath, *risk, *wager, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "plinko-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, risk string, wager float64, seed uint64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if risk == "" {
		risk = cfg.Game.Risk
	}
	if wager <= 0 {
		wager = cfg.Game.DefaultWager
	}

	// the screen owns the terminal; listener failures are dropped
	logger := log.New(io.Discard, "[TUI] ", log.LstdFlags)

	rng := engine.DefaultSource()
	if seed != 0 {
		rng = engine.NewSeededSource(seed)
	}
	opts := []plinko.Option{
		plinko.WithRandomSource(rng),
		plinko.WithRisk(risk),
		plinko.WithStartingBalance(decimal.NewFromFloat(cfg.Game.StartingBalance)),
		plinko.WithLogger(logger),
	}

	var player *sound.Player
	if cfg.SoundEnabled() {
		player = sound.NewPlayer(beep.SampleRate(cfg.Sound.SampleRate))
		if err := player.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "audio unavailable: %v\n", err)
		}
		defer player.Close()
		opts = append(opts, plinko.WithListener(player))
	}

	game, err := plinko.NewGame(opts...)
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tui.New(screen, game, wager).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

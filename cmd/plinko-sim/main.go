// Command plinko-sim runs Plinko headlessly: a provably-fair batch scan over
// a nonce range, or an autobet strategy script against a single game.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/plinko-drop/internal/api"
	"github.com/MJE43/plinko-drop/internal/config"
	"github.com/MJE43/plinko-drop/internal/engine"
	"github.com/MJE43/plinko-drop/internal/plinko"
	"github.com/MJE43/plinko-drop/internal/scan"
	"github.com/MJE43/plinko-drop/internal/store"
	"github.com/MJE43/plinko-drop/internal/strategy"
)

var logger = log.New(os.Stderr, "[SIM] ", log.LstdFlags)

type options struct {
	configPath string
	jsonOut    bool

	serverSeed string
	clientSeed string
	start, end uint64
	wager      float64
	risk       string
	op         string
	target     float64
	target2    float64
	limit      int
	save       bool

	script  string
	maxBets int
	seed    uint64
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config file (default $PLINKO_CONFIG)")
	flag.BoolVar(&o.jsonOut, "json", false, "print the result as JSON")
	flag.StringVar(&o.serverSeed, "server-seed", "", "server seed for a batch scan")
	flag.StringVar(&o.clientSeed, "client-seed", "", "client seed for a batch scan")
	flag.Uint64Var(&o.start, "start", 0, "first nonce")
	flag.Uint64Var(&o.end, "end", 999, "last nonce (inclusive)")
	flag.Float64Var(&o.wager, "wager", 1, "wager per round")
	flag.StringVar(&o.risk, "risk", "", "payout table (default from config)")
	flag.StringVar(&o.op, "op", "ge", "hit condition: eq, gt, ge, lt, le, between, outside")
	flag.Float64Var(&o.target, "target", 3, "hit multiplier threshold")
	flag.Float64Var(&o.target2, "target2", 0, "upper bound for between/outside")
	flag.IntVar(&o.limit, "limit", 50, "maximum hits to report, 0 for all")
	flag.BoolVar(&o.save, "save", false, "store the scan in the run history")
	flag.StringVar(&o.script, "strategy", "", "autobet script file; switches to strategy mode")
	flag.IntVar(&o.maxBets, "max-bets", 0, "strategy bet limit (default from config)")
	flag.Uint64Var(&o.seed, "seed", 0, "strategy random seed; 0 uses the system source")
	flag.Parse()

	cfg, err := config.Load(o.configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if o.risk == "" {
		o.risk = cfg.Game.Risk
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.script != "" {
		err = runStrategy(ctx, cfg, o, os.Stdout)
	} else {
		err = runScan(ctx, cfg, o, os.Stdout)
	}
	if err != nil {
		logger.Fatalf("%v", err)
	}
}

func runScan(ctx context.Context, cfg config.Config, o options, w io.Writer) error {
	req := scan.Request{
		ServerSeed: o.serverSeed,
		ClientSeed: o.clientSeed,
		NonceStart: o.start,
		NonceEnd:   o.end,
		Wager:      o.wager,
		Risk:       o.risk,
		TargetOp:   scan.TargetOp(o.op),
		TargetVal:  o.target,
		TargetVal2: o.target2,
		Limit:      o.limit,
		TimeoutMs:  cfg.Scan.TimeoutMs,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	start := time.Now()
	res, err := scan.NewScanner(cfg.Scan.Workers).Scan(ctx, req)
	if err != nil {
		return err
	}
	res.EngineVersion = api.EngineVersion
	logger.Printf("scan_complete evaluated=%d hits=%d duration=%v timed_out=%t",
		res.Summary.TotalEvaluated, res.Summary.HitsFound, time.Since(start), res.Summary.TimedOut)

	if o.save {
		id, err := saveRun(cfg.Store.Path, res)
		if err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		logger.Printf("run_saved id=%s path=%s", id, cfg.Store.Path)
	}

	if o.jsonOut {
		return writeJSON(w, res)
	}
	printSummary(w, res)
	return nil
}

func saveRun(path string, res *scan.Result) (string, error) {
	db, err := store.NewSQLiteDB(path)
	if err != nil {
		return "", err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return "", err
	}

	run := store.NewRunFromResult(res, res.EngineVersion)
	if err := db.SaveRun(run); err != nil {
		return "", err
	}
	if err := db.SaveHits(run.ID, store.HitsFromResult(res)); err != nil {
		return "", err
	}
	return run.ID, nil
}

func printSummary(w io.Writer, res *scan.Result) {
	s := res.Summary
	table, _ := plinko.PayoutTable(res.Echo.Risk, plinko.DefaultRows)

	fmt.Fprintf(w, "rounds   %d (nonces %d-%d)\n", s.TotalEvaluated, res.Echo.NonceStart, res.Echo.NonceEnd)
	fmt.Fprintf(w, "wagered  %s\nreturned %s\nrtp      %.4f\n", s.TotalWagered.StringFixed(2), s.TotalReturned.StringFixed(2), s.RTP)
	fmt.Fprintf(w, "ticks    mean %.1f max %d\n", s.MeanTicks, s.MaxTicks)
	if s.Stalled > 0 {
		fmt.Fprintf(w, "stalled  %d\n", s.Stalled)
	}
	if s.TimedOut {
		fmt.Fprintln(w, "timed out before the range was finished")
	}

	fmt.Fprintln(w, "\nlane  multiplier  rounds  share")
	for lane, n := range s.LaneCounts {
		share := 0.0
		if s.TotalEvaluated > 0 {
			share = float64(n) / float64(s.TotalEvaluated)
		}
		m := 0.0
		if lane < len(table) {
			m = table[lane]
		}
		fmt.Fprintf(w, "%4d  %10g  %6d  %5.1f%% %s\n", lane, m, n, share*100, strings.Repeat("#", int(share*50)))
	}

	fmt.Fprintf(w, "\nhits %d (%s %g)\n", s.HitsFound, res.Echo.TargetOp, res.Echo.TargetVal)
	for _, h := range res.Hits {
		fmt.Fprintf(w, "  nonce %d lane %d %gx\n", h.Nonce, h.Lane, h.Multiplier)
	}
}

func runStrategy(ctx context.Context, cfg config.Config, o options, w io.Writer) error {
	script, err := os.ReadFile(o.script)
	if err != nil {
		return err
	}

	rng := engine.DefaultSource()
	if o.seed != 0 {
		rng = engine.NewSeededSource(o.seed)
	}
	game, err := plinko.NewGame(
		plinko.WithRandomSource(rng),
		plinko.WithRisk(o.risk),
		plinko.WithStartingBalance(decimal.NewFromFloat(cfg.Game.StartingBalance)),
		plinko.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	maxBets := o.maxBets
	if maxBets <= 0 {
		maxBets = cfg.Strategy.MaxBets
	}

	report, err := strategy.Run(ctx, string(script), strategy.GameBettor{Game: game}, strategy.Options{
		MaxBets:     maxBets,
		CallTimeout: time.Duration(cfg.Strategy.TimeoutMs) * time.Millisecond,
	})
	if report != nil {
		for _, entry := range report.Logs {
			logger.Printf("script: %s", entry.Message)
		}
	}
	if err != nil {
		return err
	}

	if o.jsonOut {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "bets     %d (%d wins, %d losses)\n", report.Bets, report.Wins, report.Losses)
	fmt.Fprintf(w, "balance  %.2f -> %.2f (profit %.2f)\n", report.StartBalance, report.EndBalance, report.Profit)
	fmt.Fprintf(w, "range    %.2f - %.2f\n", report.LowestBalance, report.HighestBalance)
	fmt.Fprintf(w, "wagered  %.2f\n", report.Wagered)
	fmt.Fprintf(w, "stopped  %s\n", report.StopReason)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

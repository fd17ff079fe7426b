// Package scan replays Plinko rounds headlessly across a nonce range and
// aggregates lane frequencies, return-to-player and matching drops.
package scan

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/plinko-drop/internal/engine"
	"github.com/MJE43/plinko-drop/internal/plinko"
)

// TargetOp represents comparison operations applied to a round's multiplier
type TargetOp string

const (
	OpEqual        TargetOp = "eq"
	OpGreater      TargetOp = "gt"
	OpGreaterEqual TargetOp = "ge"
	OpLess         TargetOp = "lt"
	OpLessEqual    TargetOp = "le"
	OpBetween      TargetOp = "between"
	OpOutside      TargetOp = "outside"
)

// Valid reports whether op is a known comparison.
func (op TargetOp) Valid() bool {
	switch op {
	case OpEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpBetween, OpOutside:
		return true
	}
	return false
}

// Request describes a batch simulation
type Request struct {
	ServerSeed string   `json:"server_seed"`
	ClientSeed string   `json:"client_seed"`
	NonceStart uint64   `json:"nonce_start"`
	NonceEnd   uint64   `json:"nonce_end"`
	Wager      float64  `json:"wager"`
	Risk       string   `json:"risk,omitempty"`
	TargetOp   TargetOp `json:"target_op"`
	TargetVal  float64  `json:"target_val"`
	TargetVal2 float64  `json:"target_val2,omitempty"` // for "between" and "outside"
	Tolerance  float64  `json:"tolerance"`
	Limit      int      `json:"limit,omitempty"`
	TimeoutMs  int      `json:"timeout_ms,omitempty"`
}

// Validate checks the request without running it.
func (r Request) Validate() error {
	if r.ServerSeed == "" || r.ClientSeed == "" {
		return ErrMissingSeeds
	}
	if r.NonceEnd < r.NonceStart {
		return fmt.Errorf("%w: end %d before start %d", ErrInvalidRange, r.NonceEnd, r.NonceStart)
	}
	if math.IsNaN(r.Wager) || math.IsInf(r.Wager, 0) || r.Wager <= 0 {
		return ErrInvalidWager
	}
	if r.TargetOp != "" && !r.TargetOp.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, r.TargetOp)
	}
	if _, err := plinko.PayoutTable(r.Risk, plinko.DefaultRows); err != nil {
		return err
	}
	return nil
}

// Count is the number of nonces in the range.
func (r Request) Count() uint64 {
	return r.NonceEnd - r.NonceStart + 1
}

// Hit is a round whose multiplier matched the target
type Hit struct {
	Nonce      uint64  `json:"nonce"`
	Lane       int     `json:"lane"`
	Multiplier float64 `json:"multiplier"`
	Ticks      int     `json:"ticks"`
}

// Summary contains aggregate statistics
type Summary struct {
	TotalEvaluated uint64          `json:"total_evaluated"`
	HitsFound      int             `json:"hits_found"`
	LaneCounts     []uint64        `json:"lane_counts"`
	TotalWagered   decimal.Decimal `json:"total_wagered"`
	TotalReturned  decimal.Decimal `json:"total_returned"`
	RTP            float64         `json:"rtp"`
	MeanTicks      float64         `json:"mean_ticks"`
	MaxTicks       int             `json:"max_ticks"`
	Stalled        uint64          `json:"stalled,omitempty"`
	TimedOut       bool            `json:"timed_out,omitempty"`
}

// Result contains the complete scan results
type Result struct {
	Hits          []Hit   `json:"hits"`
	Summary       Summary `json:"summary"`
	EngineVersion string  `json:"engine_version,omitempty"`
	Echo          Request `json:"echo"`
}

// Job is a batch of nonces handed to one worker
type Job struct {
	NonceStart uint64
	NonceEnd   uint64
}

// TargetEvaluator handles target condition evaluation with tolerance
type TargetEvaluator struct {
	op        TargetOp
	val1      float64
	val2      float64
	tolerance float64
}

// NewTargetEvaluator creates a new target evaluator
func NewTargetEvaluator(op TargetOp, val1, val2, tolerance float64) *TargetEvaluator {
	return &TargetEvaluator{op: op, val1: val1, val2: val2, tolerance: tolerance}
}

// Matches checks if a multiplier matches the target criteria. An empty op
// matches nothing.
func (te *TargetEvaluator) Matches(metric float64) bool {
	switch te.op {
	case OpEqual:
		return math.Abs(metric-te.val1) <= te.tolerance
	case OpGreater:
		return metric > te.val1+te.tolerance
	case OpGreaterEqual:
		return metric >= te.val1-te.tolerance
	case OpLess:
		return metric < te.val1-te.tolerance
	case OpLessEqual:
		return metric <= te.val1+te.tolerance
	case OpBetween:
		return metric >= te.val1-te.tolerance && metric <= te.val2+te.tolerance
	case OpOutside:
		return metric < te.val1-te.tolerance || metric > te.val2+te.tolerance
	default:
		return false
	}
}

// Scanner runs batch simulations on a fixed-size worker pool
type Scanner struct {
	workerCount int
	batchSize   uint64
}

// NewScanner creates a scanner. workers <= 0 uses GOMAXPROCS.
func NewScanner(workers int) *Scanner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scanner{workerCount: workers, batchSize: 256}
}

// Workers reports the pool size.
func (s *Scanner) Workers() int { return s.workerCount }

// tally is one worker's private accumulator, merged once the worker exits.
type tally struct {
	evaluated uint64
	lanes     []uint64
	wagered   decimal.Decimal
	returned  decimal.Decimal
	ticks     uint64
	maxTicks  int
	stalled   uint64
}

// Scan simulates every nonce in the range. Cancellation or timeout stops the
// scan early and is reported in Summary.TimedOut with partial results.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = 1e-9
	}
	evaluator := NewTargetEvaluator(req.TargetOp, req.TargetVal, req.TargetVal2, tolerance)

	jobs := make(chan Job, s.workerCount*2)
	hits := make(chan Hit, 1024)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		merged = newTally()
	)

	for i := 0; i < s.workerCount; i++ {
		w := &worker{
			id:        i,
			jobs:      jobs,
			hits:      hits,
			req:       req,
			evaluator: evaluator,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := w.run(ctx)
			mu.Lock()
			merged.merge(t)
			mu.Unlock()
		}()
	}

	go s.generateJobs(ctx, jobs, req.NonceStart, req.NonceEnd)
	go func() {
		wg.Wait()
		close(hits)
	}()

	collected, found := collectHits(hits, req.Limit)

	mu.Lock()
	defer mu.Unlock()
	timedOut := ctx.Err() != nil && merged.evaluated+merged.stalled < req.Count()

	return &Result{
		Hits:    collected,
		Summary: merged.summary(found, timedOut),
		Echo:    req,
	}, nil
}

// collectHits drains the hit channel until it is closed, keeping the lowest
// limit nonces (limit <= 0 keeps all). found counts every hit received.
func collectHits(hits <-chan Hit, limit int) (out []Hit, found int) {
	out = make([]Hit, 0, 64)
	for hit := range hits {
		out = append(out, hit)
	}
	found = len(out)
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, found
}

// generateJobs creates job batches
func (s *Scanner) generateJobs(ctx context.Context, jobs chan<- Job, start, end uint64) {
	defer close(jobs)

	for current := start; ; {
		batchEnd := current + s.batchSize - 1
		if batchEnd > end || batchEnd < current {
			batchEnd = end
		}

		select {
		case jobs <- Job{NonceStart: current, NonceEnd: batchEnd}:
		case <-ctx.Done():
			return
		}
		if batchEnd == end {
			return
		}
		current = batchEnd + 1
	}
}

type worker struct {
	id        int
	jobs      <-chan Job
	hits      chan<- Hit
	req       Request
	evaluator *TargetEvaluator
}

func (w *worker) run(ctx context.Context) *tally {
	t := newTally()
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return t
			}
			if !w.processJob(ctx, job, t) {
				return t
			}
		case <-ctx.Done():
			return t
		}
	}
}

// processJob plays each nonce in the job. It returns false once ctx is done.
func (w *worker) processJob(ctx context.Context, job Job, t *tally) bool {
	for nonce := job.NonceStart; ; nonce++ {
		if ctx.Err() != nil {
			return false
		}

		out, err := PlayNonce(w.req.ServerSeed, w.req.ClientSeed, nonce, w.req.Wager, w.req.Risk)
		if err != nil {
			// only a stalled round gets here; the request was validated up front
			t.stalled++
		} else {
			t.add(out)
			if w.evaluator.Matches(out.Multiplier) {
				select {
				case w.hits <- Hit{Nonce: nonce, Lane: out.Lane, Multiplier: out.Multiplier, Ticks: out.Ticks}:
				case <-ctx.Done():
					return false
				}
			}
		}

		if nonce == job.NonceEnd {
			return true
		}
	}
}

// PlayNonce replays the single round identified by the seed pair and nonce.
// The game is funded with exactly the wager so balance never limits replay.
func PlayNonce(serverSeed, clientSeed string, nonce uint64, wager float64, risk string) (plinko.Outcome, error) {
	return playNonce(serverSeed, clientSeed, nonce, wager, risk, false)
}

// TraceNonce is PlayNonce with the ball trajectory recorded.
func TraceNonce(serverSeed, clientSeed string, nonce uint64, wager float64, risk string) (plinko.Outcome, error) {
	return playNonce(serverSeed, clientSeed, nonce, wager, risk, true)
}

func playNonce(serverSeed, clientSeed string, nonce uint64, wager float64, risk string, trace bool) (plinko.Outcome, error) {
	opts := []plinko.Option{
		plinko.WithRandomSource(engine.NewFairSource(serverSeed, clientSeed, nonce)),
		plinko.WithStartingBalance(decimal.NewFromFloat(wager)),
	}
	if risk != "" {
		opts = append(opts, plinko.WithRisk(risk))
	}
	g, err := plinko.NewGame(opts...)
	if err != nil {
		return plinko.Outcome{}, err
	}
	return g.Play(wager, trace)
}

func newTally() *tally {
	return &tally{
		lanes:    make([]uint64, plinko.DefaultRows+1),
		wagered:  decimal.Zero,
		returned: decimal.Zero,
	}
}

func (t *tally) add(out plinko.Outcome) {
	t.evaluated++
	t.lanes[out.Lane]++
	t.wagered = t.wagered.Add(out.Wager)
	t.returned = t.returned.Add(out.Payout)
	t.ticks += uint64(out.Ticks)
	if out.Ticks > t.maxTicks {
		t.maxTicks = out.Ticks
	}
}

func (t *tally) merge(o *tally) {
	t.evaluated += o.evaluated
	for i := range t.lanes {
		t.lanes[i] += o.lanes[i]
	}
	t.wagered = t.wagered.Add(o.wagered)
	t.returned = t.returned.Add(o.returned)
	t.ticks += o.ticks
	if o.maxTicks > t.maxTicks {
		t.maxTicks = o.maxTicks
	}
	t.stalled += o.stalled
}

func (t *tally) summary(hits int, timedOut bool) Summary {
	s := Summary{
		TotalEvaluated: t.evaluated,
		HitsFound:      hits,
		LaneCounts:     append([]uint64(nil), t.lanes...),
		TotalWagered:   t.wagered,
		TotalReturned:  t.returned,
		MaxTicks:       t.maxTicks,
		Stalled:        t.stalled,
		TimedOut:       timedOut,
	}
	if t.evaluated > 0 {
		s.MeanTicks = float64(t.ticks) / float64(t.evaluated)
	}
	if t.wagered.IsPositive() {
		s.RTP, _ = t.returned.Div(t.wagered).Float64()
	}
	return s
}

package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

func baseRequest() Request {
	return Request{
		ServerSeed: "server-seed-for-tests",
		ClientSeed: "client-seed",
		NonceStart: 1,
		NonceEnd:   200,
		Wager:      1,
		TargetOp:   OpGreaterEqual,
		TargetVal:  3,
	}
}

func TestTargetEvaluator(t *testing.T) {
	tests := []struct {
		op     TargetOp
		v1, v2 float64
		metric float64
		want   bool
	}{
		{OpEqual, 1.5, 0, 1.5, true},
		{OpEqual, 1.5, 0, 1.6, false},
		{OpGreater, 3, 0, 3, false},
		{OpGreater, 3, 0, 5, true},
		{OpGreaterEqual, 3, 0, 3, true},
		{OpLess, 1, 0, 0.5, true},
		{OpLess, 1, 0, 1, false},
		{OpLessEqual, 1, 0, 1, true},
		{OpBetween, 1, 3, 1.5, true},
		{OpBetween, 1, 3, 5, false},
		{OpOutside, 1, 3, 0.5, true},
		{OpOutside, 1, 3, 3, false},
		{"", 0, 0, 5, false},
	}
	for _, tt := range tests {
		te := NewTargetEvaluator(tt.op, tt.v1, tt.v2, 1e-9)
		if got := te.Matches(tt.metric); got != tt.want {
			t.Errorf("%s(%v,%v) on %v = %v, want %v", tt.op, tt.v1, tt.v2, tt.metric, got, tt.want)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"missing seed", func(r *Request) { r.ServerSeed = "" }, ErrMissingSeeds},
		{"reversed range", func(r *Request) { r.NonceStart, r.NonceEnd = 10, 5 }, ErrInvalidRange},
		{"zero wager", func(r *Request) { r.Wager = 0 }, ErrInvalidWager},
		{"bad op", func(r *Request) { r.TargetOp = "approx" }, ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			if err := req.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	req := baseRequest()
	req.Risk = "volcanic"
	if err := req.Validate(); err == nil {
		t.Error("Expected error for unknown risk")
	}
}

func TestScanCountsEveryNonce(t *testing.T) {
	req := baseRequest()
	res, err := NewScanner(4).Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	s := res.Summary
	if s.TotalEvaluated != req.Count() {
		t.Errorf("Expected %d evaluated, got %d", req.Count(), s.TotalEvaluated)
	}
	if s.TimedOut {
		t.Error("Did not expect timeout")
	}
	var lanes uint64
	for _, c := range s.LaneCounts {
		lanes += c
	}
	if lanes != s.TotalEvaluated {
		t.Errorf("Lane histogram sums to %d, want %d", lanes, s.TotalEvaluated)
	}
	if s.MeanTicks <= 0 || s.MaxTicks <= 0 {
		t.Errorf("Expected positive tick stats, got mean=%v max=%d", s.MeanTicks, s.MaxTicks)
	}
	if s.RTP <= 0 {
		t.Errorf("Expected positive RTP, got %v", s.RTP)
	}

	table, _ := plinko.PayoutTable("", plinko.DefaultRows)
	wantHits := uint64(0)
	for lane, c := range s.LaneCounts {
		if table[lane] >= 3 {
			wantHits += c
		}
	}
	if uint64(s.HitsFound) != wantHits || len(res.Hits) != int(wantHits) {
		t.Errorf("Expected %d hits, got found=%d returned=%d", wantHits, s.HitsFound, len(res.Hits))
	}
	for i := 1; i < len(res.Hits); i++ {
		if res.Hits[i].Nonce <= res.Hits[i-1].Nonce {
			t.Fatalf("hits not ordered by nonce at %d", i)
		}
	}
}

func TestScanIsDeterministicAcrossWorkerCounts(t *testing.T) {
	req := baseRequest()
	req.NonceEnd = 120

	a, err := NewScanner(1).Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	b, err := NewScanner(6).Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	for i := range a.Summary.LaneCounts {
		if a.Summary.LaneCounts[i] != b.Summary.LaneCounts[i] {
			t.Fatalf("lane %d: %d vs %d", i, a.Summary.LaneCounts[i], b.Summary.LaneCounts[i])
		}
	}
	if !a.Summary.TotalReturned.Equal(b.Summary.TotalReturned) {
		t.Errorf("returned differs: %s vs %s", a.Summary.TotalReturned, b.Summary.TotalReturned)
	}
	if len(a.Hits) != len(b.Hits) {
		t.Fatalf("hit counts differ: %d vs %d", len(a.Hits), len(b.Hits))
	}
	for i := range a.Hits {
		if a.Hits[i] != b.Hits[i] {
			t.Errorf("hit %d differs: %+v vs %+v", i, a.Hits[i], b.Hits[i])
		}
	}
}

func TestScanMatchesSingleReplay(t *testing.T) {
	req := baseRequest()
	req.NonceStart, req.NonceEnd = 42, 42
	req.TargetOp = OpGreaterEqual
	req.TargetVal = 0

	res, err := NewScanner(2).Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	out, err := PlayNonce(req.ServerSeed, req.ClientSeed, 42, req.Wager, "")
	if err != nil {
		t.Fatalf("PlayNonce: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("Expected 1 hit, got %d", len(res.Hits))
	}
	if res.Hits[0].Lane != out.Lane || res.Hits[0].Ticks != out.Ticks {
		t.Errorf("scan hit %+v does not match replay %+v", res.Hits[0], out)
	}
}

func TestScanLimit(t *testing.T) {
	req := baseRequest()
	req.TargetOp = OpGreaterEqual
	req.TargetVal = 0 // every round matches
	req.Limit = 10

	res, err := NewScanner(3).Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Hits) != 10 {
		t.Errorf("Expected 10 hits, got %d", len(res.Hits))
	}
	if res.Summary.HitsFound != int(req.Count()) {
		t.Errorf("Expected %d found, got %d", req.Count(), res.Summary.HitsFound)
	}
	if res.Hits[0].Nonce != req.NonceStart {
		t.Errorf("Expected lowest nonces kept, first is %d", res.Hits[0].Nonce)
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := baseRequest()
	req.NonceEnd = 1_000_000
	res, err := NewScanner(2).Scan(ctx, req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Summary.TimedOut {
		t.Error("Expected cancelled scan to report TimedOut")
	}
	if res.Summary.TotalEvaluated >= req.Count() {
		t.Errorf("Expected partial evaluation, got %d", res.Summary.TotalEvaluated)
	}
}

func TestScanRiskTable(t *testing.T) {
	req := baseRequest()
	req.Risk = "high"
	req.NonceEnd = 50
	req.TargetOp = ""

	res, err := NewScanner(2).Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Hits) != 0 {
		t.Errorf("Expected no hits without a target, got %d", len(res.Hits))
	}

	table, _ := plinko.PayoutTable("high", plinko.DefaultRows)
	out, err := PlayNonce(req.ServerSeed, req.ClientSeed, 7, 1, "high")
	if err != nil {
		t.Fatalf("PlayNonce: %v", err)
	}
	if out.Multiplier != table[out.Lane] {
		t.Errorf("Expected high-risk multiplier %v, got %v", table[out.Lane], out.Multiplier)
	}
}

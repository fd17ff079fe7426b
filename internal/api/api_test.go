package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MJE43/plinko-drop/internal/config"
	"github.com/MJE43/plinko-drop/internal/scan"
	"github.com/MJE43/plinko-drop/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.WebRoot = t.TempDir()
	cfg.Scan.Workers = 2
	if err := os.WriteFile(filepath.Join(cfg.Server.WebRoot, "index.html"), []byte("<html>plinko</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config, withStore bool) *Server {
	t.Helper()
	var db store.DB
	if withStore {
		sqlite, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "runs.db"))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { sqlite.Close() })
		if err := sqlite.Migrate(); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		db = sqlite
	}
	return NewServer(cfg, db, WithLogOutput(io.Discard))
}

func do(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, errType string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Error-Type"); got != errType {
		t.Errorf("Expected X-Error-Type %s, got %s", errType, got)
	}
	var e EngineError
	decode(t, w, &e)
	if e.Type != errType || e.Timestamp == "" {
		t.Errorf("Unexpected error body: %+v", e)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, testConfig(t), true).Routes()

	w := do(t, h, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp HealthCheckResponse
	decode(t, w, &resp)
	for _, name := range []string{"board", "database", "assets"} {
		if _, ok := resp.Checks[name]; !ok {
			t.Errorf("Expected %s check in response", name)
		}
	}
	if resp.Checks["database"].Status != HealthStatusHealthy {
		t.Errorf("Expected healthy database, got %+v", resp.Checks["database"])
	}
	if resp.EngineVersion == "" {
		t.Error("Expected engine version in response")
	}
}

func TestHealthWithoutStoreIsDegraded(t *testing.T) {
	h := newTestServer(t, testConfig(t), false).Routes()

	w := do(t, h, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp HealthCheckResponse
	decode(t, w, &resp)
	if resp.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded status, got %s", resp.Status)
	}
}

func TestProbes(t *testing.T) {
	h := newTestServer(t, testConfig(t), false).Routes()
	for _, path := range []string{"/health/ready", "/health/live", "/api/v1/version"} {
		if w := do(t, h, "GET", path, nil); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestBoardEndpoint(t *testing.T) {
	h := newTestServer(t, testConfig(t), false).Routes()

	w := do(t, h, "GET", "/api/v1/board", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp BoardResponse
	decode(t, w, &resp)
	if resp.Board.Rows != 8 || len(resp.Pegs) != 36 {
		t.Errorf("Expected 8 rows and 36 pegs, got %d rows, %d pegs", resp.Board.Rows, len(resp.Pegs))
	}
	if len(resp.SlotLines) != 8 || len(resp.LaneCenters) != 9 || len(resp.Multipliers) != 9 {
		t.Errorf("Unexpected lane data: %d slots, %d centres, %d multipliers",
			len(resp.SlotLines), len(resp.LaneCenters), len(resp.Multipliers))
	}
	if resp.Multipliers[0] != 5 || resp.Multipliers[4] != 0.5 {
		t.Errorf("Expected classic table, got %v", resp.Multipliers)
	}
	if resp.StartingBalance.IntPart() != 10000 {
		t.Errorf("Expected starting balance 10000, got %s", resp.StartingBalance)
	}
	for i, c := range resp.LaneCenters {
		if i < len(resp.SlotLines) && c >= resp.SlotLines[i] {
			t.Errorf("lane %d centre %v not left of slot line %v", i, c, resp.SlotLines[i])
		}
	}

	expectError(t, do(t, h, "GET", "/api/v1/board?risk=extreme", nil), http.StatusBadRequest, ErrTypeInvalidParams)
}

func TestReplayIsDeterministic(t *testing.T) {
	h := newTestServer(t, testConfig(t), false).Routes()
	req := ReplayRequest{ServerSeed: "top-secret", ClientSeed: "client", Nonce: 42, Wager: 10}

	first := do(t, h, "POST", "/api/v1/replay", req)
	if first.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", first.Code, first.Body.String())
	}
	if strings.Contains(first.Body.String(), "top-secret") {
		t.Error("Response must not contain the raw server seed")
	}
	var a, b ReplayResponse
	decode(t, first, &a)
	decode(t, do(t, h, "POST", "/api/v1/replay", req), &b)

	if a.Outcome.Lane != b.Outcome.Lane || a.Outcome.Ticks != b.Outcome.Ticks || a.Outcome.Collisions != b.Outcome.Collisions {
		t.Errorf("Replays differ: %+v vs %+v", a.Outcome, b.Outcome)
	}

	direct, err := scan.PlayNonce("top-secret", "client", 42, 10, "")
	if err != nil {
		t.Fatalf("PlayNonce: %v", err)
	}
	if direct.Lane != a.Outcome.Lane || !direct.Payout.Equal(a.Outcome.Payout) {
		t.Errorf("Replay %+v does not match direct play %+v", a.Outcome, direct)
	}
	if a.Risk != "classic" || len(a.ServerSeedHash) != 64 {
		t.Errorf("Unexpected echo: risk=%q hash=%q", a.Risk, a.ServerSeedHash)
	}
	if len(a.Outcome.Path) != 0 {
		t.Error("Expected no trajectory unless requested")
	}

	req.Trajectory = true
	var traced ReplayResponse
	decode(t, do(t, h, "POST", "/api/v1/replay", req), &traced)
	if len(traced.Outcome.Path) < 2 || traced.Outcome.Path[0].Y != 10 {
		t.Errorf("Expected a trajectory starting at the drop height, got %d points", len(traced.Outcome.Path))
	}
}

func TestReplayValidation(t *testing.T) {
	h := newTestServer(t, testConfig(t), false).Routes()

	tests := []struct {
		name    string
		body    interface{}
		errType string
	}{
		{"missing seeds", ReplayRequest{ClientSeed: "c", Wager: 1}, ErrTypeInvalidSeed},
		{"zero wager", ReplayRequest{ServerSeed: "s", ClientSeed: "c"}, ErrTypeInvalidWager},
		{"negative wager", ReplayRequest{ServerSeed: "s", ClientSeed: "c", Wager: -5}, ErrTypeInvalidWager},
		{"unknown risk", ReplayRequest{ServerSeed: "s", ClientSeed: "c", Wager: 1, Risk: "wild"}, ErrTypeInvalidParams},
		{"bad json", `{"server_seed":`, ErrTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, do(t, h, "POST", "/api/v1/replay", tt.body), http.StatusBadRequest, tt.errType)
		})
	}
}

func TestScanEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scan.MaxNonces = 500
	h := newTestServer(t, cfg, false).Routes()

	w := do(t, h, "POST", "/api/v1/scan", scan.Request{
		ServerSeed: "server",
		ClientSeed: "client",
		NonceStart: 0,
		NonceEnd:   99,
		Wager:      1,
		TargetOp:   scan.OpGreaterEqual,
		TargetVal:  3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ScanResponse
	decode(t, w, &resp)
	if resp.Summary.TotalEvaluated != 100 {
		t.Errorf("Expected 100 rounds, got %d", resp.Summary.TotalEvaluated)
	}
	for _, hit := range resp.Hits {
		if hit.Multiplier < 3 {
			t.Errorf("hit %+v below target", hit)
		}
	}
	if resp.EngineVersion != EngineVersion {
		t.Errorf("Expected engine version %s, got %s", EngineVersion, resp.EngineVersion)
	}

	tooMany := scan.Request{ServerSeed: "s", ClientSeed: "c", NonceStart: 0, NonceEnd: 500, Wager: 1}
	expectError(t, do(t, h, "POST", "/api/v1/scan", tooMany), http.StatusBadRequest, ErrTypeInvalidNonce)

	backwards := scan.Request{ServerSeed: "s", ClientSeed: "c", NonceStart: 10, NonceEnd: 5, Wager: 1}
	expectError(t, do(t, h, "POST", "/api/v1/scan", backwards), http.StatusBadRequest, ErrTypeInvalidNonce)

	badOp := scan.Request{ServerSeed: "s", ClientSeed: "c", NonceEnd: 5, Wager: 1, TargetOp: "approx"}
	expectError(t, do(t, h, "POST", "/api/v1/scan", badOp), http.StatusBadRequest, ErrTypeInvalidParams)
}

func TestRunsLifecycle(t *testing.T) {
	h := newTestServer(t, testConfig(t), true).Routes()

	w := do(t, h, "POST", "/api/v1/runs", scan.Request{
		ServerSeed: "server",
		ClientSeed: "client",
		NonceStart: 1,
		NonceEnd:   60,
		Wager:      2,
		Risk:       "high",
		TargetOp:   scan.OpGreater,
		TargetVal:  1,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created RunResponse
	decode(t, w, &created)
	if created.Run == nil || created.Run.ID == "" {
		t.Fatal("Expected a saved run with an ID")
	}
	if created.Run.ServerSeedHash == "server" || len(created.Run.ServerSeedHash) != 64 {
		t.Errorf("Expected hashed server seed, got %q", created.Run.ServerSeedHash)
	}

	var list store.RunsList
	decode(t, do(t, h, "GET", "/api/v1/runs?risk=high", nil), &list)
	if list.TotalCount != 1 || list.Runs[0].ID != created.Run.ID {
		t.Errorf("Expected the created run in the list, got %+v", list)
	}

	var run store.Run
	decode(t, do(t, h, "GET", "/api/v1/runs/"+created.Run.ID, nil), &run)
	var total uint64
	for _, c := range run.LaneCounts {
		total += c
	}
	if total != 60 {
		t.Errorf("Expected 60 rounds in the histogram, got %d", total)
	}

	var hits HitsResponse
	decode(t, do(t, h, "GET", "/api/v1/runs/"+created.Run.ID+"/hits?limit=1000", nil), &hits)
	if len(hits.Hits) != created.Summary.HitsFound {
		t.Errorf("Expected %d stored hits, got %d", created.Summary.HitsFound, len(hits.Hits))
	}

	expectError(t, do(t, h, "GET", "/api/v1/runs/nope", nil), http.StatusNotFound, ErrTypeRunNotFound)
	expectError(t, do(t, h, "GET", "/api/v1/runs/nope/hits", nil), http.StatusNotFound, ErrTypeRunNotFound)
	expectError(t, do(t, h, "GET", "/api/v1/runs?page=abc", nil), http.StatusBadRequest, ErrTypeInvalidParams)
}

func TestRunsWithoutStore(t *testing.T) {
	h := newTestServer(t, testConfig(t), false).Routes()
	expectError(t, do(t, h, "GET", "/api/v1/runs", nil), http.StatusServiceUnavailable, ErrTypeServiceUnavailable)
}

func TestRecoveryHandler(t *testing.T) {
	s := newTestServer(t, testConfig(t), false)
	h := s.errorHandler.RecoveryHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	expectError(t, do(t, h, "GET", "/", nil), http.StatusInternalServerError, ErrTypeInternal)
}

func TestMetricsCountsRoutes(t *testing.T) {
	h := newTestServer(t, testConfig(t), false).Routes()

	do(t, h, "GET", "/api/v1/board", nil)
	do(t, h, "GET", "/api/v1/board?risk=nope", nil)

	var resp MetricsResponse
	decode(t, do(t, h, "GET", "/metrics", nil), &resp)
	op, ok := resp.Operations["GET /api/v1/board"]
	if !ok {
		t.Fatalf("Expected board metrics, got %v", resp.Operations)
	}
	if op.TotalRequests != 2 || op.ErrorRequests != 1 {
		t.Errorf("Expected 2 requests with 1 error, got %+v", op)
	}
}

func TestErrorCategories(t *testing.T) {
	tests := map[string]ErrorCategory{
		ErrTypeInvalidWager:        CategoryValidation,
		ErrTypeInsufficientBalance: CategoryGame,
		ErrTypeRunNotFound:         CategoryNotFound,
		ErrTypeTimeout:             CategoryTimeout,
		ErrTypeStorage:             CategorySystem,
	}
	for errType, want := range tests {
		if got := GetErrorCategory(errType); got != want {
			t.Errorf("GetErrorCategory(%s) = %s, want %s", errType, got, want)
		}
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := newTestServer(t, testConfig(t), false)

	addr, err := s.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + addr.String() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "<html>plinko</html>" {
		t.Errorf("Expected index page, got %d %q", resp.StatusCode, body)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/MJE43/plinko-drop/internal/engine"
	"github.com/MJE43/plinko-drop/internal/plinko"
	"github.com/MJE43/plinko-drop/internal/scan"
	"github.com/MJE43/plinko-drop/internal/store"
)

const (
	defaultHitsLimit = 100
	maxHitsLimit     = 1000
)

// handleBoard reports the fixed geometry and the payout table for ?risk=
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	risk := r.URL.Query().Get("risk")
	if risk == "" {
		risk = s.cfg.Game.Risk
	}
	multipliers, err := plinko.PayoutTable(risk, plinko.DefaultRows)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, ErrTypeInvalidParams, "risk", err.Error())
		return
	}

	board := plinko.DefaultBoard()
	slots := make([]float64, board.Rows)
	for i := range slots {
		slots[i] = board.SlotX(i)
	}
	centers := make([]float64, board.Lanes())
	for i := range centers {
		centers[i] = board.LaneCenter(i)
	}

	s.writeJSON(w, http.StatusOK, BoardResponse{
		Board:           board,
		Risk:            risk,
		Risks:           plinko.Risks(),
		Multipliers:     multipliers,
		Pegs:            plinko.NewLattice(board).Pegs(),
		SlotLines:       slots,
		LaneCenters:     centers,
		StartingBalance: decimal.NewFromFloat(s.cfg.Game.StartingBalance),
		DefaultWager:    s.cfg.Game.DefaultWager,
		EngineVersion:   EngineVersion,
	})
}

// handleReplay re-runs one provably-fair round. It holds no balance.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	var req ReplayRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.ServerSeed == "" || req.ClientSeed == "" {
		s.errorHandler.HandleValidationError(w, r, ErrTypeInvalidSeed, "server_seed", "server and client seeds are required")
		return
	}
	if !validWager(req.Wager) {
		s.errorHandler.HandleValidationError(w, r, ErrTypeInvalidWager, "wager", "wager must be a positive finite number")
		return
	}
	if _, err := plinko.PayoutTable(req.Risk, plinko.DefaultRows); err != nil {
		s.errorHandler.HandleValidationError(w, r, ErrTypeInvalidParams, "risk", err.Error())
		return
	}

	play := scan.PlayNonce
	if req.Trajectory {
		play = scan.TraceNonce
	}
	out, err := play(req.ServerSeed, req.ClientSeed, req.Nonce, req.Wager, req.Risk)
	if err != nil {
		s.errorHandler.HandleRoundError(w, r, err)
		return
	}

	risk := req.Risk
	if risk == "" {
		risk = plinko.DefaultRisk
	}
	s.audit.LogReplay(requestID, req.ServerSeed, req.ClientSeed, req.Nonce, risk, out.Lane, out.Multiplier)

	s.writeJSON(w, http.StatusOK, ReplayResponse{
		Nonce:          req.Nonce,
		ServerSeedHash: engine.HashServerSeed(req.ServerSeed),
		ClientSeed:     req.ClientSeed,
		Risk:           risk,
		Outcome:        out,
		EngineVersion:  EngineVersion,
	})
}

// handleScan runs a batch simulation without persisting it
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scan.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, ok := s.runScan(w, r, req)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, ScanResponse{
		Hits:          res.Hits,
		Summary:       res.Summary,
		EngineVersion: res.EngineVersion,
	})
}

// handleCreateRun runs a batch simulation and stores it in the run history
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "run history")
		return
	}

	var req scan.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, ok := s.runScan(w, r, req)
	if !ok {
		return
	}

	run := store.NewRunFromResult(res, res.EngineVersion)
	if err := s.db.SaveRun(run); err != nil {
		s.errorHandler.HandleError(w, r, storageError(r, "save run", err), http.StatusInternalServerError)
		return
	}
	if err := s.db.SaveHits(run.ID, store.HitsFromResult(res)); err != nil {
		s.errorHandler.HandleError(w, r, storageError(r, "save hits", err), http.StatusInternalServerError)
		return
	}

	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), "run_saved", "runs", "success", map[string]interface{}{
		"run_id": run.ID,
		"hits":   res.Summary.HitsFound,
	})

	s.writeJSON(w, http.StatusCreated, RunResponse{
		Run:           run,
		Hits:          res.Hits,
		Summary:       res.Summary,
		EngineVersion: res.EngineVersion,
	})
}

// runScan validates req against the configured limits and runs it.
func (s *Server) runScan(w http.ResponseWriter, r *http.Request, req scan.Request) (*scan.Result, bool) {
	if err := req.Validate(); err != nil {
		errType, field := scanErrorType(err)
		s.errorHandler.HandleValidationError(w, r, errType, field, err.Error())
		return nil, false
	}
	if limit := s.cfg.Scan.MaxNonces; limit > 0 && req.NonceEnd-req.NonceStart >= limit {
		s.errorHandler.HandleValidationError(w, r, ErrTypeInvalidNonce, "nonce_end",
			"nonce range exceeds "+strconv.FormatUint(limit, 10)+" rounds")
		return nil, false
	}
	if limit := s.cfg.Scan.TimeoutMs; limit > 0 && (req.TimeoutMs <= 0 || req.TimeoutMs > limit) {
		req.TimeoutMs = limit
	}

	start := time.Now()
	res, err := s.scanner.Scan(r.Context(), req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return nil, false
	}
	if res.Summary.TimedOut && errors.Is(r.Context().Err(), context.Canceled) {
		// client went away; nothing to answer
		return nil, false
	}
	res.EngineVersion = EngineVersion

	s.audit.LogScanOperation(
		middleware.GetReqID(r.Context()),
		req.ServerSeed,
		req.ClientSeed,
		req.NonceStart,
		req.NonceEnd,
		req.Risk,
		string(req.TargetOp),
		res.Summary.TotalEvaluated,
		res.Summary.HitsFound,
		time.Since(start),
		res.Summary.TimedOut,
	)
	return res, true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "run history")
		return
	}

	q := r.URL.Query()
	page, ok := s.intParam(w, r, "page", 1)
	if !ok {
		return
	}
	perPage, ok := s.intParam(w, r, "per_page", 50)
	if !ok {
		return
	}

	list, err := s.db.ListRuns(store.RunsQuery{Risk: q.Get("risk"), Page: page, PerPage: perPage})
	if err != nil {
		s.errorHandler.HandleError(w, r, storageError(r, "list runs", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "run history")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.db.GetRun(id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorHandler.HandleNotFound(w, r, ErrTypeRunNotFound, "run", id)
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, storageError(r, "get run", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetHits(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "run history")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.db.GetRun(id); errors.Is(err, store.ErrNotFound) {
		s.errorHandler.HandleNotFound(w, r, ErrTypeRunNotFound, "run", id)
		return
	} else if err != nil {
		s.errorHandler.HandleError(w, r, storageError(r, "get run", err), http.StatusInternalServerError)
		return
	}

	limit, ok := s.intParam(w, r, "limit", defaultHitsLimit)
	if !ok {
		return
	}
	offset, ok := s.intParam(w, r, "offset", 0)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxHitsLimit {
		limit = maxHitsLimit
	}
	if offset < 0 {
		offset = 0
	}

	hits, err := s.db.GetHits(id, limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, storageError(r, "get hits", err), http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []store.Hit{}
	}
	s.writeJSON(w, http.StatusOK, HitsResponse{RunID: id, Hits: hits, Limit: limit, Offset: offset})
}

// intParam reads an optional integer query parameter.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, ErrTypeInvalidParams, name, "must be an integer")
		return 0, false
	}
	return v, true
}

func scanErrorType(err error) (errType, field string) {
	switch {
	case errors.Is(err, scan.ErrMissingSeeds):
		return ErrTypeInvalidSeed, "server_seed"
	case errors.Is(err, scan.ErrInvalidRange):
		return ErrTypeInvalidNonce, "nonce_end"
	case errors.Is(err, scan.ErrInvalidWager):
		return ErrTypeInvalidWager, "wager"
	case errors.Is(err, scan.ErrInvalidTarget):
		return ErrTypeInvalidParams, "target_op"
	default:
		return ErrTypeInvalidParams, "risk"
	}
}

func storageError(r *http.Request, op string, err error) EngineError {
	return NewError(ErrTypeStorage, "Run history "+op+" failed").
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("operation", op).
		WithCause(err).
		Build()
}

func validWager(w float64) bool {
	return w > 0 && !math.IsNaN(w) && !math.IsInf(w, 0)
}

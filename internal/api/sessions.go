package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

const (
	defaultMaxSessions = 1024
	defaultSessionTTL  = 30 * time.Minute
)

var errSessionLimit = errors.New("session limit reached")

// session is one player's game. A Game is single-threaded, so every use
// holds mu.
type session struct {
	mu       sync.Mutex
	id       string
	game     *plinko.Game
	events   []plinko.Event
	lastUsed time.Time
}

func (s *session) OnEvent(e plinko.Event) {
	s.events = append(s.events, e)
}

func (s *session) state() SessionResponse {
	resp := SessionResponse{
		ID:          s.id,
		Risk:        s.game.Risk(),
		Multipliers: s.game.Multipliers(),
		Balance:     s.game.Balance(),
	}
	if last, ok := s.game.LastRound(); ok {
		resp.Last = &last
	}
	return resp
}

// sessionStore holds live sessions. Idle sessions expire after ttl and are
// pruned whenever a new one is created.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	max      int
	ttl      time.Duration
	now      func() time.Time
}

func newSessionStore(limit int, ttl time.Duration) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		max:      limit,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (st *sessionStore) Create(opts ...plinko.Option) (*session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.pruneLocked()
	if len(st.sessions) >= st.max {
		return nil, errSessionLimit
	}

	sess := &session{id: uuid.NewString(), lastUsed: st.now()}
	g, err := plinko.NewGame(append(opts, plinko.WithListener(sess))...)
	if err != nil {
		return nil, err
	}
	sess.game = g
	st.sessions[sess.id] = sess
	return sess, nil
}

func (st *sessionStore) Get(id string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	if ok {
		sess.lastUsed = st.now()
	}
	return sess, ok
}

func (st *sessionStore) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	return ok
}

func (st *sessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *sessionStore) pruneLocked() {
	cutoff := st.now().Add(-st.ttl)
	for id, sess := range st.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}
	risk := req.Risk
	if risk == "" {
		risk = s.cfg.Game.Risk
	}
	if _, err := plinko.PayoutTable(risk, plinko.DefaultRows); err != nil {
		s.errorHandler.HandleValidationError(w, r, ErrTypeInvalidParams, "risk", err.Error())
		return
	}

	sess, err := s.sessions.Create(
		plinko.WithRisk(risk),
		plinko.WithStartingBalance(decimal.NewFromFloat(s.cfg.Game.StartingBalance)),
		plinko.WithLogger(s.logger),
	)
	if errors.Is(err, errSessionLimit) {
		s.errorHandler.HandleUnavailable(w, r, "session capacity")
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), "session_created", "sessions", "success", map[string]interface{}{
		"session_id": sess.id,
		"risk":       risk,
	})

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.writeJSON(w, http.StatusCreated, sess.state())
}

// session looks up the {id} route parameter, answering 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		s.errorHandler.HandleNotFound(w, r, ErrTypeSessionNotFound, "session", id)
	}
	return sess, ok
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.writeJSON(w, http.StatusOK, sess.state())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.Delete(id) {
		s.errorHandler.HandleNotFound(w, r, ErrTypeSessionNotFound, "session", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDrop plays one round to completion and returns its trajectory with
// the collision and result events, so the client can animate it.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req DropRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.events = nil
	out, err := sess.game.Play(req.Wager, true)
	events := sess.events
	sess.events = nil
	if err != nil {
		s.errorHandler.HandleRoundError(w, r, err)
		return
	}

	s.audit.LogRound(
		middleware.GetReqID(r.Context()),
		sess.id,
		out.Wager.String(),
		out.Payout.String(),
		out.Balance.String(),
		out.Lane,
		out.Ticks,
	)

	s.writeJSON(w, http.StatusOK, DropResponse{
		SessionID: sess.id,
		Outcome:   out,
		Events:    events,
	})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.game.Reset()
	s.writeJSON(w, http.StatusOK, sess.state())
}

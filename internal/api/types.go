package api

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/plinko-drop/internal/plinko"
	"github.com/MJE43/plinko-drop/internal/scan"
	"github.com/MJE43/plinko-drop/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidSeed   = "invalid_seed"
	ErrTypeInvalidNonce  = "invalid_nonce"
	ErrTypeInvalidWager  = "invalid_wager"
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"

	// Round-related errors
	ErrTypeRoundActive         = "round_active"
	ErrTypeInsufficientBalance = "insufficient_balance"
	ErrTypeSimulation          = "simulation_error"

	// Lookup errors
	ErrTypeRunNotFound     = "run_not_found"
	ErrTypeSessionNotFound = "session_not_found"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeStorage            = "storage_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategoryNotFound   ErrorCategory = "not_found"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidSeed, ErrTypeInvalidNonce, ErrTypeInvalidWager, ErrTypeInvalidParams, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeRoundActive, ErrTypeInsufficientBalance, ErrTypeSimulation:
		return CategoryGame
	case ErrTypeRunNotFound, ErrTypeSessionNotFound:
		return CategoryNotFound
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// BoardResponse is the read-only geometry a renderer needs to draw the board
type BoardResponse struct {
	Board           plinko.Board    `json:"board"`
	Risk            string          `json:"risk"`
	Risks           []string        `json:"risks"`
	Multipliers     []float64       `json:"multipliers"`
	Pegs            []plinko.Peg    `json:"pegs"`
	SlotLines       []float64       `json:"slot_lines"`
	LaneCenters     []float64       `json:"lane_centers"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	DefaultWager    float64         `json:"default_wager"`
	EngineVersion   string          `json:"engine_version"`
}

// ReplayRequest identifies one provably-fair round
type ReplayRequest struct {
	ServerSeed string  `json:"server_seed"`
	ClientSeed string  `json:"client_seed"`
	Nonce      uint64  `json:"nonce"`
	Wager      float64 `json:"wager"`
	Risk       string  `json:"risk,omitempty"`
	Trajectory bool    `json:"trajectory,omitempty"`
}

// ReplayResponse is the deterministic result of a replayed round. The raw
// server seed is never echoed back.
type ReplayResponse struct {
	Nonce          uint64         `json:"nonce"`
	ServerSeedHash string         `json:"server_seed_hash"`
	ClientSeed     string         `json:"client_seed"`
	Risk           string         `json:"risk"`
	Outcome        plinko.Outcome `json:"outcome"`
	EngineVersion  string         `json:"engine_version"`
}

// ScanResponse represents the complete scan response
type ScanResponse struct {
	Hits          []scan.Hit   `json:"hits"`
	Summary       scan.Summary `json:"summary"`
	EngineVersion string       `json:"engine_version"`
}

// RunResponse is a persisted scan
type RunResponse struct {
	Run           *store.Run   `json:"run"`
	Hits          []scan.Hit   `json:"hits,omitempty"`
	Summary       scan.Summary `json:"summary"`
	EngineVersion string       `json:"engine_version"`
}

// HitsResponse is a page of a run's hits
type HitsResponse struct {
	RunID  string      `json:"run_id"`
	Hits   []store.Hit `json:"hits"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// SessionRequest opens an interactive session
type SessionRequest struct {
	Risk string `json:"risk,omitempty"`
}

// SessionResponse describes a session's current state
type SessionResponse struct {
	ID          string          `json:"id"`
	Risk        string          `json:"risk"`
	Multipliers []float64       `json:"multipliers"`
	Balance     decimal.Decimal `json:"balance"`
	Last        *plinko.Round   `json:"last,omitempty"`
}

// DropRequest stakes one round in a session
type DropRequest struct {
	Wager float64 `json:"wager"`
}

// DropResponse carries a settled round, its trajectory and the events the
// client replays while animating it
type DropResponse struct {
	SessionID string         `json:"session_id"`
	Outcome   plinko.Outcome `json:"outcome"`
	Events    []plinko.Event `json:"events"`
}

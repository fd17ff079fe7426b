package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// DB represents the database interface
type DB interface {
	Close() error
	Ping() error
	Migrate() error
	SaveRun(run *Run) error
	SaveHits(runID string, hits []Hit) error
	GetRun(id string) (*Run, error)
	GetHits(runID string, limit, offset int) ([]Hit, error)
	ListRuns(query RunsQuery) (*RunsList, error)
}

// RunsQuery represents query parameters for listing runs
type RunsQuery struct {
	Risk    string `json:"risk,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// RunsList represents paginated runs response
type RunsList struct {
	Runs       []Run `json:"runs"`
	TotalCount int   `json:"totalCount"`
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalPages int   `json:"totalPages"`
}

// Run is a persisted batch simulation
type Run struct {
	ID             string          `json:"id"`
	ServerSeedHash string          `json:"server_seed_hash"`
	ClientSeed     string          `json:"client_seed"`
	NonceStart     uint64          `json:"nonce_start"`
	NonceEnd       uint64          `json:"nonce_end"`
	Wager          float64         `json:"wager"`
	Risk           string          `json:"risk"`
	TargetOp       string          `json:"target_op"`
	TargetVal      float64         `json:"target_val"`
	TargetVal2     float64         `json:"target_val2"`
	HitCount       int             `json:"hit_count"`
	TotalEvaluated uint64          `json:"total_evaluated"`
	TotalWagered   decimal.Decimal `json:"total_wagered"`
	TotalReturned  decimal.Decimal `json:"total_returned"`
	RTP            float64         `json:"rtp"`
	MeanTicks      float64         `json:"mean_ticks"`
	MaxTicks       int             `json:"max_ticks"`
	TimedOut       bool            `json:"timed_out"`
	EngineVersion  string          `json:"engine_version"`
	CreatedAt      time.Time       `json:"created_at"`

	// LaneCounts is stored in run_lanes, one row per lane.
	LaneCounts []uint64 `json:"lane_counts"`
}

// Hit represents a single matching round of a run
type Hit struct {
	ID         int64   `json:"id"`
	RunID      string  `json:"run_id"`
	Nonce      uint64  `json:"nonce"`
	Lane       int     `json:"lane"`
	Multiplier float64 `json:"multiplier"`
	Ticks      int     `json:"ticks"`
}

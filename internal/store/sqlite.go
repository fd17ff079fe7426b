package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/MJE43/plinko-drop/internal/engine"
	"github.com/MJE43/plinko-drop/internal/scan"
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (creating if needed) the database at path. The parent
// directory is created for file-backed databases.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases coherent and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteDB) Ping() error {
	return s.db.Ping()
}

// Migrate creates tables and indexes. It is safe to run repeatedly.
func (s *SQLiteDB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			server_seed_hash TEXT NOT NULL,
			client_seed TEXT NOT NULL,
			nonce_start INTEGER NOT NULL,
			nonce_end INTEGER NOT NULL,
			wager REAL NOT NULL,
			risk TEXT NOT NULL,
			target_op TEXT NOT NULL DEFAULT '',
			target_val REAL NOT NULL DEFAULT 0,
			target_val2 REAL NOT NULL DEFAULT 0,
			hit_count INTEGER NOT NULL DEFAULT 0,
			total_evaluated INTEGER NOT NULL DEFAULT 0,
			total_wagered TEXT NOT NULL DEFAULT '0',
			total_returned TEXT NOT NULL DEFAULT '0',
			rtp REAL NOT NULL DEFAULT 0,
			mean_ticks REAL NOT NULL DEFAULT 0,
			max_ticks INTEGER NOT NULL DEFAULT 0,
			timed_out INTEGER NOT NULL DEFAULT 0,
			engine_version TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_lanes (
			run_id TEXT NOT NULL,
			lane INTEGER NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (run_id, lane),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS run_hits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			nonce INTEGER NOT NULL,
			lane INTEGER NOT NULL,
			multiplier REAL NOT NULL,
			ticks INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_risk_created ON runs(risk, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_run_hits_run_nonce ON run_hits(run_id, nonce)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// NewRunFromResult converts a finished scan into a run record. The server
// seed itself is never stored, only its hash.
func NewRunFromResult(res *scan.Result, engineVersion string) *Run {
	req := res.Echo
	risk := req.Risk
	if risk == "" {
		risk = "classic"
	}
	return &Run{
		ServerSeedHash: engine.HashServerSeed(req.ServerSeed),
		ClientSeed:     req.ClientSeed,
		NonceStart:     req.NonceStart,
		NonceEnd:       req.NonceEnd,
		Wager:          req.Wager,
		Risk:           risk,
		TargetOp:       string(req.TargetOp),
		TargetVal:      req.TargetVal,
		TargetVal2:     req.TargetVal2,
		HitCount:       res.Summary.HitsFound,
		TotalEvaluated: res.Summary.TotalEvaluated,
		TotalWagered:   res.Summary.TotalWagered,
		TotalReturned:  res.Summary.TotalReturned,
		RTP:            res.Summary.RTP,
		MeanTicks:      res.Summary.MeanTicks,
		MaxTicks:       res.Summary.MaxTicks,
		TimedOut:       res.Summary.TimedOut,
		EngineVersion:  engineVersion,
		LaneCounts:     append([]uint64(nil), res.Summary.LaneCounts...),
	}
}

// HitsFromResult converts scan hits for SaveHits.
func HitsFromResult(res *scan.Result) []Hit {
	hits := make([]Hit, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = Hit{Nonce: h.Nonce, Lane: h.Lane, Multiplier: h.Multiplier, Ticks: h.Ticks}
	}
	return hits
}

// SaveRun inserts a run and its lane histogram in one transaction. ID and
// CreatedAt are assigned when empty.
func (s *SQLiteDB) SaveRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	timedOutInt := 0
	if run.TimedOut {
		timedOutInt = 1
	}

	_, err = tx.Exec(`INSERT INTO runs (
		id, server_seed_hash, client_seed, nonce_start, nonce_end, wager, risk,
		target_op, target_val, target_val2, hit_count, total_evaluated,
		total_wagered, total_returned, rtp, mean_ticks, max_ticks, timed_out,
		engine_version, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ServerSeedHash, run.ClientSeed, run.NonceStart, run.NonceEnd, run.Wager, run.Risk,
		run.TargetOp, run.TargetVal, run.TargetVal2, run.HitCount, run.TotalEvaluated,
		run.TotalWagered.String(), run.TotalReturned.String(), run.RTP, run.MeanTicks, run.MaxTicks, timedOutInt,
		run.EngineVersion, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO run_lanes (run_id, lane, count) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for lane, count := range run.LaneCounts {
		if _, err := stmt.Exec(run.ID, lane, count); err != nil {
			return fmt.Errorf("insert lane %d: %w", lane, err)
		}
	}

	return tx.Commit()
}

// SaveHits saves multiple hits to the database
func (s *SQLiteDB) SaveHits(runID string, hits []Hit) error {
	if len(hits) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO run_hits (run_id, nonce, lane, multiplier, ticks) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, hit := range hits {
		if _, err := stmt.Exec(runID, hit.Nonce, hit.Lane, hit.Multiplier, hit.Ticks); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const runColumns = `id, server_seed_hash, client_seed, nonce_start, nonce_end, wager, risk,
		target_op, target_val, target_val2, hit_count, total_evaluated,
		total_wagered, total_returned, rtp, mean_ticks, max_ticks, timed_out,
		engine_version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var timedOutInt int
	var wagered, returned string

	err := row.Scan(
		&run.ID, &run.ServerSeedHash, &run.ClientSeed, &run.NonceStart, &run.NonceEnd, &run.Wager, &run.Risk,
		&run.TargetOp, &run.TargetVal, &run.TargetVal2, &run.HitCount, &run.TotalEvaluated,
		&wagered, &returned, &run.RTP, &run.MeanTicks, &run.MaxTicks, &timedOutInt,
		&run.EngineVersion, &run.CreatedAt,
	)
	if err != nil {
		return Run{}, err
	}

	if run.TotalWagered, err = decimal.NewFromString(wagered); err != nil {
		return Run{}, fmt.Errorf("parse total_wagered: %w", err)
	}
	if run.TotalReturned, err = decimal.NewFromString(returned); err != nil {
		return Run{}, fmt.Errorf("parse total_returned: %w", err)
	}
	run.TimedOut = timedOutInt == 1
	return run, nil
}

// GetRun retrieves a run and its lane histogram by ID
func (s *SQLiteDB) GetRun(id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	lanes, err := s.laneCounts(id)
	if err != nil {
		return nil, err
	}
	run.LaneCounts = lanes
	return &run, nil
}

func (s *SQLiteDB) laneCounts(runID string) ([]uint64, error) {
	rows, err := s.db.Query("SELECT lane, count FROM run_lanes WHERE run_id = ? ORDER BY lane", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lanes: %w", err)
	}
	defer rows.Close()

	var counts []uint64
	for rows.Next() {
		var lane int
		var count uint64
		if err := rows.Scan(&lane, &count); err != nil {
			return nil, err
		}
		for len(counts) < lane {
			counts = append(counts, 0)
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

// GetHits retrieves hits for a run with pagination
func (s *SQLiteDB) GetHits(runID string, limit, offset int) ([]Hit, error) {
	rows, err := s.db.Query(`SELECT id, run_id, nonce, lane, multiplier, ticks
		FROM run_hits WHERE run_id = ?
		ORDER BY nonce LIMIT ? OFFSET ?`, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.ID, &hit.RunID, &hit.Nonce, &hit.Lane, &hit.Multiplier, &hit.Ticks); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ListRuns retrieves runs newest first with pagination and filtering. Lane
// histograms are not loaded; use GetRun for a single run's detail.
func (s *SQLiteDB) ListRuns(query RunsQuery) (*RunsList, error) {
	whereClause := ""
	args := []any{}

	if query.Risk != "" {
		whereClause = "WHERE risk = ?"
		args = append(args, query.Risk)
	}

	var totalCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = 50
	}
	if query.PerPage > 500 {
		query.PerPage = 500
	}
	if query.Page <= 0 {
		query.Page = 1
	}

	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	args = append(args, query.PerPage, offset)
	rows, err := s.db.Query("SELECT "+runColumns+" FROM runs "+whereClause+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return &RunsList{
		Runs:       runs,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}

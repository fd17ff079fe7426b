package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemoryTotal   uint64 `json:"memory_total_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// MetricsResponse represents basic performance metrics
type MetricsResponse struct {
	Timestamp     string               `json:"timestamp"`
	EngineVersion string               `json:"engine_version"`
	Uptime        string               `json:"uptime"`
	System        SystemInfo           `json:"system"`
	Sessions      int                  `json:"sessions"`
	Operations    map[string]OpMetrics `json:"operations"`
	RequestID     string               `json:"request_id,omitempty"`
}

// OpMetrics represents per-route request metrics
type OpMetrics struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	ErrorRequests   uint64  `json:"error_requests"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	LastRequest     string  `json:"last_request,omitempty"`
}

type opMetricsSet struct {
	mu    sync.Mutex
	ops   map[string]*OpMetrics
	total map[string]time.Duration
}

func newOpMetricsSet() *opMetricsSet {
	return &opMetricsSet{
		ops:   make(map[string]*OpMetrics),
		total: make(map[string]time.Duration),
	}
}

func (m *opMetricsSet) record(op string, d time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	om, exists := m.ops[op]
	if !exists {
		om = &OpMetrics{}
		m.ops[op] = om
	}
	om.TotalRequests++
	if ok {
		om.SuccessRequests++
	} else {
		om.ErrorRequests++
	}
	m.total[op] += d
	om.AvgDurationMs = float64(m.total[op].Microseconds()) / 1000 / float64(om.TotalRequests)
	om.LastRequest = time.Now().UTC().Format(time.RFC3339)
}

func (m *opMetricsSet) snapshot() map[string]OpMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]OpMetrics, len(m.ops))
	for k, v := range m.ops {
		out[k] = *v
	}
	return out
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	start := time.Now()

	checks := map[string]HealthCheck{
		"board":    s.checkBoardHealth(),
		"database": s.checkDatabaseHealth(),
		"assets":   s.checkAssetsHealth(),
	}

	overallStatus := HealthStatusHealthy
	for _, c := range checks {
		if c.Status == HealthStatusUnhealthy {
			overallStatus = HealthStatusUnhealthy
			break
		}
		if c.Status == HealthStatusDegraded {
			overallStatus = HealthStatusDegraded
		}
	}

	response := HealthCheckResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System:        getSystemInfo(),
		RequestID:     requestID,
	}

	statusCode := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.audit.LogAuditEvent(
		requestID,
		"health_check",
		"system",
		string(overallStatus),
		map[string]interface{}{
			"duration":    time.Since(start),
			"checks":      len(checks),
			"status_code": statusCode,
		},
	)

	s.writeJSON(w, statusCode, response)
}

// handleMetrics reports per-route request counters
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	response := MetricsResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		Uptime:        time.Since(s.startTime).String(),
		System:        getSystemInfo(),
		Sessions:      s.sessions.Len(),
		Operations:    s.metrics.snapshot(),
		RequestID:     middleware.GetReqID(r.Context()),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleReadiness provides readiness probe endpoint
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	ready := true
	message := "Ready"
	if c := s.checkBoardHealth(); c.Status != HealthStatusHealthy {
		ready = false
		message = c.Message
	} else if s.scanner == nil {
		ready = false
		message = "Scanner not initialized"
	}

	response := map[string]interface{}{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     requestID,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, response)
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// checkBoardHealth verifies the lattice and every payout table fit the board
func (s *Server) checkBoardHealth() HealthCheck {
	start := time.Now()

	status := HealthStatusHealthy
	board := plinko.DefaultBoard()
	lattice := plinko.NewLattice(board)
	message := fmt.Sprintf("%d pegs, %d risk tables", lattice.Len(), len(plinko.Risks()))

	if lattice.Len() != board.Rows*(board.Rows+1)/2 {
		status = HealthStatusUnhealthy
		message = fmt.Sprintf("lattice has %d pegs", lattice.Len())
	}
	for _, risk := range plinko.Risks() {
		if _, err := plinko.PayoutTable(risk, board.Rows); err != nil {
			status = HealthStatusDegraded
			message = err.Error()
		}
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkDatabaseHealth pings the run store. A server without one still plays
// rounds, so a missing store only degrades.
func (s *Server) checkDatabaseHealth() HealthCheck {
	start := time.Now()

	status := HealthStatusHealthy
	message := "Database connection healthy"
	if s.db == nil {
		status = HealthStatusDegraded
		message = "Run history disabled"
	} else if err := s.db.Ping(); err != nil {
		status = HealthStatusUnhealthy
		message = fmt.Sprintf("Database ping failed: %v", err)
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkAssetsHealth looks for the page the asset server answers "/" with
func (s *Server) checkAssetsHealth() HealthCheck {
	start := time.Now()

	status := HealthStatusHealthy
	message := "index.html present"
	if _, err := os.Stat(filepath.Join(s.webRoot, indexFile)); err != nil {
		status = HealthStatusDegraded
		message = fmt.Sprintf("web root %s has no %s", s.webRoot, indexFile)
	} else {
		var missing []string
		for _, f := range s.soundFiles {
			if _, err := os.Stat(filepath.Join(s.webRoot, f)); err != nil {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			status = HealthStatusDegraded
			message = fmt.Sprintf("missing sound assets: %v", missing)
		}
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// getSystemInfo collects system information
func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemoryTotal:   m.TotalAlloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}

package api

import (
	"io"
	"log"
	"time"

	"github.com/MJE43/plinko-drop/internal/engine"
)

// AuditLogger records rounds, replays and runs without ever writing a raw
// server seed.
type AuditLogger struct {
	logger *log.Logger
}

// NewAuditLogger creates an audit logger writing to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: log.New(w, "[AUDIT] ", log.LstdFlags|log.LUTC),
	}
}

// LogSystemStartup records the components the server came up with
func (al *AuditLogger) LogSystemStartup(details map[string]interface{}) {
	al.logger.Printf(
		"system_startup details=%+v engine_version=%s git_commit=%s build_time=%s",
		details, EngineVersion, GitCommit, BuildTime,
	)
}

// LogReplay records a replayed round
func (al *AuditLogger) LogReplay(requestID, serverSeed, clientSeed string, nonce uint64, risk string, lane int, multiplier float64) {
	al.logger.Printf(
		"replay_operation request_id=%s server_hash=%s client_hash=%s nonce=%d risk=%s lane=%d multiplier=%g engine_version=%s timestamp=%s",
		requestID,
		hashSeed(serverSeed),
		hashSeed(clientSeed),
		nonce,
		risk,
		lane,
		multiplier,
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogScanOperation records a batch simulation
func (al *AuditLogger) LogScanOperation(requestID, serverSeed, clientSeed string, nonceStart, nonceEnd uint64, risk, targetOp string, evaluated uint64, hits int, duration time.Duration, timedOut bool) {
	al.logger.Printf(
		"scan_operation request_id=%s server_hash=%s client_hash=%s nonce_range=%d-%d risk=%s target_op=%s evaluated=%d hits=%d duration=%v timed_out=%t engine_version=%s",
		requestID,
		hashSeed(serverSeed),
		hashSeed(clientSeed),
		nonceStart,
		nonceEnd,
		risk,
		targetOp,
		evaluated,
		hits,
		duration,
		timedOut,
		EngineVersion,
	)
}

// LogRound records a settled session round
func (al *AuditLogger) LogRound(requestID, sessionID string, wager, payout, balance string, lane int, ticks int) {
	al.logger.Printf(
		"round_settled request_id=%s session=%s wager=%s payout=%s balance=%s lane=%d ticks=%d",
		requestID, sessionID, wager, payout, balance, lane, ticks,
	)
}

// LogSecurityEvent logs failed validations and other suspicious input
func (al *AuditLogger) LogSecurityEvent(requestID, eventType, description string, context map[string]interface{}, remoteAddr string) {
	al.logger.Printf(
		"security_event request_id=%s type=%s description=%q context=%+v remote_addr=%s engine_version=%s timestamp=%s",
		requestID,
		eventType,
		description,
		sanitize(context),
		remoteAddr,
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogAuditEvent logs audit events for compliance and debugging
func (al *AuditLogger) LogAuditEvent(requestID, action, resource, outcome string, details map[string]interface{}) {
	al.logger.Printf(
		"audit_event request_id=%s action=%s resource=%s outcome=%s details=%+v engine_version=%s timestamp=%s",
		requestID,
		action,
		resource,
		outcome,
		sanitize(details),
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// hashSeed shortens the published seed hash for log lines
func hashSeed(seed string) string {
	if seed == "" {
		return "empty"
	}
	return engine.HashServerSeed(seed)[:16]
}

func sanitize(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		switch key {
		case "server_seed", "client_seed":
			if s, ok := value.(string); ok {
				out[key+"_hash"] = hashSeed(s)
			}
		default:
			out[key] = value
		}
	}
	return out
}

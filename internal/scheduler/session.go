package scheduler

import (
	"sync"
	"time"

	"futures-llm-agent/internal/model"
)

// Session holds the running counters and the last cycle's working set,
// guarded by a single RWMutex. The dashboard reads it on every poll and
// on every websocket tick while the scheduler writes it once per cycle,
// so reads and writes never touch overlapping fields at the same time.
type Session struct {
	mu sync.RWMutex

	stats      model.SessionStats
	overview   string
	snapshots  []model.MarketSnapshot
	decisions  []model.Decision
	executions []model.ExecutionRecord
}

// NewSession returns a Session with StartedAt set to now.
func NewSession(startedAt time.Time) *Session {
	return &Session{stats: model.SessionStats{StartedAt: startedAt}}
}

// Stats returns a copy of the current running counters.
func (s *Session) Stats() model.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Overview returns the last cycle's market overview text from the LLM.
func (s *Session) Overview() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overview
}

// Snapshots returns the last cycle's assembled market snapshots.
func (s *Session) Snapshots() []model.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MarketSnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Decisions returns the last cycle's normalized decisions.
func (s *Session) Decisions() []model.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Decision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// Executions returns the last cycle's order execution records.
func (s *Session) Executions() []model.ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ExecutionRecord, len(s.executions))
	copy(out, s.executions)
	return out
}

// recordCycleEnd commits a completed cycle's working set and adds its
// counts to the running stats, all under one write lock, so a reader
// never sees a half-updated cycle.
func (s *Session) recordCycleEnd(snapshots []model.MarketSnapshot, decisions []model.Decision, executions []model.ExecutionRecord, overview string, cycleDuration time.Duration, executed, held, rejected, filled, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = snapshots
	s.decisions = decisions
	s.executions = executions
	s.overview = overview

	s.stats.CyclesCompleted++
	s.stats.DecisionsExecuted += executed
	s.stats.DecisionsHeld += held
	s.stats.DecisionsRejected += rejected
	s.stats.OrdersFilled += filled
	s.stats.OrdersFailed += failed
	s.stats.LastCycleAt = time.Now()
	s.stats.LastCycleDuration = cycleDuration
}

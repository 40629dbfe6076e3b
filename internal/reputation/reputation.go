// Package reputation implements the Chorus trust scoring engine.
//
// Agents earn reputation through successful work. The boost is weighted by
// the reputation of the contracting agent — being hired by a high-trust
// requester counts for more. Failures are penalized more heavily than
// successes are rewarded: with the constants below the flat penalty (4.5)
// always outweighs the maximum possible reward (2.0), so no sequence of
// outcomes lets an unreliable agent break even.
//
// All operations are total functions over the score domain; nothing here
// returns an error.
package reputation

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/chorusnet/chorus/pkg/models"
	"github.com/rs/zerolog/log"
)

// Tuning constants for the score formula.
const (
	BaseReward        = 2.0 // points gained on success, before contractor weighting
	BasePenalty       = 3.0 // points lost on failure, before multiplier
	FailureMultiplier = 1.5
	InitialScore      = 50.0
	MinScore          = 0.0
	MaxScore          = 100.0
)

// AgentStats are cumulative job outcome counters per agent.
type AgentStats struct {
	Total     int `json:"total"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Engine maintains a bounded [0,100] trust score per agent plus an immutable
// history of every score change. Safe for concurrent use; score updates are
// read-modify-write and serialized behind the engine mutex.
type Engine struct {
	mu      sync.RWMutex
	scores  map[string]float64
	stats   map[string]AgentStats
	order   []string // agent ids in first-seen order, for stable leaderboards
	history []models.ReputationUpdate
}

// NewEngine creates an empty reputation engine.
func NewEngine() *Engine {
	return &Engine{
		scores: make(map[string]float64),
		stats:  make(map[string]AgentStats),
	}
}

// Initialize registers an agent with an initial score. Idempotent: if the
// agent already has a score it is left untouched. Returns the current score.
func (e *Engine) Initialize(agentID string, initial float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if score, ok := e.scores[agentID]; ok {
		return score
	}
	e.scores[agentID] = initial
	e.stats[agentID] = AgentStats{}
	e.order = append(e.order, agentID)
	return initial
}

// Score returns the current score for an agent, defaulting to InitialScore
// for ids the engine has never seen.
func (e *Engine) Score(agentID string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if score, ok := e.scores[agentID]; ok {
		return score
	}
	return InitialScore
}

// Known reports whether the engine has ever assigned this id a score.
func (e *Engine) Known(agentID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.scores[agentID]
	return ok
}

// Stats returns the cumulative outcome counters for an agent. Unknown ids
// yield zeroed counters.
func (e *Engine) Stats(agentID string) AgentStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats[agentID]
}

// RecordSuccess applies the success reward and appends an update to the
// history. The reward scales with the contractor's own reputation:
//
//	new = min(old + BaseReward × contractorRep/100, MaxScore)
func (e *Engine) RecordSuccess(agentID, jobID string, contractorRep float64) models.ReputationUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.scoreLocked(agentID)
	reward := BaseReward * (contractorRep / 100.0)
	return e.applyLocked(agentID, jobID, old, math.Min(old+reward, MaxScore), true, contractorRep)
}

// RecordFailure applies the flat failure penalty and appends an update to
// the history. The penalty does not depend on the contractor:
//
//	new = max(old - BasePenalty × FailureMultiplier, MinScore)
func (e *Engine) RecordFailure(agentID, jobID string, contractorRep float64) models.ReputationUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.scoreLocked(agentID)
	penalty := BasePenalty * FailureMultiplier
	return e.applyLocked(agentID, jobID, old, math.Max(old-penalty, MinScore), false, contractorRep)
}

// History returns reputation updates, newest last. An empty agentID returns
// the full history. The returned slice is a copy; the log itself is
// append-only.
func (e *Engine) History(agentID string) []models.ReputationUpdate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if agentID == "" {
		return append([]models.ReputationUpdate(nil), e.history...)
	}
	var out []models.ReputationUpdate
	for _, u := range e.history {
		if u.AgentID == agentID {
			out = append(out, u)
		}
	}
	return out
}

// Leaderboard returns the top N agents by score, descending. Ties keep
// first-seen order.
func (e *Engine) Leaderboard(topN int) []models.LeaderboardEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries := make([]models.LeaderboardEntry, 0, len(e.order))
	for _, id := range e.order {
		entries = append(entries, models.LeaderboardEntry{AgentID: id, Score: e.scores[id]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if topN > 0 && topN < len(entries) {
		entries = entries[:topN]
	}
	return entries
}

// scoreLocked reads the score without taking the lock; callers hold e.mu.
func (e *Engine) scoreLocked(agentID string) float64 {
	if score, ok := e.scores[agentID]; ok {
		return score
	}
	return InitialScore
}

// applyLocked commits a score change, updates counters, and appends the
// history record. Callers hold e.mu.
func (e *Engine) applyLocked(agentID, jobID string, old, next float64, success bool, contractorRep float64) models.ReputationUpdate {
	if _, ok := e.scores[agentID]; !ok {
		e.order = append(e.order, agentID)
	}
	e.scores[agentID] = next

	stats := e.stats[agentID]
	stats.Total++
	if success {
		stats.Successes++
	} else {
		stats.Failures++
	}
	e.stats[agentID] = stats

	update := models.ReputationUpdate{
		AgentID:              agentID,
		OldScore:             round2(old),
		NewScore:             round2(next),
		JobID:                jobID,
		Success:              success,
		ContractorReputation: contractorRep,
		Timestamp:            time.Now().UTC(),
	}
	e.history = append(e.history, update)

	log.Debug().
		Str("agent_id", agentID).
		Str("job_id", jobID).
		Bool("success", success).
		Float64("old_score", update.OldScore).
		Float64("new_score", update.NewScore).
		Msg("reputation updated")

	return update
}

// round2 rounds to two decimals for history records; live scores stay exact.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

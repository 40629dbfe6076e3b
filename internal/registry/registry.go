// Package registry implements Chorus agent registration and skill-based
// discovery. Agents announce their skills and cost; orchestrators query for
// the best specialist, ranked by live reputation.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/chorusnet/chorus/internal/reputation"
	"github.com/chorusnet/chorus/pkg/models"
	"github.com/rs/zerolog/log"
)

// Registry is a thread-safe in-memory agent index. It exclusively owns the
// agent records and the skill→agents index; reputation scores live in the
// reputation engine and are refreshed on every read, never cached stale.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string]*models.AgentInfo
	skillIndex map[string][]string // skill name → agent ids, in registration order

	reputation *reputation.Engine
}

// New creates a registry backed by the given reputation engine.
func New(rep *reputation.Engine) *Registry {
	if rep == nil {
		rep = reputation.NewEngine()
	}
	return &Registry{
		agents:     make(map[string]*models.AgentInfo),
		skillIndex: make(map[string][]string),
		reputation: rep,
	}
}

// Reputation exposes the backing reputation engine.
func (r *Registry) Reputation() *reputation.Engine {
	return r.reputation
}

// Register stores an agent record and indexes every declared skill.
// A missing agent id is assigned. Re-registering an existing id overwrites
// the record; the skill index only grows, and duplicate index entries for
// the same skill are skipped.
func (r *Registry) Register(reg models.AgentRegistration) models.AgentInfo {
	if reg.AgentID == "" {
		reg.AgentID = models.NewID()
	}
	initialRep := r.reputation.Initialize(reg.AgentID, reputation.InitialScore)

	now := time.Now().UTC()
	info := models.AgentInfo{
		AgentID:         reg.AgentID,
		AgentName:       reg.AgentName,
		OwnerID:         reg.OwnerID,
		APIEndpoint:     reg.APIEndpoint,
		Skills:          reg.Skills,
		ReputationScore: initialRep,
		Status:          models.AgentOnline,
		RegisteredAt:    now,
		LastHeartbeat:   now,
	}

	r.mu.Lock()
	r.agents[reg.AgentID] = &info
	for _, skill := range reg.Skills {
		ids := r.skillIndex[skill.SkillName]
		if !contains(ids, reg.AgentID) {
			r.skillIndex[skill.SkillName] = append(ids, reg.AgentID)
		}
	}
	r.mu.Unlock()

	log.Info().
		Str("agent_id", info.AgentID).
		Str("agent", info.AgentName).
		Int("skills", len(info.Skills)).
		Msg("agent registered")

	return info
}

// Discover finds online agents offering a skill, filtered by reputation and
// cost, sorted by reputation descending. Ties keep registration order.
//
// maxCost < 0 means no cost ceiling. With a ceiling set, an agent that does
// not declare a cost for the skill is treated as infinitely expensive and
// dropped. An unknown skill yields an empty result, not an error.
func (r *Registry) Discover(skillName string, minReputation, maxCost float64) []models.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.skillIndex[skillName]
	results := make([]models.AgentInfo, 0, len(ids))

	for _, id := range ids {
		agent, ok := r.agents[id]
		if !ok || agent.Status != models.AgentOnline {
			continue
		}

		// Refresh from the engine so rankings reflect the latest outcomes.
		// The score lands on the returned copy; the stored record is only
		// written under the write lock.
		info := *agent
		info.ReputationScore = r.reputation.Score(id)
		if info.ReputationScore < minReputation {
			continue
		}

		if maxCost >= 0 {
			cost, declared := info.SkillCost(skillName)
			if !declared || cost > maxCost {
				continue
			}
		}

		results = append(results, info)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ReputationScore > results[j].ReputationScore
	})
	return results
}

// GetAgent returns an agent by id with its reputation refreshed, or false
// if the id is unknown.
func (r *Registry) GetAgent(agentID string) (models.AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return models.AgentInfo{}, false
	}
	info := *agent
	info.ReputationScore = r.reputation.Score(agentID)
	return info, true
}

// Heartbeat refreshes an agent's last-seen time and forces it online.
// Returns false if the id is unknown.
func (r *Registry) Heartbeat(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return false
	}
	agent.LastHeartbeat = time.Now().UTC()
	agent.Status = models.AgentOnline
	return true
}

// Unregister removes an agent and scrubs it from every skill index bucket.
// Returns false if the id is unknown.
func (r *Registry) Unregister(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return false
	}
	delete(r.agents, agentID)
	for _, skill := range agent.Skills {
		r.skillIndex[skill.SkillName] = remove(r.skillIndex[skill.SkillName], agentID)
	}

	log.Info().Str("agent_id", agentID).Str("agent", agent.AgentName).Msg("agent unregistered")
	return true
}

// ListSkills returns every skill name in the index, sorted.
func (r *Registry) ListSkills() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	skills := make([]string, 0, len(r.skillIndex))
	for name := range r.skillIndex {
		skills = append(skills, name)
	}
	sort.Strings(skills)
	return skills
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

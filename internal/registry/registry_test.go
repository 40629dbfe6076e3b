package registry_test

import (
	"testing"

	"github.com/chorusnet/chorus/internal/registry"
	"github.com/chorusnet/chorus/internal/reputation"
	"github.com/chorusnet/chorus/pkg/models"
)

func newTestRegistry(t *testing.T) (*registry.Registry, *reputation.Engine) {
	t.Helper()
	rep := reputation.NewEngine()
	return registry.New(rep), rep
}

func registration(id, name, owner string, skills ...models.SkillDefinition) models.AgentRegistration {
	return models.AgentRegistration{
		AgentID:     id,
		AgentName:   name,
		OwnerID:     owner,
		APIEndpoint: models.LocalEndpoint,
		Skills:      skills,
	}
}

func skill(name string, cost float64) models.SkillDefinition {
	return models.SkillDefinition{SkillName: name, CostPerCall: cost}
}

func TestRegisterAssignsIDAndInitializesReputation(t *testing.T) {
	r, rep := newTestRegistry(t)

	info := r.Register(registration("", "Bot", "owner1", skill("translate", 0.2)))
	if info.AgentID == "" {
		t.Fatal("Register() did not assign an agent id")
	}
	if info.ReputationScore != reputation.InitialScore {
		t.Errorf("ReputationScore = %v, want %v", info.ReputationScore, reputation.InitialScore)
	}
	if info.Status != models.AgentOnline {
		t.Errorf("Status = %q, want %q", info.Status, models.AgentOnline)
	}
	if !rep.Known(info.AgentID) {
		t.Error("reputation engine does not know the registered agent")
	}
	if got := r.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestReRegisterOverwritesWithoutDuplicateIndexEntries(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(registration("a1", "Bot", "owner1", skill("translate", 0.2)))
	r.Register(registration("a1", "Bot-v2", "owner1", skill("translate", 0.1)))

	if got := r.Count(); got != 1 {
		t.Fatalf("Count() after re-register = %d, want 1", got)
	}
	agents := r.Discover("translate", 0, -1)
	if len(agents) != 1 {
		t.Fatalf("Discover() returned %d agents, want 1", len(agents))
	}
	if agents[0].AgentName != "Bot-v2" {
		t.Errorf("AgentName = %q, want %q", agents[0].AgentName, "Bot-v2")
	}
}

func TestDiscoverUnknownSkillIsEmpty(t *testing.T) {
	r, _ := newTestRegistry(t)
	if got := r.Discover("nope", 0, -1); len(got) != 0 {
		t.Errorf("Discover(unknown skill) returned %d agents, want 0", len(got))
	}
}

func TestDiscoverSortsByLiveReputation(t *testing.T) {
	r, rep := newTestRegistry(t)

	r.Register(registration("a1", "First", "o1", skill("translate", 0.2)))
	r.Register(registration("a2", "Second", "o2", skill("translate", 0.2)))

	// Tied scores keep registration order.
	agents := r.Discover("translate", 0, -1)
	if agents[0].AgentID != "a1" || agents[1].AgentID != "a2" {
		t.Fatalf("tie order = [%s %s], want [a1 a2]", agents[0].AgentID, agents[1].AgentID)
	}

	// Scores are refreshed from the engine, not served stale.
	rep.RecordSuccess("a2", "j1", 100.0)
	agents = r.Discover("translate", 0, -1)
	if agents[0].AgentID != "a2" {
		t.Errorf("after reputation boost, Discover()[0] = %s, want a2", agents[0].AgentID)
	}
	if agents[0].ReputationScore != 52.0 {
		t.Errorf("refreshed score = %v, want 52.0", agents[0].ReputationScore)
	}
}

func TestDiscoverFiltersByMinReputation(t *testing.T) {
	r, rep := newTestRegistry(t)

	r.Register(registration("a1", "Good", "o1", skill("translate", 0.2)))
	r.Register(registration("a2", "Bad", "o2", skill("translate", 0.2)))
	rep.RecordFailure("a2", "j1", 50.0) // 45.5

	agents := r.Discover("translate", 50.0, -1)
	if len(agents) != 1 || agents[0].AgentID != "a1" {
		t.Errorf("Discover(minRep=50) = %v, want only a1", ids(agents))
	}
}

func TestDiscoverFiltersByCost(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(registration("cheap", "Cheap", "o1", skill("translate", 0.05)))
	r.Register(registration("pricey", "Pricey", "o2", skill("translate", 0.50)))
	// Declares another skill but no cost entry for translate: with a cost
	// ceiling it counts as infinitely expensive.
	r.Register(registration("other", "Other", "o3", skill("summarize", 0.01)))

	agents := r.Discover("translate", 0, 0.10)
	if len(agents) != 1 || agents[0].AgentID != "cheap" {
		t.Errorf("Discover(maxCost=0.10) = %v, want only cheap", ids(agents))
	}

	// No ceiling: both translate agents come back.
	if got := r.Discover("translate", 0, -1); len(got) != 2 {
		t.Errorf("Discover(no ceiling) returned %d agents, want 2", len(got))
	}
}

func TestDiscoverSkipsOfflineAgents(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(registration("a1", "Bot", "o1", skill("translate", 0.2)))
	if !r.Unregister("a1") {
		t.Fatal("Unregister() = false, want true")
	}
	if got := r.Discover("translate", 0, -1); len(got) != 0 {
		t.Errorf("Discover() after unregister returned %d agents, want 0", len(got))
	}
	if _, ok := r.GetAgent("a1"); ok {
		t.Error("GetAgent() found an unregistered agent")
	}
}

func TestHeartbeat(t *testing.T) {
	r, _ := newTestRegistry(t)

	info := r.Register(registration("a1", "Bot", "o1", skill("translate", 0.2)))
	before := info.LastHeartbeat

	if !r.Heartbeat("a1") {
		t.Fatal("Heartbeat(known) = false, want true")
	}
	if r.Heartbeat("ghost") {
		t.Error("Heartbeat(unknown) = true, want false")
	}

	got, _ := r.GetAgent("a1")
	if got.LastHeartbeat.Before(before) {
		t.Error("LastHeartbeat went backwards")
	}
	if got.Status != models.AgentOnline {
		t.Errorf("Status = %q, want %q", got.Status, models.AgentOnline)
	}
}

func TestListSkills(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Register(registration("a1", "Bot", "o1", skill("translate", 0.2), skill("summarize", 0.1)))

	skills := r.ListSkills()
	if len(skills) != 2 {
		t.Fatalf("ListSkills() returned %d skills, want 2", len(skills))
	}
	// Sorted output.
	if skills[0] != "summarize" || skills[1] != "translate" {
		t.Errorf("ListSkills() = %v, want [summarize translate]", skills)
	}
}

func ids(agents []models.AgentInfo) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.AgentID
	}
	return out
}

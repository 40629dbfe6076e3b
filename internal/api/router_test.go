package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chorusnet/chorus/internal/api"
	"github.com/chorusnet/chorus/internal/api/handlers"
	"github.com/chorusnet/chorus/internal/config"
	"github.com/chorusnet/chorus/internal/ledger"
	"github.com/chorusnet/chorus/internal/registry"
	"github.com/chorusnet/chorus/pkg/models"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{Version: "test", Ledger: config.LedgerConfig{InitialBalance: 100.0}}
	h := handlers.New(registry.New(nil), ledger.New(), cfg.Ledger.InitialBalance)
	srv := httptest.NewServer(api.NewRouter(cfg, h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func registerTestAgent(t *testing.T, srv *httptest.Server, name, owner, skill string, cost float64) models.AgentInfo {
	t.Helper()
	reg := models.AgentRegistration{
		AgentName:   name,
		OwnerID:     owner,
		APIEndpoint: models.LocalEndpoint,
		Skills:      []models.SkillDefinition{{SkillName: skill, CostPerCall: cost}},
	}
	var info models.AgentInfo
	if status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents", reg, &info); status != http.StatusCreated {
		t.Fatalf("register returned status %d", status)
	}
	return info
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t)

	var health struct {
		Status string `json:"status"`
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/health", nil, &health); status != http.StatusOK {
		t.Fatalf("GET /health status = %d", status)
	}
	if health.Status != "ok" {
		t.Errorf("health status = %q, want ok", health.Status)
	}

	var version struct {
		Version string `json:"version"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/version", nil, &version)
	if version.Version != "test" {
		t.Errorf("version = %q, want test", version.Version)
	}
}

func TestAgentLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	info := registerTestAgent(t, srv, "Translator", "owner1", "translate", 0.25)
	if info.AgentID == "" {
		t.Fatal("register did not assign an agent id")
	}

	// Registration funds the owner's account.
	var acct struct {
		Balance float64 `json:"balance"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/v1/accounts/owner1", nil, &acct)
	if acct.Balance != 100.0 {
		t.Errorf("owner balance after register = %v, want 100.0", acct.Balance)
	}

	// Discovery finds it.
	var disco struct {
		Agents []models.AgentInfo `json:"agents"`
		Total  int                `json:"total"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/discover?skill=translate", nil, &disco)
	if disco.Total != 1 || disco.Agents[0].AgentID != info.AgentID {
		t.Errorf("discover = %+v, want the registered agent", disco)
	}

	// Missing skill parameter is a client error.
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/discover", nil, nil); status != http.StatusBadRequest {
		t.Errorf("discover without skill status = %d, want 400", status)
	}

	// Heartbeat, lookup, unregister.
	if status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents/"+info.AgentID+"/heartbeat", nil, nil); status != http.StatusOK {
		t.Errorf("heartbeat status = %d, want 200", status)
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/"+info.AgentID, nil, nil); status != http.StatusOK {
		t.Errorf("get agent status = %d, want 200", status)
	}
	if status := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/agents/"+info.AgentID, nil, nil); status != http.StatusOK {
		t.Errorf("unregister status = %d, want 200", status)
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/"+info.AgentID, nil, nil); status != http.StatusNotFound {
		t.Errorf("get after unregister status = %d, want 404", status)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body models.AgentRegistration
	}{
		{"missing name", models.AgentRegistration{OwnerID: "o1"}},
		{"missing owner", models.AgentRegistration{AgentName: "Bot"}},
		{"negative cost", models.AgentRegistration{
			AgentName: "Bot", OwnerID: "o1",
			Skills: []models.SkillDefinition{{SkillName: "translate", CostPerCall: -1}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents", tt.body, nil); status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
		})
	}
}

func TestTransferOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/accounts", map[string]any{"owner_id": "alice"}, nil)

	transfer := func(from, to string, amount float64) int {
		body := map[string]any{"from_owner": from, "to_owner": to, "amount": amount, "job_id": "j1"}
		return doJSON(t, http.MethodPost, srv.URL+"/api/v1/transfers", body, nil)
	}

	if status := transfer("alice", "bob", 30.0); status != http.StatusCreated {
		t.Errorf("valid transfer status = %d, want 201", status)
	}
	if status := transfer("alice", "bob", -5.0); status != http.StatusBadRequest {
		t.Errorf("negative amount status = %d, want 400", status)
	}
	if status := transfer("ghost", "bob", 5.0); status != http.StatusNotFound {
		t.Errorf("unknown payer status = %d, want 404", status)
	}
	if status := transfer("alice", "bob", 999.0); status != http.StatusPaymentRequired {
		t.Errorf("overdraw status = %d, want 402", status)
	}

	var audit struct {
		Total int `json:"total"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/v1/transfers?job_id=j1", nil, &audit)
	if audit.Total != 1 {
		t.Errorf("audit total = %d, want 1 (failed transfers must not be logged)", audit.Total)
	}

	var economy struct {
		TotalVolume      float64 `json:"total_volume"`
		TransactionCount int     `json:"transaction_count"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/v1/economy", nil, &economy)
	if economy.TotalVolume != 30.0 || economy.TransactionCount != 1 {
		t.Errorf("economy = %+v, want volume 30.0 and count 1", economy)
	}
}

func TestCustomInitialBalance(t *testing.T) {
	srv := newTestServer(t)

	var out struct {
		Balance float64 `json:"balance"`
	}
	body := map[string]any{"owner_id": "rich", "initial_balance": 500.0}
	if status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/accounts", body, &out); status != http.StatusCreated {
		t.Fatalf("create account status = %d", status)
	}
	if out.Balance != 500.0 {
		t.Errorf("balance = %v, want 500.0", out.Balance)
	}
}

func TestReputationEndpoints(t *testing.T) {
	srv := newTestServer(t)

	info := registerTestAgent(t, srv, "Bot", "owner1", "translate", 0.1)

	var rep struct {
		Score float64 `json:"score"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/v1/reputation/"+info.AgentID, nil, &rep)
	if rep.Score != 50.0 {
		t.Errorf("initial score = %v, want 50.0", rep.Score)
	}

	var board struct {
		Leaderboard []struct {
			AgentID string `json:"agent_id"`
		} `json:"leaderboard"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/v1/leaderboard?top=5", nil, &board)
	if len(board.Leaderboard) != 1 || board.Leaderboard[0].AgentID != info.AgentID {
		t.Errorf("leaderboard = %+v, want the registered agent", board.Leaderboard)
	}
}

func TestListSkills(t *testing.T) {
	srv := newTestServer(t)

	registerTestAgent(t, srv, "Bot", "owner1", "translate", 0.1)
	registerTestAgent(t, srv, "Bot2", "owner2", "summarize", 0.1)

	var out struct {
		Skills []string `json:"skills"`
		Agents int      `json:"agents"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/v1/skills", nil, &out)
	if out.Agents != 2 || len(out.Skills) != 2 {
		t.Errorf("skills = %+v, want 2 skills from 2 agents", out)
	}
}

// Package handlers implements the HTTP handlers for the chorusd
// coordinator: agent registration and discovery, the credit ledger, and
// reputation queries.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/chorusnet/chorus/internal/ledger"
	"github.com/chorusnet/chorus/internal/registry"
	"github.com/chorusnet/chorus/internal/reputation"
	"github.com/chorusnet/chorus/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Registry   *registry.Registry
	Ledger     *ledger.Ledger
	Reputation *reputation.Engine

	// InitialBalance granted to accounts created through the API.
	InitialBalance float64
}

// New creates a Handlers instance over the three core services.
func New(reg *registry.Registry, led *ledger.Ledger, initialBalance float64) *Handlers {
	return &Handlers{
		Registry:       reg,
		Ledger:         led,
		Reputation:     reg.Reputation(),
		InitialBalance: initialBalance,
	}
}

// ── Agent Handlers ───────────────────────────────────────────

func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var reg models.AgentRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if reg.AgentName == "" || reg.OwnerID == "" {
		respondError(w, http.StatusBadRequest, "agent_name and owner_id are required")
		return
	}
	for _, s := range reg.Skills {
		if s.CostPerCall < 0 {
			respondError(w, http.StatusBadRequest, "cost_per_call must be >= 0")
			return
		}
	}

	info := h.Registry.Register(reg)
	h.Ledger.CreateAccount(info.OwnerID, h.InitialBalance)
	respondJSON(w, http.StatusCreated, info)
}

func (h *Handlers) DiscoverAgents(w http.ResponseWriter, r *http.Request) {
	skill := r.URL.Query().Get("skill")
	if skill == "" {
		respondError(w, http.StatusBadRequest, "skill query parameter is required")
		return
	}
	minRep := queryFloat(r, "min_reputation", 0)
	maxCost := queryFloat(r, "max_cost", -1) // -1 = no ceiling

	agents := h.Registry.Discover(skill, minRep, maxCost)
	respondJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"total":  len(agents),
	})
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	info, ok := h.Registry.GetAgent(agentID)
	if !ok {
		respondError(w, http.StatusNotFound, "agent not found: "+agentID)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if !h.Registry.Heartbeat(agentID) {
		respondError(w, http.StatusNotFound, "agent not found: "+agentID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive", "agent_id": agentID})
}

func (h *Handlers) UnregisterAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if !h.Registry.Unregister(agentID) {
		respondError(w, http.StatusNotFound, "agent not found: "+agentID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "unregistered", "agent_id": agentID})
}

func (h *Handlers) ListSkills(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"skills": h.Registry.ListSkills(),
		"agents": h.Registry.Count(),
	})
}

// ── Ledger Handlers ──────────────────────────────────────────

type createAccountRequest struct {
	OwnerID        string   `json:"owner_id"`
	InitialBalance *float64 `json:"initial_balance,omitempty"`
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == "" {
		respondError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	initial := h.InitialBalance
	if req.InitialBalance != nil {
		if *req.InitialBalance < 0 {
			respondError(w, http.StatusBadRequest, "initial_balance must be >= 0")
			return
		}
		initial = *req.InitialBalance
	}

	balance := h.Ledger.CreateAccount(req.OwnerID, initial)
	respondJSON(w, http.StatusCreated, map[string]any{
		"owner_id": req.OwnerID,
		"balance":  balance,
	})
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	respondJSON(w, http.StatusOK, map[string]any{
		"owner_id": ownerID,
		"balance":  h.Ledger.Balance(ownerID),
	})
}

type transferRequest struct {
	FromOwner string  `json:"from_owner"`
	ToOwner   string  `json:"to_owner"`
	Amount    float64 `json:"amount"`
	JobID     string  `json:"job_id"`
}

func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.Ledger.Transfer(req.FromOwner, req.ToOwner, req.Amount, req.JobID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrNoSuchAccount):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			respondError(w, http.StatusPaymentRequired, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	log.Info().
		Str("transfer_id", record.TransferID).
		Str("from", record.FromOwner).
		Str("to", record.ToOwner).
		Float64("amount", record.Amount).
		Msg("transfer executed")

	respondJSON(w, http.StatusCreated, record)
}

func (h *Handlers) AuditLog(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	ownerID := r.URL.Query().Get("owner_id")
	records := h.Ledger.AuditLog(jobID, ownerID)
	respondJSON(w, http.StatusOK, map[string]any{
		"transfers": records,
		"total":     len(records),
	})
}

func (h *Handlers) EconomyStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"total_volume":      h.Ledger.TotalVolume(),
		"transaction_count": h.Ledger.TransactionCount(),
		"accounts":          len(h.Ledger.AllBalances()),
	})
}

// ── Reputation Handlers ──────────────────────────────────────

func (h *Handlers) GetReputation(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	respondJSON(w, http.StatusOK, map[string]any{
		"agent_id": agentID,
		"score":    h.Reputation.Score(agentID),
		"stats":    h.Reputation.Stats(agentID),
	})
}

func (h *Handlers) ReputationHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	history := h.Reputation.History(agentID)
	respondJSON(w, http.StatusOK, map[string]any{
		"agent_id": agentID,
		"history":  history,
		"total":    len(history),
	})
}

func (h *Handlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	topN := 10
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topN = n
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"leaderboard": h.Reputation.Leaderboard(topN),
	})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

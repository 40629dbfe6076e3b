// Package models defines the shared Chorus protocol messages: agent
// registration, job requests, job results, credit transfers, and reputation
// updates. Every component (registry, ledger, orchestrator, agent container)
// speaks these types; the wire encoding is plain JSON.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ── Enums ────────────────────────────────────────────────────

// JobStatus is the outcome of a job execution.
type JobStatus string

const (
	JobSuccess JobStatus = "SUCCESS"
	JobFailure JobStatus = "FAILURE"
	JobPending JobStatus = "PENDING"
)

// ErrorCode classifies a job or settlement failure.
type ErrorCode string

const (
	ErrSkillMismatch      ErrorCode = "SKILL_MISMATCH"
	ErrBudgetInsufficient ErrorCode = "BUDGET_INSUFFICIENT"
	ErrAgentOffline       ErrorCode = "AGENT_OFFLINE"
	ErrExecutionError     ErrorCode = "EXECUTION_ERROR"
	ErrTransferFailed     ErrorCode = "TRANSFER_FAILED"

	// Orchestrator-level failure kinds.
	ErrNoProviderFound    ErrorCode = "NO_PROVIDER_FOUND"
	ErrInputBuilderFailed ErrorCode = "INPUT_BUILDER_FAILED"
	ErrPaymentFailed      ErrorCode = "PAYMENT_FAILED"
)

// AgentStatus tracks whether an agent is reachable for work.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
)

// DefaultCurrency tags every job budget. There is no currency conversion;
// the tag exists so mixed-currency requests can be rejected at the boundary.
const DefaultCurrency = "chorus_credits_v1"

// LocalEndpoint marks an agent that is only reachable in-process.
const LocalEndpoint = "local://memory"

// Payload is the schemaless key→value map carried by job inputs and outputs.
// Pipeline logic never depends on specific keys beyond what a subtask
// declares it reads or writes.
type Payload map[string]any

// Clone returns a shallow copy of the payload. A nil payload clones to an
// empty, writable map.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// NewID returns a fresh UUID string. All protocol ids (agents, jobs,
// transfers) use this format.
func NewID() string {
	return uuid.New().String()
}

// ── Core Models ──────────────────────────────────────────────

// SkillDefinition is one capability an agent offers, priced per call.
// Definitions are immutable after registration.
type SkillDefinition struct {
	SkillName    string            `json:"skill_name"`
	Description  string            `json:"description,omitempty"`
	CostPerCall  float64           `json:"cost_per_call"`
	InputSchema  map[string]string `json:"input_schema,omitempty"`
	OutputSchema map[string]string `json:"output_schema,omitempty"`
}

// AgentRegistration is the message an agent sends to announce itself and its
// skills to the registry.
type AgentRegistration struct {
	AgentID     string            `json:"agent_id"`
	AgentName   string            `json:"agent_name"`
	OwnerID     string            `json:"owner_id"`
	APIEndpoint string            `json:"api_endpoint"`
	Skills      []SkillDefinition `json:"skills"`
	Version     string            `json:"version,omitempty"`
	Timestamp   time.Time         `json:"timestamp_utc"`
}

// AgentInfo is the agent record as stored in the registry. The reputation
// score is refreshed from the reputation engine on every discovery, never
// served stale.
type AgentInfo struct {
	AgentID         string            `json:"agent_id"`
	AgentName       string            `json:"agent_name"`
	OwnerID         string            `json:"owner_id"`
	APIEndpoint     string            `json:"api_endpoint"`
	Skills          []SkillDefinition `json:"skills"`
	ReputationScore float64           `json:"reputation_score"`
	Status          AgentStatus       `json:"status"`
	RegisteredAt    time.Time         `json:"registered_at"`
	LastHeartbeat   time.Time         `json:"last_heartbeat"`
}

// SkillCost returns the declared cost for a skill and whether the agent
// declares that skill at all.
func (a *AgentInfo) SkillCost(skillName string) (float64, bool) {
	for _, s := range a.Skills {
		if s.SkillName == skillName {
			return s.CostPerCall, true
		}
	}
	return 0, false
}

// JobRequest is a work offer sent from an orchestrator to a specialist
// agent. Budget is the maximum the requester is willing to pay.
type JobRequest struct {
	JobID          string    `json:"job_id"`
	OrchestratorID string    `json:"orchestrator_id"`
	SkillName      string    `json:"skill_name"`
	InputData      Payload   `json:"input_data"`
	Budget         float64   `json:"budget"`
	Currency       string    `json:"currency"`
	Timestamp      time.Time `json:"timestamp_utc"`
}

// NewJobRequest builds a job request with a fresh id, the default currency
// tag, and the current time.
func NewJobRequest(orchestratorID, skillName string, input Payload, budget float64) JobRequest {
	return JobRequest{
		JobID:          NewID(),
		OrchestratorID: orchestratorID,
		SkillName:      skillName,
		InputData:      input,
		Budget:         budget,
		Currency:       DefaultCurrency,
		Timestamp:      time.Now().UTC(),
	}
}

// JobResult is the structured outcome returned by an agent after processing
// a job. ExecutionCost never exceeds the request budget.
type JobResult struct {
	JobID           string    `json:"job_id"`
	AgentID         string    `json:"agent_id"`
	Status          JobStatus `json:"status"`
	OutputData      Payload   `json:"output_data,omitempty"`
	ExecutionCost   float64   `json:"execution_cost"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ErrorCode       ErrorCode `json:"error_code,omitempty"`
	Timestamp       time.Time `json:"timestamp_utc"`
}

// TransferRecord documents one credit movement between two owners.
// Records are append-only; they are never mutated or deleted.
type TransferRecord struct {
	TransferID string    `json:"transfer_id"`
	FromOwner  string    `json:"from_owner"`
	ToOwner    string    `json:"to_owner"`
	Amount     float64   `json:"amount"`
	JobID      string    `json:"job_id"`
	Timestamp  time.Time `json:"timestamp_utc"`
}

// LeaderboardEntry pairs an agent id with its current reputation score.
type LeaderboardEntry struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// ReputationUpdate is one score-change event kept in the reputation history.
// ContractorReputation is the hiring agent's score at the time of the job.
type ReputationUpdate struct {
	AgentID              string    `json:"agent_id"`
	OldScore             float64   `json:"old_score"`
	NewScore             float64   `json:"new_score"`
	JobID                string    `json:"job_id"`
	Success              bool      `json:"success"`
	ContractorReputation float64   `json:"contractor_reputation"`
	Timestamp            time.Time `json:"timestamp_utc"`
}

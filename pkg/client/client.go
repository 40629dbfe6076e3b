// Package client is the Go SDK for the Chorus coordinator API. It covers
// the registry (register, discover, heartbeat), the ledger (accounts,
// transfers, audit), reputation queries, hiring an agent directly with
// auto-paid settlement, and chaining hires into client-side pipelines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chorusnet/chorus/internal/dispatch"
	"github.com/chorusnet/chorus/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds one coordinator API call. Hiring an agent uses the
// dispatch timeout instead, since it includes handler execution time.
const DefaultTimeout = 10 * time.Second

// Client talks to one chorusd coordinator.
type Client struct {
	baseURL    string
	ownerID    string
	http       *http.Client
	dispatcher *dispatch.HTTP
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the coordinator API timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithOwner sets the owner id used as requester identity by Hire.
func WithOwner(ownerID string) Option {
	return func(c *Client) { c.ownerID = ownerID }
}

// New creates a client for the coordinator at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    trimSlash(baseURL),
		ownerID:    "sdk_client",
		http:       &http.Client{Timeout: DefaultTimeout},
		dispatcher: dispatch.NewHTTP(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks that the coordinator is reachable.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("coordinator unhealthy: %q", out.Status)
	}
	return nil
}

// ── Registry ─────────────────────────────────────────────────

// Register announces an agent to the coordinator.
func (c *Client) Register(ctx context.Context, reg models.AgentRegistration) (models.AgentInfo, error) {
	var info models.AgentInfo
	err := c.post(ctx, "/api/v1/agents", reg, &info)
	return info, err
}

// Discover finds online agents for a skill, best reputation first.
// maxCost < 0 means no cost ceiling.
func (c *Client) Discover(ctx context.Context, skill string, minReputation, maxCost float64) ([]models.AgentInfo, error) {
	q := url.Values{}
	q.Set("skill", skill)
	if minReputation > 0 {
		q.Set("min_reputation", formatFloat(minReputation))
	}
	if maxCost >= 0 {
		q.Set("max_cost", formatFloat(maxCost))
	}

	var out struct {
		Agents []models.AgentInfo `json:"agents"`
	}
	if err := c.get(ctx, "/api/v1/agents/discover?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// Heartbeat refreshes an agent's liveness with the coordinator.
func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	return c.post(ctx, "/api/v1/agents/"+agentID+"/heartbeat", nil, nil)
}

// Unregister removes an agent from the coordinator.
func (c *Client) Unregister(ctx context.Context, agentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/agents/"+agentID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ── Ledger ───────────────────────────────────────────────────

// CreateAccount ensures an account exists and returns its balance.
func (c *Client) CreateAccount(ctx context.Context, ownerID string, initialBalance float64) (float64, error) {
	body := map[string]any{"owner_id": ownerID, "initial_balance": initialBalance}
	var out struct {
		Balance float64 `json:"balance"`
	}
	err := c.post(ctx, "/api/v1/accounts", body, &out)
	return out.Balance, err
}

// Balance returns an owner's current balance (0.0 for unknown owners).
func (c *Client) Balance(ctx context.Context, ownerID string) (float64, error) {
	var out struct {
		Balance float64 `json:"balance"`
	}
	err := c.get(ctx, "/api/v1/accounts/"+ownerID, &out)
	return out.Balance, err
}

// Transfer moves credits between owners through the coordinator ledger.
func (c *Client) Transfer(ctx context.Context, fromOwner, toOwner string, amount float64, jobID string) (models.TransferRecord, error) {
	body := map[string]any{
		"from_owner": fromOwner,
		"to_owner":   toOwner,
		"amount":     amount,
		"job_id":     jobID,
	}
	var record models.TransferRecord
	err := c.post(ctx, "/api/v1/transfers", body, &record)
	return record, err
}

// AuditLog queries transfer records; empty filters mean "any".
func (c *Client) AuditLog(ctx context.Context, jobID, ownerID string) ([]models.TransferRecord, error) {
	q := url.Values{}
	if jobID != "" {
		q.Set("job_id", jobID)
	}
	if ownerID != "" {
		q.Set("owner_id", ownerID)
	}
	var out struct {
		Transfers []models.TransferRecord `json:"transfers"`
	}
	err := c.get(ctx, "/api/v1/transfers?"+q.Encode(), &out)
	return out.Transfers, err
}

// ── Reputation ───────────────────────────────────────────────

// ReputationScore returns an agent's current trust score.
func (c *Client) ReputationScore(ctx context.Context, agentID string) (float64, error) {
	var out struct {
		Score float64 `json:"score"`
	}
	err := c.get(ctx, "/api/v1/reputation/"+agentID, &out)
	return out.Score, err
}

// Leaderboard returns the top N agents by reputation.
func (c *Client) Leaderboard(ctx context.Context, topN int) ([]models.LeaderboardEntry, error) {
	var out struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	err := c.get(ctx, "/api/v1/leaderboard?top="+strconv.Itoa(topN), &out)
	return out.Leaderboard, err
}

// ── Hiring ───────────────────────────────────────────────────

// HireOption configures one Hire call.
type HireOption func(*hireConfig)

type hireConfig struct {
	autoPay bool
}

// WithoutAutoPay delivers the job but leaves payment settlement to the
// caller.
func WithoutAutoPay() HireOption {
	return func(h *hireConfig) { h.autoPay = false }
}

// Hire sends one job directly to the given agent's endpoint and returns its
// result. On success the agent's owner is paid the execution cost through
// the coordinator ledger from this client's owner account; a failed
// settlement is logged and does not fail the hire. Use WithoutAutoPay to
// keep settlement with the caller.
func (c *Client) Hire(ctx context.Context, info models.AgentInfo, input models.Payload, budget float64, opts ...HireOption) (models.JobResult, error) {
	cfg := hireConfig{autoPay: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if info.APIEndpoint == "" || info.APIEndpoint == models.LocalEndpoint {
		return models.JobResult{}, fmt.Errorf("agent %q has no network endpoint", info.AgentID)
	}
	if len(info.Skills) == 0 {
		return models.JobResult{}, fmt.Errorf("agent %q declares no skills", info.AgentID)
	}

	req := models.NewJobRequest(c.ownerID, info.Skills[0].SkillName, input, budget)
	result, err := c.dispatcher.Dispatch(ctx, info, req)
	if err != nil {
		return result, err
	}

	if cfg.autoPay && result.Status == models.JobSuccess && result.ExecutionCost > 0 {
		if _, err := c.Transfer(ctx, c.ownerID, info.OwnerID, result.ExecutionCost, req.JobID); err != nil {
			log.Warn().
				Err(err).
				Str("job_id", req.JobID).
				Str("owner", info.OwnerID).
				Float64("amount", result.ExecutionCost).
				Msg("payment failed after successful job")
		}
	}

	return result, nil
}

// HireBest discovers the best-ranked agent for a skill within the budget
// and hires it.
func (c *Client) HireBest(ctx context.Context, skill string, input models.Payload, budget float64, opts ...HireOption) (models.JobResult, error) {
	agents, err := c.Discover(ctx, skill, 0, budget)
	if err != nil {
		return models.JobResult{}, err
	}
	if len(agents) == 0 {
		return models.JobResult{}, fmt.Errorf("no agent found for skill %q within budget %.2f", skill, budget)
	}
	return c.Hire(ctx, agents[0], input, budget, opts...)
}

// ── HTTP plumbing ────────────────────────────────────────────

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("coordinator request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("coordinator returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

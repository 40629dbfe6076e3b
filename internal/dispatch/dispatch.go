// Package dispatch delivers job requests to agents. The orchestrator only
// sees the Dispatcher interface; behind it a job either runs in-process
// against a local container or travels over HTTP to a remote agent daemon.
//
// A dispatcher resolves to a structured JobResult or an error within a
// bounded timeout. Transport errors are returned as errors — the
// orchestrator converts them into job failures. No retries happen here.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/chorusnet/chorus/internal/agent"
	"github.com/chorusnet/chorus/pkg/models"
	"github.com/rs/zerolog/log"
)

// Dispatcher sends one job request to the given agent and waits for the
// result.
type Dispatcher interface {
	Dispatch(ctx context.Context, info models.AgentInfo, req models.JobRequest) (models.JobResult, error)
}

// ── Local dispatch ───────────────────────────────────────────

// Local dispatches to containers held in-process, keyed by agent id.
type Local struct {
	mu         sync.RWMutex
	containers map[string]*agent.Container
}

// NewLocal creates an empty local dispatcher.
func NewLocal() *Local {
	return &Local{containers: make(map[string]*agent.Container)}
}

// Add makes a container reachable by its agent id.
func (l *Local) Add(c *agent.Container) {
	l.mu.Lock()
	l.containers[c.AgentID()] = c
	l.mu.Unlock()
}

// Remove drops a container.
func (l *Local) Remove(agentID string) {
	l.mu.Lock()
	delete(l.containers, agentID)
	l.mu.Unlock()
}

// Dispatch runs the job directly against the container bound to the agent
// id. Unknown ids are an error; the agent may have unregistered since
// discovery.
func (l *Local) Dispatch(_ context.Context, info models.AgentInfo, req models.JobRequest) (models.JobResult, error) {
	l.mu.RLock()
	c, ok := l.containers[info.AgentID]
	l.mu.RUnlock()
	if !ok {
		return models.JobResult{}, fmt.Errorf("agent %q not available locally", info.AgentID)
	}
	return c.HandleJob(req), nil
}

// ── HTTP dispatch ────────────────────────────────────────────

// DefaultTimeout bounds one remote job call, handler time included.
const DefaultTimeout = 120 * time.Second

// HTTP dispatches jobs to remote agent daemons via POST {endpoint}/jobs.
type HTTP struct {
	client *http.Client
}

// NewHTTP creates an HTTP dispatcher. timeout <= 0 uses DefaultTimeout.
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{client: &http.Client{Timeout: timeout}}
}

// Dispatch posts the job request to the agent's advertised endpoint and
// decodes the job result. Connection errors, timeouts, and malformed
// responses are returned as errors.
func (h *HTTP) Dispatch(ctx context.Context, info models.AgentInfo, req models.JobRequest) (models.JobResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.JobResult{}, fmt.Errorf("encode job request: %w", err)
	}

	url := info.APIEndpoint + "/jobs"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.JobResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return models.JobResult{}, fmt.Errorf("dispatch to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return models.JobResult{}, fmt.Errorf("agent %s returned status %d: %s", info.AgentID, resp.StatusCode, data)
	}

	var result models.JobResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.JobResult{}, fmt.Errorf("decode job result: %w", err)
	}

	log.Debug().
		Str("agent_id", info.AgentID).
		Str("job_id", req.JobID).
		Str("status", string(result.Status)).
		Msg("remote dispatch complete")

	return result, nil
}

// ── Composite dispatch ───────────────────────────────────────

// Composite prefers in-process containers and falls back to HTTP for agents
// advertising a network endpoint.
type Composite struct {
	local  *Local
	remote *HTTP
}

// NewComposite wires a local and an HTTP dispatcher together.
func NewComposite(local *Local, remote *HTTP) *Composite {
	return &Composite{local: local, remote: remote}
}

// Local exposes the in-process side so callers can add containers.
func (c *Composite) Local() *Local {
	return c.local
}

// Dispatch tries the local container first; anything else goes over HTTP
// unless the agent is local-only.
func (c *Composite) Dispatch(ctx context.Context, info models.AgentInfo, req models.JobRequest) (models.JobResult, error) {
	if result, err := c.local.Dispatch(ctx, info, req); err == nil {
		return result, nil
	}
	if info.APIEndpoint == "" || info.APIEndpoint == models.LocalEndpoint {
		return models.JobResult{}, fmt.Errorf("agent %q not available locally and has no network endpoint", info.AgentID)
	}
	return c.remote.Dispatch(ctx, info, req)
}

// Package agent provides the Chorus agent container: the wrapper that gives
// any handler function a protocol-speaking body. The container validates
// incoming job requests, executes the bound handler, and returns structured
// results — handler errors and panics never escape to the caller.
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/chorusnet/chorus/pkg/models"
	"github.com/rs/zerolog/log"
)

// Handler is the skill logic bound to a container: input payload in, output
// payload out. A returned error (or a panic) is reported to the requester
// as an EXECUTION_ERROR job failure.
type Handler func(input models.Payload) (models.Payload, error)

// Stats is a snapshot of a container's cumulative counters. Observability
// only; no coordination logic depends on these.
type Stats struct {
	AgentID       string  `json:"agent_id"`
	Name          string  `json:"name"`
	Skill         string  `json:"skill"`
	JobsCompleted int     `json:"jobs_completed"`
	JobsFailed    int     `json:"jobs_failed"`
	SuccessRate   float64 `json:"success_rate"`
	TotalEarnings float64 `json:"total_earnings"`
}

// Container binds one skill handler to an agent identity. Each HandleJob
// call runs the full validate→execute→settle-result path synchronously.
// Safe for concurrent use; the counters are mutex-guarded.
type Container struct {
	mu sync.Mutex

	agentID     string
	name        string
	ownerID     string
	apiEndpoint string
	skill       models.SkillDefinition
	handler     Handler

	jobsCompleted int
	jobsFailed    int
	totalEarnings float64
}

// Option configures a Container at construction time.
type Option func(*Container)

// WithDescription sets the human-readable skill description.
func WithDescription(desc string) Option {
	return func(c *Container) { c.skill.Description = desc }
}

// WithEndpoint sets the network endpoint advertised at registration.
// Defaults to the in-process marker endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Container) { c.apiEndpoint = endpoint }
}

// New creates a container for one skill. A nil handler falls back to an
// echo of the input.
func New(name, ownerID, skillName string, cost float64, handler Handler, opts ...Option) *Container {
	if handler == nil {
		handler = func(input models.Payload) (models.Payload, error) {
			return models.Payload{"echo": input}, nil
		}
	}
	c := &Container{
		agentID:     models.NewID(),
		name:        name,
		ownerID:     ownerID,
		apiEndpoint: models.LocalEndpoint,
		skill: models.SkillDefinition{
			SkillName:   skillName,
			CostPerCall: cost,
		},
		handler: handler,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AgentID returns the container's generated agent id.
func (c *Container) AgentID() string { return c.agentID }

// OwnerID returns the owner the container earns credits for.
func (c *Container) OwnerID() string { return c.ownerID }

// Skill returns the bound skill definition.
func (c *Container) Skill() models.SkillDefinition { return c.skill }

// Registration builds the registry announcement for this container.
func (c *Container) Registration() models.AgentRegistration {
	return models.AgentRegistration{
		AgentID:     c.agentID,
		AgentName:   c.name,
		OwnerID:     c.ownerID,
		APIEndpoint: c.apiEndpoint,
		Skills:      []models.SkillDefinition{c.skill},
		Timestamp:   time.Now().UTC(),
	}
}

// HandleJob processes one job request:
//
//  1. the requested skill must match the bound skill
//  2. the budget must cover the declared cost
//  3. the handler runs; errors and panics become EXECUTION_ERROR failures
//
// On success the result carries the declared cost — pricing is fixed by the
// skill definition, never chosen by the handler.
func (c *Container) HandleJob(req models.JobRequest) models.JobResult {
	start := time.Now()

	if req.SkillName != c.skill.SkillName {
		return c.failure(req, start, models.ErrSkillMismatch,
			fmt.Sprintf("skill mismatch: requested %q, have %q", req.SkillName, c.skill.SkillName))
	}

	if req.Budget < c.skill.CostPerCall {
		return c.failure(req, start, models.ErrBudgetInsufficient,
			fmt.Sprintf("budget %.2f < cost %.2f", req.Budget, c.skill.CostPerCall))
	}

	output, err := c.execute(req.InputData)
	if err != nil {
		return c.failure(req, start, models.ErrExecutionError, "execution error: "+err.Error())
	}

	c.mu.Lock()
	c.jobsCompleted++
	c.totalEarnings += c.skill.CostPerCall
	c.mu.Unlock()

	return models.JobResult{
		JobID:           req.JobID,
		AgentID:         c.agentID,
		Status:          models.JobSuccess,
		OutputData:      output,
		ExecutionCost:   c.skill.CostPerCall,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Timestamp:       time.Now().UTC(),
	}
}

// execute runs the handler with panic containment.
func (c *Container) execute(input models.Payload) (output models.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("agent", c.name).
				Str("skill", c.skill.SkillName).
				Any("panic", r).
				Msg("handler panicked")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(input)
}

// Stats returns the container's cumulative counters.
func (c *Container) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.jobsCompleted + c.jobsFailed
	rate := 0.0
	if total > 0 {
		rate = float64(c.jobsCompleted) / float64(total)
	}
	return Stats{
		AgentID:       c.agentID,
		Name:          c.name,
		Skill:         c.skill.SkillName,
		JobsCompleted: c.jobsCompleted,
		JobsFailed:    c.jobsFailed,
		SuccessRate:   rate,
		TotalEarnings: c.totalEarnings,
	}
}

func (c *Container) failure(req models.JobRequest, start time.Time, code models.ErrorCode, msg string) models.JobResult {
	c.mu.Lock()
	c.jobsFailed++
	c.mu.Unlock()
	return models.JobResult{
		JobID:           req.JobID,
		AgentID:         c.agentID,
		Status:          models.JobFailure,
		ErrorMessage:    msg,
		ErrorCode:       code,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Timestamp:       time.Now().UTC(),
	}
}

// Package orchestrator drives multi-step Chorus pipelines: it splits the
// budget per step, discovers the best-ranked specialist, dispatches the job,
// folds the output into a shared context, settles payment through the
// ledger, and records the reputation outcome.
//
// Execution is strictly sequential — each step's input is built from the
// context mutated by every prior step, so step n+1 never starts before step
// n's result (payment and reputation update included) is resolved. The
// first job failure aborts the run; payments already settled for earlier
// steps are not rolled back.
package orchestrator

import (
	"context"
	"fmt"
	"math"

	"github.com/chorusnet/chorus/internal/agent"
	"github.com/chorusnet/chorus/internal/dispatch"
	"github.com/chorusnet/chorus/internal/ledger"
	"github.com/chorusnet/chorus/internal/registry"
	"github.com/chorusnet/chorus/internal/reputation"
	"github.com/chorusnet/chorus/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chorus-orchestrator")

// Orchestrator coordinates pipelines against the registry and ledger. It
// owns no persistent state beyond the in-flight run's context; concurrent
// Execute calls are safe because all shared state lives in the services.
type Orchestrator struct {
	agentID    string
	ownerID    string
	registry   *registry.Registry
	ledger     *ledger.Ledger
	dispatcher dispatch.Dispatcher
	local      *dispatch.Local
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDispatcher replaces the default composite dispatcher, e.g. with a
// test double.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithAgentID pins the orchestrator's own agent id instead of generating
// one.
func WithAgentID(id string) Option {
	return func(o *Orchestrator) { o.agentID = id }
}

// New creates an orchestrator for the given owner. The owner's ledger
// account is created (default balance) if it does not exist yet.
func New(reg *registry.Registry, led *ledger.Ledger, ownerID string, opts ...Option) *Orchestrator {
	local := dispatch.NewLocal()
	o := &Orchestrator{
		agentID:    models.NewID(),
		ownerID:    ownerID,
		registry:   reg,
		ledger:     led,
		dispatcher: dispatch.NewComposite(local, dispatch.NewHTTP(0)),
		local:      local,
	}
	for _, opt := range opts {
		opt(o)
	}

	led.CreateAccount(ownerID, ledger.DefaultInitialBalance)
	return o
}

// OwnerID returns the owner the orchestrator pays from.
func (o *Orchestrator) OwnerID() string { return o.ownerID }

// RegisterLocalAgent registers a container with the registry, makes it
// dispatchable in-process, and ensures its owner has a ledger account.
func (o *Orchestrator) RegisterLocalAgent(c *agent.Container) models.AgentInfo {
	info := o.registry.Register(c.Registration())
	if o.local != nil {
		o.local.Add(c)
	}
	o.ledger.CreateAccount(c.OwnerID(), ledger.DefaultInitialBalance)

	log.Info().
		Str("agent", info.AgentName).
		Str("skill", c.Skill().SkillName).
		Float64("cost", c.Skill().CostPerCall).
		Msg("local agent registered")

	return info
}

// Execute runs a pipeline under one total budget, threading a shared
// context through every step. The initial context is copied; the caller's
// map is never mutated.
func (o *Orchestrator) Execute(ctx context.Context, pipeline *Pipeline, initialContext models.Payload, budget float64) Result {
	ctx, span := tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(
			attribute.String("chorus.pipeline", pipeline.Name),
			attribute.Int("chorus.steps", len(pipeline.SubTasks)),
			attribute.Float64("chorus.budget", budget),
		),
	)
	defer span.End()

	result := Result{
		StepsTotal: len(pipeline.SubTasks),
		Context:    initialContext.Clone(),
	}
	remaining := budget

	log.Info().
		Str("pipeline", pipeline.Name).
		Float64("budget", budget).
		Int("steps", result.StepsTotal).
		Msg("🎵 pipeline started")

	for i, subtask := range pipeline.SubTasks {
		record, ok := o.runStep(ctx, i+1, subtask, &result, budget, &remaining)
		result.StepRecords = append(result.StepRecords, record)
		if !ok {
			span.SetAttributes(attribute.String("chorus.error", result.Error))
			log.Warn().
				Str("pipeline", pipeline.Name).
				Int("step", i+1).
				Str("error", result.Error).
				Msg("pipeline aborted")
			return result
		}
	}

	result.Success = true
	span.SetAttributes(attribute.Float64("chorus.total_cost", result.TotalCost))

	log.Info().
		Str("pipeline", pipeline.Name).
		Float64("total_cost", result.TotalCost).
		Float64("budget_remaining", remaining).
		Int("steps", result.StepsCompleted).
		Msg("🎵 pipeline complete")

	return result
}

// runStep executes one subtask. It returns the step record and whether the
// pipeline may continue. On abort the caller finds the error on result.
func (o *Orchestrator) runStep(ctx context.Context, step int, subtask SubTask, result *Result, budget float64, remaining *float64) (StepRecord, bool) {
	fraction := subtask.BudgetFraction
	if fraction <= 0 {
		fraction = DefaultBudgetFraction
	}
	stepBudget := math.Min(budget*fraction, *remaining)

	label := subtask.Description
	if label == "" {
		label = subtask.SkillName
	}

	ctx, span := tracer.Start(ctx, "pipeline.step",
		trace.WithAttributes(
			attribute.Int("chorus.step", step),
			attribute.String("chorus.skill", subtask.SkillName),
			attribute.Float64("chorus.step_budget", stepBudget),
		),
	)
	defer span.End()

	record := StepRecord{Step: step, Skill: subtask.SkillName, Status: models.JobFailure}

	log.Info().
		Int("step", step).
		Int("steps_total", result.StepsTotal).
		Str("task", label).
		Float64("step_budget", stepBudget).
		Msg("pipeline step")

	// 1. Discover: highest reputation first, cost already capped.
	candidates := o.registry.Discover(subtask.SkillName, 0, stepBudget)
	if len(candidates) == 0 {
		return o.abort(result, record, models.ErrNoProviderFound,
			fmt.Sprintf("no agent found for skill %q", subtask.SkillName))
	}
	chosen := candidates[0]
	record.AgentID = chosen.AgentID
	record.AgentName = chosen.AgentName
	span.SetAttributes(attribute.String("chorus.agent_id", chosen.AgentID))

	// 2. Build the step input from the accumulated context.
	input, err := buildInput(subtask, result.Context)
	if err != nil {
		return o.abort(result, record, models.ErrInputBuilderFailed, "input builder failed: "+err.Error())
	}

	// 3. Dispatch. Transport errors count as job failures.
	req := models.NewJobRequest(o.agentID, subtask.SkillName, input, stepBudget)
	jobResult, err := o.dispatcher.Dispatch(ctx, chosen, req)
	if err != nil {
		jobResult = models.JobResult{
			JobID:        req.JobID,
			AgentID:      chosen.AgentID,
			Status:       models.JobFailure,
			ErrorMessage: err.Error(),
			ErrorCode:    models.ErrAgentOffline,
		}
	}
	record.Cost = jobResult.ExecutionCost
	record.TimeMS = jobResult.ExecutionTimeMS

	// 4. A failed job halts the pipeline after the reputation hit.
	if jobResult.Status != models.JobSuccess {
		o.registry.Reputation().RecordFailure(chosen.AgentID, req.JobID, reputation.InitialScore)
		code := jobResult.ErrorCode
		if code == "" {
			code = models.ErrExecutionError
		}
		return o.abort(result, record, code, jobResult.ErrorMessage)
	}
	record.Status = models.JobSuccess
	record.Output = jobResult.OutputData

	// 5. Merge output into context. The extract key is written first so it
	// survives even when the bulk merge would not carry it.
	mergeOutput(result.Context, subtask, jobResult.OutputData)

	// 6. Pay the agent's owner. Settlement failure after delivered work is
	// a warning, not an abort — the step still counts.
	if _, err := o.ledger.Transfer(o.ownerID, chosen.OwnerID, jobResult.ExecutionCost, req.JobID); err != nil {
		record.PaymentFailed = true
		span.SetAttributes(attribute.Bool("chorus.payment_failed", true))
		log.Warn().
			Err(err).
			Str("job_id", req.JobID).
			Str("owner", chosen.OwnerID).
			Float64("amount", jobResult.ExecutionCost).
			Msg("payment failed after successful job")
	} else {
		log.Info().
			Float64("amount", jobResult.ExecutionCost).
			Str("to", chosen.OwnerID).
			Str("job_id", req.JobID).
			Msg("payment settled")
	}

	// 7. Reward the agent, weighted by this orchestrator's own standing.
	contractorRep := reputation.InitialScore
	if o.registry.Reputation().Known(o.ownerID) {
		contractorRep = o.registry.Reputation().Score(o.ownerID)
	}
	o.registry.Reputation().RecordSuccess(chosen.AgentID, req.JobID, contractorRep)

	*remaining -= jobResult.ExecutionCost
	result.TotalCost += jobResult.ExecutionCost
	result.StepsCompleted++
	return record, true
}

// abort stamps the first error on the result and finalizes the step record.
func (o *Orchestrator) abort(result *Result, record StepRecord, code models.ErrorCode, msg string) (StepRecord, bool) {
	record.Error = msg
	result.Error = msg
	result.ErrorCode = code
	return record, false
}

// buildInput runs the step's input builder with panic containment. A nil
// builder passes the context through as the input.
func buildInput(subtask SubTask, pipelineCtx models.Payload) (input models.Payload, err error) {
	if subtask.BuildInput == nil {
		return pipelineCtx.Clone(), nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return subtask.BuildInput(pipelineCtx)
}

// mergeOutput folds a successful step's output into the context,
// overwriting on key collision.
func mergeOutput(pipelineCtx models.Payload, subtask SubTask, output models.Payload) {
	if output == nil {
		return
	}
	if subtask.ExtractOutputKey != "" {
		if v, ok := output[subtask.ExtractOutputKey]; ok {
			pipelineCtx[subtask.ExtractOutputKey] = v
		}
	}
	for k, v := range output {
		pipelineCtx[k] = v
	}
}

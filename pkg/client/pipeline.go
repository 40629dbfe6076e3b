package client

import (
	"context"
	"fmt"
	"math"

	"github.com/chorusnet/chorus/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultStepFraction is the budget share a pipeline step gets when its
// definition does not set one.
const DefaultStepFraction = 0.25

// StepBuilder derives a step's input payload from the accumulated pipeline
// context. An error (or panic) aborts the run.
type StepBuilder func(ctx models.Payload) (models.Payload, error)

// PipelineStep is one step in a client-side pipeline.
type PipelineStep struct {
	// Skill selects which specialist to hire.
	Skill string

	// BuildInput derives this step's input from the running context.
	// A nil builder passes the whole context through unchanged.
	BuildInput StepBuilder

	// BudgetFraction is this step's share of the total run budget.
	// Defaults to DefaultStepFraction; actual spend is capped by the budget
	// remaining when the step starts.
	BudgetFraction float64

	// MinReputation filters out low-trust agents during discovery.
	MinReputation float64

	// Label is shown in logs instead of the skill name when set.
	Label string
}

// PipelineResult is the outcome of a client-side pipeline run. On abort it
// carries the partial context accumulated so far and the first error;
// payments already settled for earlier steps are not rolled back.
type PipelineResult struct {
	Success        bool               `json:"success"`
	Context        models.Payload     `json:"context"`
	TotalCost      float64            `json:"total_cost"`
	StepsCompleted int                `json:"steps_completed"`
	StepsTotal     int                `json:"steps_total"`
	StepResults    []models.JobResult `json:"step_results"`
	Error          string             `json:"error,omitempty"`
}

// Get looks up a key in the final context.
func (r PipelineResult) Get(key string) (any, bool) {
	v, ok := r.Context[key]
	return v, ok
}

// Pipeline chains hires over the network into a workflow: each step
// discovers the best agent for its skill, hires it within its budget share,
// and merges the output into a shared context the next step reads from.
// Payment per step settles through the coordinator ledger via Hire's
// auto-pay.
//
//	result := coord.NewPipeline("sales analysis").
//		Step("analyze_text", func(ctx models.Payload) (models.Payload, error) {
//			return models.Payload{"text": ctx["report"]}, nil
//		}).
//		Step("calculate", nil).
//		Run(ctx, models.Payload{"report": "Revenue was $42,000"}, 1.0)
type Pipeline struct {
	name   string
	client *Client
	steps  []PipelineStep
	onStep func(step int, skill, status string)
}

// NewPipeline creates an empty pipeline executed through this client.
func (c *Client) NewPipeline(name string) *Pipeline {
	return &Pipeline{name: name, client: c}
}

// Step appends a step with the default budget fraction and returns the
// pipeline for chaining.
func (p *Pipeline) Step(skill string, build StepBuilder) *Pipeline {
	return p.StepWith(PipelineStep{Skill: skill, BuildInput: build})
}

// StepWith appends a fully specified step.
func (p *Pipeline) StepWith(step PipelineStep) *Pipeline {
	p.steps = append(p.steps, step)
	return p
}

// OnStep registers a progress callback invoked as each step is discovered
// and hired.
func (p *Pipeline) OnStep(fn func(step int, skill, status string)) *Pipeline {
	p.onStep = fn
	return p
}

// Run executes the pipeline under one total budget. The initial context is
// copied; the caller's map is never mutated. The first failure aborts the
// run with the partial context.
func (p *Pipeline) Run(ctx context.Context, initial models.Payload, budget float64) PipelineResult {
	result := PipelineResult{
		StepsTotal: len(p.steps),
		Context:    initial.Clone(),
	}
	remaining := budget

	log.Info().
		Str("pipeline", p.name).
		Float64("budget", budget).
		Int("steps", result.StepsTotal).
		Msg("🎵 pipeline started")

	for i, step := range p.steps {
		if !p.runStep(ctx, i+1, step, &result, budget, &remaining) {
			log.Warn().
				Str("pipeline", p.name).
				Int("step", i+1).
				Str("error", result.Error).
				Msg("pipeline aborted")
			return result
		}
	}

	result.Success = true
	log.Info().
		Str("pipeline", p.name).
		Float64("total_cost", result.TotalCost).
		Int("steps", result.StepsCompleted).
		Msg("🎵 pipeline complete")
	return result
}

func (p *Pipeline) runStep(ctx context.Context, step int, st PipelineStep, result *PipelineResult, budget float64, remaining *float64) bool {
	fraction := st.BudgetFraction
	if fraction <= 0 {
		fraction = DefaultStepFraction
	}
	stepBudget := math.Min(budget*fraction, *remaining)

	label := st.Label
	if label == "" {
		label = st.Skill
	}
	log.Info().
		Int("step", step).
		Int("steps_total", result.StepsTotal).
		Str("task", label).
		Float64("step_budget", stepBudget).
		Msg("pipeline step")

	p.notify(step, st.Skill, "discovering")
	agents, err := p.client.Discover(ctx, st.Skill, st.MinReputation, stepBudget)
	if err != nil {
		result.Error = "discovery failed: " + err.Error()
		return false
	}
	if len(agents) == 0 {
		result.Error = fmt.Sprintf("no agent found for skill %q", st.Skill)
		return false
	}
	chosen := agents[0]

	input, err := buildStepInput(st, result.Context)
	if err != nil {
		result.Error = "input builder failed: " + err.Error()
		return false
	}

	p.notify(step, st.Skill, "hiring "+chosen.AgentName)
	jobResult, err := p.client.Hire(ctx, chosen, input, stepBudget)
	if err != nil {
		result.Error = err.Error()
		return false
	}
	if jobResult.Status != models.JobSuccess {
		result.Error = jobResult.ErrorMessage
		return false
	}

	for k, v := range jobResult.OutputData {
		result.Context[k] = v
	}
	*remaining -= jobResult.ExecutionCost
	result.TotalCost += jobResult.ExecutionCost
	result.StepsCompleted++
	result.StepResults = append(result.StepResults, jobResult)
	return true
}

func (p *Pipeline) notify(step int, skill, status string) {
	if p.onStep != nil {
		p.onStep(step, skill, status)
	}
}

// buildStepInput runs the builder with panic containment. A nil builder
// passes the context through as the input.
func buildStepInput(st PipelineStep, pipelineCtx models.Payload) (input models.Payload, err error) {
	if st.BuildInput == nil {
		return pipelineCtx.Clone(), nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.BuildInput(pipelineCtx)
}

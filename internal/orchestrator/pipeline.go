package orchestrator

import (
	"github.com/chorusnet/chorus/pkg/models"
)

// InputBuilder derives a step's input payload from the accumulated pipeline
// context. Builders must be pure; any error (or panic) aborts the run with
// an INPUT_BUILDER_FAILED result.
type InputBuilder func(ctx models.Payload) (models.Payload, error)

// SubTask is one step in a pipeline: which skill to hire, how to build its
// input from context, and what share of the total budget it may spend.
type SubTask struct {
	// SkillName selects the specialist to discover.
	SkillName string

	// BuildInput derives this step's input from the running context.
	// A nil builder passes the whole context through unchanged.
	BuildInput InputBuilder

	// ExtractOutputKey, when set, names an output key that is written into
	// the context explicitly before the rest of the output is merged.
	ExtractOutputKey string

	// BudgetFraction is this step's share of the total run budget, in
	// (0,1]. Fractions need not sum to 1; actual spend is capped by the
	// budget remaining when the step starts.
	BudgetFraction float64

	// Description is shown in logs instead of the skill name when set.
	Description string
}

// DefaultBudgetFraction applies when a subtask does not set one.
const DefaultBudgetFraction = 0.2

// Pipeline is an ordered, reusable workflow definition. It carries no run
// state; the same pipeline can execute many times.
type Pipeline struct {
	Name     string
	SubTasks []SubTask
}

// NewPipeline creates a pipeline from zero or more subtasks.
func NewPipeline(name string, subtasks ...SubTask) *Pipeline {
	return &Pipeline{Name: name, SubTasks: subtasks}
}

// Add appends a subtask and returns the pipeline for chaining.
func (p *Pipeline) Add(st SubTask) *Pipeline {
	p.SubTasks = append(p.SubTasks, st)
	return p
}

// StepRecord documents one executed (or aborted) pipeline step.
type StepRecord struct {
	Step          int              `json:"step"`
	Skill         string           `json:"skill"`
	AgentID       string           `json:"agent_id,omitempty"`
	AgentName     string           `json:"agent_name,omitempty"`
	Status        models.JobStatus `json:"status"`
	Cost          float64          `json:"cost"`
	TimeMS        int64            `json:"time_ms"`
	Output        models.Payload   `json:"output,omitempty"`
	Error         string           `json:"error,omitempty"`
	PaymentFailed bool             `json:"payment_failed,omitempty"`
}

// Result is the final outcome of a pipeline run. On abort it carries the
// partial context accumulated so far and the first error encountered;
// payments already settled for earlier steps are never rolled back.
type Result struct {
	Success        bool             `json:"success"`
	Context        models.Payload   `json:"context"`
	TotalCost      float64          `json:"total_cost"`
	StepsCompleted int              `json:"steps_completed"`
	StepsTotal     int              `json:"steps_total"`
	StepRecords    []StepRecord     `json:"step_records"`
	Error          string           `json:"error,omitempty"`
	ErrorCode      models.ErrorCode `json:"error_code,omitempty"`
}

// Package orchestrator implements the Orchestrator (spec.md §4.7): plan
// construction from a strategy and bounded-concurrency plan execution
// against the Agent Runtime, reporting progress through a caller-supplied
// sink and the Event Bus.
package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/kandev/orchmesh/internal/apperr"
)

// Strategy selects how CreatePlan arranges a plan's steps.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyAdaptive   Strategy = "adaptive"
)

// StepStatus is a step's position in its own small lifecycle.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult is what a completed or failed step produced.
type StepResult struct {
	Content string
	Error   string
}

// Step is one unit of work in a Plan, assigned to a single agent.
type Step struct {
	ID        string
	Order     int
	AgentID   string
	Task      string
	DependsOn []string
	Status    StepStatus
	Result    *StepResult
}

// Plan is the Orchestrator's OrchestrationPlan (spec.md §3): a DAG of
// Steps, acyclic and consistent with Order as a topological order.
type Plan struct {
	ID        string
	SessionID string
	Goal      string
	Strategy  Strategy
	Steps     []*Step
}

// CreateRequest is the input to CreatePlan.
type CreateRequest struct {
	SessionID string
	Goal      string
	AgentIDs  []string
	Strategy  Strategy
	// Tasks optionally assigns a distinct task description per agent, by
	// index into AgentIDs. When shorter than AgentIDs (including empty),
	// remaining steps reuse Goal as their Task.
	Tasks []string
}

// Progress mirrors spec.md's OrchestrationProgress, pushed once per step
// transition via the progressSink passed to ExecutePlan.
type Progress struct {
	PlanID          string
	SessionID       string
	CurrentStep     int
	TotalSteps      int
	CurrentAgent    string
	CurrentTask     string
	PercentComplete float64
}

// Result is the Orchestrator's OrchestrationResult, returned once a plan
// reaches a terminal state.
type Result struct {
	PlanID      string
	Success     bool
	StepResults []*Step
	StartedAt   time.Time
	CompletedAt time.Time
}

// CreatePlan builds a Plan from req, per spec.md §4.7:
//   - Sequential: steps form a chain, DependsOn[i] = {Steps[i-1].Id}.
//   - Parallel: steps share no dependencies; all are runnable immediately.
//   - Adaptive: treated as Sequential, per the Open Question decision
//     recorded in DESIGN.md — this implementation has no planning
//     collaborator capable of interleaving plan generation with results.
func CreatePlan(req CreateRequest) (*Plan, error) {
	if req.SessionID == "" {
		return nil, apperr.InvalidArgument("session id must not be empty")
	}
	if len(req.AgentIDs) == 0 {
		return nil, apperr.InvalidArgument("at least one agent id is required")
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategySequential
	}

	steps := make([]*Step, len(req.AgentIDs))
	for i, agentID := range req.AgentIDs {
		task := req.Goal
		if i < len(req.Tasks) && req.Tasks[i] != "" {
			task = req.Tasks[i]
		}
		steps[i] = &Step{
			ID:      uuid.New().String(),
			Order:   i,
			AgentID: agentID,
			Task:    task,
			Status:  StepPending,
		}
	}

	switch strategy {
	case StrategyParallel:
		// no dependencies: every step is immediately eligible.
	case StrategySequential, StrategyAdaptive:
		for i := 1; i < len(steps); i++ {
			steps[i].DependsOn = []string{steps[i-1].ID}
		}
	default:
		return nil, apperr.InvalidArgument("unknown orchestration strategy " + string(strategy))
	}

	return &Plan{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		Goal:      req.Goal,
		Strategy:  strategy,
		Steps:     steps,
	}, nil
}

package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/google/uuid"
	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/events"
	"github.com/kandev/orchmesh/internal/logging"
	"github.com/kandev/orchmesh/internal/session"
)

// defaultMaxConcurrency is the recommended default from spec.md §4.7:
// number of distinct agents in the plan, capped at this value.
const defaultMaxConcurrency = 8

// ProgressSink is the push target supplied by a caller of ExecutePlan.
type ProgressSink interface {
	Publish(ctx context.Context, p Progress)
}

// ProgressSinkFunc adapts a function to ProgressSink.
type ProgressSinkFunc func(ctx context.Context, p Progress)

func (f ProgressSinkFunc) Publish(ctx context.Context, p Progress) { f(ctx, p) }

// Executor runs OrchestrationPlans against the Agent Runtime with bounded
// concurrency, mirroring the teacher's Executor's active-execution
// tracking (internal/orchestrator/executor/executor.go) generalized from
// task subprocess execution to plan-step agent calls, and the teacher's
// TaskQueue priority ordering (internal/orchestrator/queue/queue.go)
// reused here as readyQueue to order newly-eligible steps by Order.
type Executor struct {
	runtime        *agent.Runtime
	bus            *events.Bus
	logger         *logging.Logger
	maxConcurrency int

	mu     sync.Mutex
	active map[string]struct{} // plan IDs currently executing
}

// NewExecutor constructs an Executor. maxConcurrency<=0 selects
// defaultMaxConcurrency.
func NewExecutor(runtime *agent.Runtime, bus *events.Bus, maxConcurrency int, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.Default()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Executor{
		runtime:        runtime,
		bus:            bus,
		logger:         log.WithFields(zap.String("component", "orchestrator_executor")),
		maxConcurrency: maxConcurrency,
		active:         make(map[string]struct{}),
	}
}

// ActiveCount reports how many plans are currently executing.
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Executor) markActive(planID string) {
	e.mu.Lock()
	e.active[planID] = struct{}{}
	e.mu.Unlock()
}

func (e *Executor) markInactive(planID string) {
	e.mu.Lock()
	delete(e.active, planID)
	e.mu.Unlock()
}

func (e *Executor) concurrencyFor(plan *Plan) int {
	distinct := make(map[string]struct{}, len(plan.Steps))
	for _, s := range plan.Steps {
		distinct[s.AgentID] = struct{}{}
	}
	n := len(distinct)
	if n == 0 {
		n = 1
	}
	if n > e.maxConcurrency {
		n = e.maxConcurrency
	}
	return n
}

// ExecutePlan runs plan to completion per spec.md §4.7's scheduling rules:
// a step is eligible once every dependency is Completed; eligible steps
// run concurrently up to concurrencyFor(plan); a failed step's dependents
// are marked Skipped without running; ctx cancellation stops launching
// new steps (in-flight steps observe ctx through the ctx passed to the
// Agent Runtime's SendMessage, and not-yet-launched steps are marked
// Skipped once cancellation is observed).
func (e *Executor) ExecutePlan(ctx context.Context, plan *Plan, sink ProgressSink) (*Result, error) {
	if plan == nil {
		return nil, apperr.InvalidArgument("plan must not be nil")
	}
	started := time.Now().UTC()
	total := len(plan.Steps)
	if total == 0 {
		return &Result{PlanID: plan.ID, Success: true, StartedAt: started, CompletedAt: started}, nil
	}

	e.markActive(plan.ID)
	defer e.markInactive(plan.ID)

	byID := make(map[string]*Step, total)
	dependents := make(map[string][]string, total)
	for _, s := range plan.Steps {
		byID[s.ID] = s
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	sem := semaphore.NewWeighted(int64(e.concurrencyFor(plan)))
	var g errgroup.Group

	var mu sync.Mutex
	completed := 0
	done := make(chan string, total)

	runWorker := func(step *Step) {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				e.finishStep(ctx, plan, step, StepFailed, &StepResult{Error: "cancelled before execution: " + err.Error()}, &mu, &completed, total, sink)
				done <- step.ID
				return nil
			}
			defer sem.Release(1)

			result, status := e.runStep(ctx, step)
			e.finishStep(ctx, plan, step, status, result, &mu, &completed, total, sink)
			done <- step.ID
			return nil
		})
	}

	markSkipped := func(step *Step) {
		g.Go(func() error {
			e.finishStep(ctx, plan, step, StepSkipped, &StepResult{Error: "skipped: a dependency did not complete"}, &mu, &completed, total, sink)
			done <- step.ID
			return nil
		})
	}

	// evalDependent decides, under mu, whether dep is ready to run, must
	// be skipped, or should keep waiting. Only called once per Pending
	// dependent per completed dependency event, and transitions dep's
	// status atomically with the decision to avoid double-launch.
	evalDependent := func(dep *Step) (launch bool, skip bool) {
		mu.Lock()
		defer mu.Unlock()

		if dep.Status != StepPending {
			return false, false
		}
		if ctx.Err() != nil {
			dep.Status = StepSkipped
			return false, true
		}
		allCompleted := true
		for _, depID := range dep.DependsOn {
			switch byID[depID].Status {
			case StepCompleted:
			case StepFailed, StepSkipped:
				dep.Status = StepSkipped
				return false, true
			default:
				allCompleted = false
			}
		}
		if !allCompleted {
			return false, false
		}
		dep.Status = StepRunning
		return true, false
	}

	// Launch every initially-eligible step (no dependencies), in Order.
	initial := newReadyQueue()
	for _, s := range plan.Steps {
		if len(s.DependsOn) != 0 {
			continue
		}
		if ctx.Err() != nil {
			s.Status = StepSkipped
			markSkipped(s)
			continue
		}
		s.Status = StepRunning
		initial.push(s)
	}
	for s := initial.pop(); s != nil; s = initial.pop() {
		runWorker(s)
	}

	for i := 0; i < total; i++ {
		id := <-done

		// Evaluate every dependent unblocked by id's completion, then
		// launch the newly-eligible ones in Order via readyQueue so that,
		// when several become eligible in the same scheduling pass, the
		// earliest-in-plan step is dispatched first.
		ready := newReadyQueue()
		for _, depID := range dependents[id] {
			dep := byID[depID]
			launch, skip := evalDependent(dep)
			switch {
			case launch:
				ready.push(dep)
			case skip:
				markSkipped(dep)
			}
		}
		for s := ready.pop(); s != nil; s = ready.pop() {
			runWorker(s)
		}
	}

	_ = g.Wait()

	success := true
	for _, s := range plan.Steps {
		if s.Status != StepCompleted {
			success = false
			break
		}
	}

	return &Result{
		PlanID:      plan.ID,
		Success:     success,
		StepResults: plan.Steps,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}, nil
}

func (e *Executor) runStep(ctx context.Context, step *Step) (*StepResult, StepStatus) {
	history := []*session.Message{{
		Role:    session.RoleUser,
		Content: step.Task,
	}}

	resp, err := e.runtime.SendMessage(ctx, step.AgentID, history, nil)
	if err != nil {
		return &StepResult{Error: err.Error()}, StepFailed
	}
	return &StepResult{Content: resp.Content}, StepCompleted
}

func (e *Executor) finishStep(ctx context.Context, plan *Plan, step *Step, status StepStatus, result *StepResult, mu *sync.Mutex, completed *int, total int, sink ProgressSink) {
	mu.Lock()
	step.Status = status
	step.Result = result
	*completed++
	cur := *completed
	mu.Unlock()

	e.publishStepCompleted(ctx, plan, step)
	e.reportProgress(ctx, plan, step, cur, total, sink)
}

func (e *Executor) reportProgress(ctx context.Context, plan *Plan, step *Step, completed, total int, sink ProgressSink) {
	p := Progress{
		PlanID:          plan.ID,
		SessionID:       plan.SessionID,
		CurrentStep:     completed,
		TotalSteps:      total,
		CurrentAgent:    step.AgentID,
		CurrentTask:     step.Task,
		PercentComplete: 100 * float64(completed) / float64(total),
	}
	if sink != nil {
		sink.Publish(ctx, p)
	}

	if err := events.Publish(ctx, e.bus, "orchestrator", events.OrchestrationProgressEvent{
		Base:            events.Base{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Source: "orchestrator"},
		PlanID:          p.PlanID,
		SessionID:       p.SessionID,
		CurrentStep:     p.CurrentStep,
		TotalSteps:      p.TotalSteps,
		CurrentAgent:    p.CurrentAgent,
		CurrentTask:     p.CurrentTask,
		PercentComplete: p.PercentComplete,
	}); err != nil {
		e.logger.Error("publishing OrchestrationProgressEvent failed", zap.Error(err))
	}
}

func (e *Executor) publishStepCompleted(ctx context.Context, plan *Plan, step *Step) {
	if err := events.Publish(ctx, e.bus, "orchestrator", events.OrchestrationStepCompleted{
		Base:      events.Base{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Source: "orchestrator"},
		PlanID:    plan.ID,
		SessionID: plan.SessionID,
		StepID:    step.ID,
		Status:    string(step.Status),
	}); err != nil {
		e.logger.Error("publishing OrchestrationStepCompleted failed", zap.Error(err))
	}
}

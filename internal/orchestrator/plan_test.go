package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePlanSequentialChainsDependencies(t *testing.T) {
	plan, err := CreatePlan(CreateRequest{
		SessionID: "sess-1",
		Goal:      "ship the feature",
		AgentIDs:  []string{"a1", "a2", "a3"},
		Strategy:  StrategySequential,
	})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)

	assert.Empty(t, plan.Steps[0].DependsOn)
	assert.Equal(t, []string{plan.Steps[0].ID}, plan.Steps[1].DependsOn)
	assert.Equal(t, []string{plan.Steps[1].ID}, plan.Steps[2].DependsOn)
	for i, s := range plan.Steps {
		assert.Equal(t, i, s.Order)
		assert.Equal(t, StepPending, s.Status)
	}
}

func TestCreatePlanParallelHasNoDependencies(t *testing.T) {
	plan, err := CreatePlan(CreateRequest{
		SessionID: "sess-1",
		Goal:      "fan out",
		AgentIDs:  []string{"a1", "a2"},
		Strategy:  StrategyParallel,
	})
	require.NoError(t, err)
	for _, s := range plan.Steps {
		assert.Empty(t, s.DependsOn)
	}
}

func TestCreatePlanAdaptiveTreatedAsSequential(t *testing.T) {
	plan, err := CreatePlan(CreateRequest{
		SessionID: "sess-1",
		Goal:      "adapt",
		AgentIDs:  []string{"a1", "a2"},
		Strategy:  StrategyAdaptive,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{plan.Steps[0].ID}, plan.Steps[1].DependsOn)
}

func TestCreatePlanDefaultsToSequential(t *testing.T) {
	plan, err := CreatePlan(CreateRequest{
		SessionID: "sess-1",
		Goal:      "default",
		AgentIDs:  []string{"a1", "a2"},
	})
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, plan.Strategy)
}

func TestCreatePlanPerAgentTasks(t *testing.T) {
	plan, err := CreatePlan(CreateRequest{
		SessionID: "sess-1",
		Goal:      "goal",
		AgentIDs:  []string{"a1", "a2"},
		Tasks:     []string{"research", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "research", plan.Steps[0].Task)
	assert.Equal(t, "goal", plan.Steps[1].Task)
}

func TestCreatePlanRejectsEmptySessionID(t *testing.T) {
	_, err := CreatePlan(CreateRequest{AgentIDs: []string{"a1"}})
	assert.Error(t, err)
}

func TestCreatePlanRejectsNoAgents(t *testing.T) {
	_, err := CreatePlan(CreateRequest{SessionID: "sess-1"})
	assert.Error(t, err)
}

func TestCreatePlanRejectsUnknownStrategy(t *testing.T) {
	_, err := CreatePlan(CreateRequest{
		SessionID: "sess-1",
		AgentIDs:  []string{"a1"},
		Strategy:  Strategy("bogus"),
	})
	assert.Error(t, err)
}

package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/agent/echoadapter"
	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/events"
	"github.com/kandev/orchmesh/internal/session"
)

func echoFactory(cfg agent.Config) (agent.Adapter, error) {
	return echoadapter.New(nil, 0), nil
}

func TestCanTransitionAllowsOnlyDeclaredEdges(t *testing.T) {
	assert.True(t, agent.CanTransition(agent.StatusUninitialized, agent.StatusInitializing))
	assert.True(t, agent.CanTransition(agent.StatusReady, agent.StatusProcessing))
	assert.False(t, agent.CanTransition(agent.StatusUninitialized, agent.StatusReady))
	assert.False(t, agent.CanTransition(agent.StatusShutdown, agent.StatusReady))
}

func TestCreateAgentStartsUninitialized(t *testing.T) {
	reg := agent.NewRegistry(echoFactory, events.New(nil, nil), nil)
	ag, err := reg.CreateAgent(context.Background(), agent.Config{Name: "a1", ProviderType: "echo"})
	require.NoError(t, err)
	assert.Equal(t, agent.StatusUninitialized, ag.Status)
}

func TestCreateAgentRejectsEmptyName(t *testing.T) {
	reg := agent.NewRegistry(echoFactory, events.New(nil, nil), nil)
	_, err := reg.CreateAgent(context.Background(), agent.Config{ProviderType: "echo"})
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	reg := agent.NewRegistry(echoFactory, events.New(nil, nil), nil)
	ag, err := reg.CreateAgent(context.Background(), agent.Config{Name: "a1", ProviderType: "echo"})
	require.NoError(t, err)

	_, err = reg.Transition(context.Background(), ag.ID, agent.StatusReady, "")
	assert.Equal(t, apperr.CodePreconditionFail, apperr.CodeOf(err))
}

func TestTransitionPublishesAgentStatusChanged(t *testing.T) {
	bus := events.New(nil, nil)
	reg := agent.NewRegistry(echoFactory, bus, nil)
	ag, err := reg.CreateAgent(context.Background(), agent.Config{Name: "a1", ProviderType: "echo"})
	require.NoError(t, err)

	var seen events.AgentStatusChanged
	_, err = events.Subscribe(bus, func(ctx context.Context, e events.AgentStatusChanged) error {
		seen = e
		return nil
	})
	require.NoError(t, err)

	_, err = reg.Transition(context.Background(), ag.ID, agent.StatusInitializing, "")
	require.NoError(t, err)
	assert.Equal(t, ag.ID, seen.AgentID)
	assert.Equal(t, string(agent.StatusInitializing), seen.NewStatus)
}

func TestRemoveAgentRequiresShutdown(t *testing.T) {
	reg := agent.NewRegistry(echoFactory, events.New(nil, nil), nil)
	ag, err := reg.CreateAgent(context.Background(), agent.Config{Name: "a1", ProviderType: "echo"})
	require.NoError(t, err)

	err = reg.RemoveAgent(ag.ID)
	assert.Equal(t, apperr.CodePreconditionFail, apperr.CodeOf(err))
}

func TestRegisterAgentOverwritesAndPublishesShutdown(t *testing.T) {
	bus := events.New(nil, nil)
	reg := agent.NewRegistry(echoFactory, bus, nil)
	ag, err := reg.CreateAgent(context.Background(), agent.Config{Name: "a1", ProviderType: "echo"})
	require.NoError(t, err)
	_, err = reg.Transition(context.Background(), ag.ID, agent.StatusInitializing, "")
	require.NoError(t, err)

	var seen events.AgentStatusChanged
	_, err = events.Subscribe(bus, func(ctx context.Context, e events.AgentStatusChanged) error {
		seen = e
		return nil
	})
	require.NoError(t, err)

	replacement := &agent.Agent{ID: ag.ID, Config: ag.Config, Status: agent.StatusUninitialized}
	reg.RegisterAgent(context.Background(), ag.ID, replacement, echoadapter.New(nil, 0))

	assert.Equal(t, ag.ID, seen.AgentID)
	assert.Equal(t, string(agent.StatusShutdown), seen.NewStatus)

	got, err := reg.GetAgent(ag.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusUninitialized, got.Status)
}

func TestRuntimeInitializeReachesReady(t *testing.T) {
	reg := agent.NewRegistry(echoFactory, events.New(nil, nil), nil)
	rt := agent.NewRuntime(reg, 0, nil)
	ag, err := reg.CreateAgent(context.Background(), agent.Config{Name: "a1", ProviderType: "echo"})
	require.NoError(t, err)

	require.NoError(t, rt.Initialize(context.Background(), ag.ID))

	got, err := reg.GetAgent(ag.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusReady, got.Status)
}

func TestRuntimeSendMessageReturnsToReady(t *testing.T) {
	reg := agent.NewRegistry(echoFactory, events.New(nil, nil), nil)
	rt := agent.NewRuntime(reg, 0, nil)
	ag, err := reg.CreateAgent(context.Background(), agent.Config{Name: "a1", ProviderType: "echo"})
	require.NoError(t, err)
	require.NoError(t, rt.Initialize(context.Background(), ag.ID))

	resp, err := rt.SendMessage(context.Background(), ag.ID, []*session.Message{{Role: session.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content)

	got, err := reg.GetAgent(ag.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusReady, got.Status)
}

func TestRuntimeSendMessageRejectsWhenNotReady(t *testing.T) {
	reg := agent.NewRegistry(echoFactory, events.New(nil, nil), nil)
	rt := agent.NewRuntime(reg, 0, nil)
	ag, err := reg.CreateAgent(context.Background(), agent.Config{Name: "a1", ProviderType: "echo"})
	require.NoError(t, err)

	_, err = rt.SendMessage(context.Background(), ag.ID, nil, nil)
	assert.Equal(t, apperr.CodePreconditionFail, apperr.CodeOf(err))
}

package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/logging"
	"github.com/kandev/orchmesh/internal/session"
)

// Runtime drives one agent's adapter through the state machine for a
// single request, enforcing spec.md §4.3's Ready->Processing->Ready cycle
// and the cooperative-cancellation grace period on streaming calls.
type Runtime struct {
	registry     *Registry
	cancelGrace  time.Duration
	logger       *logging.Logger
}

// NewRuntime constructs a Runtime over registry. cancelGrace bounds how
// long SendMessageStream waits for an adapter to observe ctx cancellation
// before the runtime gives up draining it and forces Error status.
func NewRuntime(registry *Registry, cancelGrace time.Duration, log *logging.Logger) *Runtime {
	if log == nil {
		log = logging.Default()
	}
	if cancelGrace <= 0 {
		cancelGrace = 250 * time.Millisecond
	}
	return &Runtime{
		registry:    registry,
		cancelGrace: cancelGrace,
		logger:      log.WithFields(zap.String("component", "agent_runtime")),
	}
}

// Initialize transitions an agent Uninitialized -> Initializing -> Ready.
func (rt *Runtime) Initialize(ctx context.Context, agentID string) error {
	if _, err := rt.registry.Transition(ctx, agentID, StatusInitializing, ""); err != nil {
		return err
	}
	if _, err := rt.registry.Transition(ctx, agentID, StatusReady, ""); err != nil {
		return err
	}
	return nil
}

func toAdapterMessages(msgs []*session.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func toAdapterTools(specs []ToolSpec) []ToolSpec { return specs }

// SendMessage runs a single non-streaming exchange, enforcing that the
// agent is Ready beforehand and returning it to Ready afterward (or Error
// on adapter failure).
func (rt *Runtime) SendMessage(ctx context.Context, agentID string, history []*session.Message, tools []ToolSpec) (Response, error) {
	ag, err := rt.registry.GetAgent(agentID)
	if err != nil {
		return Response{}, err
	}
	if ag.Status != StatusReady {
		return Response{}, apperr.PreconditionFailed("agent " + agentID + " is not ready")
	}
	adapter, err := rt.registry.GetAdapter(agentID)
	if err != nil {
		return Response{}, err
	}

	if _, err := rt.registry.Transition(ctx, agentID, StatusProcessing, ""); err != nil {
		return Response{}, err
	}

	resp, err := adapter.SendMessage(ctx, toAdapterMessages(history), toAdapterTools(tools))
	if err != nil {
		_, _ = rt.registry.Transition(ctx, agentID, StatusError, err.Error())
		return Response{}, apperr.AdapterFailure("send message", err)
	}

	if _, terr := rt.registry.Transition(ctx, agentID, StatusReady, ""); terr != nil {
		rt.logger.Error("returning agent to ready failed", zap.Error(terr))
	}
	return resp, nil
}

// SendMessageStream runs a streaming exchange. The returned channel is
// closed once a Done chunk (or ctx cancellation) has been observed; the
// agent returns to Ready on normal completion or Error on adapter failure
// or a cancellation not acknowledged within the configured grace period.
func (rt *Runtime) SendMessageStream(ctx context.Context, agentID string, history []*session.Message, tools []ToolSpec) (<-chan StreamChunk, error) {
	ag, err := rt.registry.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if ag.Status != StatusReady {
		return nil, apperr.PreconditionFailed("agent " + agentID + " is not ready")
	}
	adapter, err := rt.registry.GetAdapter(agentID)
	if err != nil {
		return nil, err
	}
	if _, err := rt.registry.Transition(ctx, agentID, StatusProcessing, ""); err != nil {
		return nil, err
	}

	upstream, err := adapter.SendMessageStream(ctx, toAdapterMessages(history), toAdapterTools(tools))
	if err != nil {
		_, _ = rt.registry.Transition(ctx, agentID, StatusError, err.Error())
		return nil, apperr.AdapterFailure("send message stream", err)
	}

	out := make(chan StreamChunk)
	go rt.pumpStream(ctx, agentID, upstream, out)
	return out, nil
}

func (rt *Runtime) pumpStream(ctx context.Context, agentID string, upstream <-chan StreamChunk, out chan<- StreamChunk) {
	defer close(out)

	for {
		select {
		case chunk, ok := <-upstream:
			if !ok {
				rt.finishStream(ctx, agentID, nil)
				return
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				rt.awaitUpstreamClose(agentID, upstream)
				return
			}
			if chunk.Done || chunk.Err != nil {
				rt.finishStream(ctx, agentID, chunk.Err)
				rt.drain(upstream)
				return
			}
		case <-ctx.Done():
			rt.awaitUpstreamClose(agentID, upstream)
			return
		}
	}
}

// awaitUpstreamClose gives the adapter cancelGrace to observe ctx
// cancellation and close upstream on its own; past the grace period the
// runtime forces the agent to Error rather than leave it Processing forever.
func (rt *Runtime) awaitUpstreamClose(agentID string, upstream <-chan StreamChunk) {
	timer := time.NewTimer(rt.cancelGrace)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-upstream:
			if !ok {
				_, _ = rt.registry.Transition(context.Background(), agentID, StatusReady, "")
				return
			}
		case <-timer.C:
			rt.logger.Warn("adapter did not observe cancellation within grace period",
				zap.String("agent_id", agentID))
			_, _ = rt.registry.Transition(context.Background(), agentID, StatusError, "cancellation not observed in time")
			return
		}
	}
}

func (rt *Runtime) drain(upstream <-chan StreamChunk) {
	for range upstream {
	}
}

func (rt *Runtime) finishStream(ctx context.Context, agentID string, streamErr error) {
	if streamErr != nil {
		_, _ = rt.registry.Transition(ctx, agentID, StatusError, streamErr.Error())
		return
	}
	if _, err := rt.registry.Transition(ctx, agentID, StatusReady, ""); err != nil {
		rt.logger.Error("returning agent to ready after stream failed", zap.Error(err))
	}
}

// Shutdown transitions an agent to StatusShutdown from any non-terminal state.
func (rt *Runtime) Shutdown(ctx context.Context, agentID string) error {
	_, err := rt.registry.Transition(ctx, agentID, StatusShutdown, "")
	return err
}

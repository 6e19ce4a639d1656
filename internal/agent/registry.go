package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/events"
	"github.com/kandev/orchmesh/internal/logging"
)

// AdapterFactory builds an Adapter for a given Config, selecting the
// provider implementation by Config.ProviderType.
type AdapterFactory func(cfg Config) (Adapter, error)

// Registry tracks agent instances and their runtime state, mirroring the
// teacher's lifecycle.Manager instance map guarded by a single mutex.
type Registry struct {
	factory AdapterFactory
	bus     *events.Bus
	logger  *logging.Logger

	mu       sync.RWMutex
	agents   map[string]*Agent
	adapters map[string]Adapter
}

// NewRegistry constructs a Registry. factory selects the concrete Adapter
// implementation for a Config.ProviderType at CreateAgent time.
func NewRegistry(factory AdapterFactory, bus *events.Bus, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Default()
	}
	return &Registry{
		factory:  factory,
		bus:      bus,
		logger:   log.WithFields(zap.String("component", "agent_registry")),
		agents:   make(map[string]*Agent),
		adapters: make(map[string]Adapter),
	}
}

// CreateAgent registers a new Agent in StatusUninitialized and constructs
// its Adapter. It does not initialize the adapter; call Initialize for that.
func (r *Registry) CreateAgent(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.Name == "" {
		return nil, apperr.InvalidArgument("agent name must not be empty")
	}
	adapter, err := r.factory(cfg)
	if err != nil {
		return nil, apperr.AdapterFailure("constructing adapter", err)
	}

	ag := &Agent{
		ID:        uuid.New().String(),
		Config:    cfg,
		Status:    StatusUninitialized,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.agents[ag.ID] = ag
	r.adapters[ag.ID] = adapter
	r.mu.Unlock()

	return ag, nil
}

// GetAgent returns a registered agent by id.
func (r *Registry) GetAgent(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ag, ok := r.agents[id]
	if !ok {
		return nil, apperr.NotFound("agent", id)
	}
	cp := *ag
	return &cp, nil
}

// GetAdapter returns the Adapter backing a registered agent.
func (r *Registry) GetAdapter(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ad, ok := r.adapters[id]
	if !ok {
		return nil, apperr.NotFound("agent", id)
	}
	return ad, nil
}

// ListConfiguredAgents returns every registered agent.
func (r *Registry) ListConfiguredAgents() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, ag := range r.agents {
		cp := *ag
		out = append(out, &cp)
	}
	return out
}

// Transition attempts to move agent id from its current status to to. An
// illegal transition fails PreconditionFailed without mutating state, and
// AgentStatusChanged is published only on success.
func (r *Registry) Transition(ctx context.Context, id string, to Status, errMsg string) (*Agent, error) {
	r.mu.Lock()
	ag, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return nil, apperr.NotFound("agent", id)
	}
	from := ag.Status
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return nil, apperr.PreconditionFailed(
			"agent " + id + " cannot transition from " + string(from) + " to " + string(to))
	}
	ag.Status = to
	ag.LastActiveAt = time.Now().UTC()
	ag.ErrorMessage = errMsg
	cp := *ag
	r.mu.Unlock()

	if err := events.Publish(ctx, r.bus, "agent_registry", events.AgentStatusChanged{
		Base:      events.Base{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Source: "agent_registry"},
		AgentID:   id,
		OldStatus: string(from),
		NewStatus: string(to),
	}); err != nil {
		r.logger.Error("publishing AgentStatusChanged failed", zap.Error(err))
	}

	return &cp, nil
}

// RegisterAgent installs ag/adapter under id, overwriting any existing
// entry. If an agent was already registered at id, it is transitioned to
// StatusShutdown (publishing AgentStatusChanged) before being replaced, per
// spec.md §4.3's "overwrites; destroys the previous one first."
func (r *Registry) RegisterAgent(ctx context.Context, id string, ag *Agent, adapter Adapter) {
	r.mu.Lock()
	prev, hadPrev := r.agents[id]
	var from Status
	if hadPrev {
		from = prev.Status
		if prev != ag {
			prev.Status = StatusShutdown
		}
	}
	r.mu.Unlock()

	if hadPrev && from != StatusShutdown {
		if err := events.Publish(ctx, r.bus, "agent_registry", events.AgentStatusChanged{
			Base:      events.Base{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Source: "agent_registry"},
			AgentID:   id,
			OldStatus: string(from),
			NewStatus: string(StatusShutdown),
		}); err != nil {
			r.logger.Error("publishing AgentStatusChanged failed", zap.Error(err))
		}
	}

	r.mu.Lock()
	r.agents[id] = ag
	r.adapters[id] = adapter
	r.mu.Unlock()
}

// RemoveAgent deregisters an agent; it must already be in StatusShutdown.
func (r *Registry) RemoveAgent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ag, ok := r.agents[id]
	if !ok {
		return apperr.NotFound("agent", id)
	}
	if ag.Status != StatusShutdown {
		return apperr.PreconditionFailed("agent " + id + " must be shut down before removal")
	}
	delete(r.agents, id)
	delete(r.adapters, id)
	return nil
}

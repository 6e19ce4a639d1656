// Package approval implements the Approval Collaborator: the gate a tool
// call requiring approval must pass before internal/tools executes it.
// There is no teacher precedent for this collaborator (documented in
// DESIGN.md); the Mode/AskOnce bookkeeping here follows the same
// mutex-guarded-map idiom as internal/agent.Registry and the teacher's
// lifecycle.Manager.RespondToPermission pending-request pattern.
package approval

import (
	"context"
	"sync"

	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/apperr"
)

// Decision is an alias for agent.ApprovalDecision, kept local so callers
// that only need the approval package need not import internal/agent.
type Decision = agent.ApprovalDecision

// Mode selects how RequestApproval resolves a request.
type Mode string

const (
	// ModeAlwaysAllow approves every request without prompting.
	ModeAlwaysAllow Mode = "always_allow"
	// ModeAlwaysDeny denies every request without prompting.
	ModeAlwaysDeny Mode = "always_deny"
	// ModeAskEach prompts the Asker for every request, regardless of
	// tool name.
	ModeAskEach Mode = "ask_each"
	// ModeAskOnce prompts the Asker the first time a given tool name is
	// requested, then reuses that decision for subsequent requests of
	// the same tool name.
	ModeAskOnce Mode = "ask_once"
)

// Asker is consulted by ModeAskEach and ModeAskOnce to obtain a human (or
// policy-engine) decision. Implementations are expected to surface the
// request over a transport (CLI prompt, websocket round-trip) and block
// until answered or ctx is cancelled.
type Asker interface {
	Ask(ctx context.Context, toolName, command, reason string) (Decision, error)
}

// Collaborator is the agent.ApprovalCollaborator implementation: an
// in-memory mode selector with per-tool-name memoization for ModeAskOnce.
type Collaborator struct {
	mode  Mode
	asker Asker

	mu      sync.Mutex
	decided map[string]Decision
}

var _ agent.ApprovalCollaborator = (*Collaborator)(nil)

// New constructs a Collaborator. asker may be nil when mode is
// ModeAlwaysAllow or ModeAlwaysDeny, since it is never consulted.
func New(mode Mode, asker Asker) *Collaborator {
	return &Collaborator{
		mode:    mode,
		asker:   asker,
		decided: make(map[string]Decision),
	}
}

// RequestApproval resolves an approval request per the Collaborator's Mode.
func (c *Collaborator) RequestApproval(ctx context.Context, toolName, command, reason string) (Decision, error) {
	switch c.mode {
	case ModeAlwaysAllow:
		return Decision{Approved: true}, nil
	case ModeAlwaysDeny:
		return Decision{Approved: false, Reason: "approval mode is always_deny"}, nil
	case ModeAskEach:
		return c.ask(ctx, toolName, command, reason)
	case ModeAskOnce:
		c.mu.Lock()
		if d, ok := c.decided[toolName]; ok {
			c.mu.Unlock()
			return d, nil
		}
		c.mu.Unlock()

		d, err := c.ask(ctx, toolName, command, reason)
		if err != nil {
			return Decision{}, err
		}
		c.mu.Lock()
		c.decided[toolName] = d
		c.mu.Unlock()
		return d, nil
	default:
		return Decision{}, apperr.Internal("unknown approval mode "+string(c.mode), nil)
	}
}

func (c *Collaborator) ask(ctx context.Context, toolName, command, reason string) (Decision, error) {
	if c.asker == nil {
		return Decision{}, apperr.Internal("approval mode "+string(c.mode)+" requires an Asker", nil)
	}
	d, err := c.asker.Ask(ctx, toolName, command, reason)
	if err != nil {
		return Decision{}, apperr.Wrap(apperr.CodeInternal, "asking for approval", err)
	}
	return d, nil
}

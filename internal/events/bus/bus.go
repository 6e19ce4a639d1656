// Package bus provides the in-process, subject-based publish/subscribe
// backplane that the typed Event Bus facade (internal/events) is built on.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire shape carried on every subject.
type Envelope struct {
	ID        string         `json:"id"`
	Subject   string         `json:"subject"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEnvelope creates an Envelope with a fresh id and current timestamp.
func NewEnvelope(subject, source string, data map[string]any) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Subject:   subject,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Handler processes one Envelope delivered on a subscription.
type Handler func(ctx context.Context, env *Envelope) error

// Subscription represents one active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// Bus is the transport-agnostic publish/subscribe contract. MemoryBus is
// the default, in-process implementation; NATSBus is an optional
// pluggable backplane for multi-process deployments (a non-goal of the
// core itself, but a drop-in the core's interfaces already support).
type Bus interface {
	Publish(ctx context.Context, subject string, env *Envelope) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	Close()
	IsConnected() bool
}

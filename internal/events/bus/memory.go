package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/logging"
)

// MemoryBus implements Bus with exact-subject, in-process fan-out.
// Unlike the teacher's NATS-flavored memory bus this has no wildcard
// matching: the typed facade in internal/events derives one subject per
// Go event type, so pattern matching would be unused complexity.
type MemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySubscription
	logger        *logging.Logger
	closed        bool
}

type memorySubscription struct {
	bus     *MemoryBus
	subject string
	handler Handler

	mu     sync.Mutex
	active bool
}

// NewMemoryBus creates an in-process Bus.
func NewMemoryBus(log *logging.Logger) *MemoryBus {
	if log == nil {
		log = logging.Default()
	}
	return &MemoryBus{
		subscriptions: make(map[string][]*memorySubscription),
		logger:        log.WithFields(zap.String("component", "event_bus")),
	}
}

// Publish delivers env to every active subscriber of subject. Handlers
// run concurrently and independently: one handler's error is logged and
// does not affect delivery to the others. Publish itself never blocks on
// handler completion.
func (b *MemoryBus) Publish(ctx context.Context, subject string, env *Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	subs := append([]*memorySubscription(nil), b.subscriptions[subject]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.mu.Lock()
		active := sub.active
		sub.mu.Unlock()
		if !active {
			continue
		}
		go func(s *memorySubscription) {
			if err := s.handler(ctx, env); err != nil {
				b.logger.Error("event handler failed",
					zap.String("subject", subject),
					zap.String("event_id", env.ID),
					zap.Error(err))
			}
		}(sub)
	}
	return nil
}

// PublishSync delivers env to every active subscriber and waits for all
// handlers to return before returning itself, still isolating failures.
func (b *MemoryBus) PublishSync(ctx context.Context, subject string, env *Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	subs := append([]*memorySubscription(nil), b.subscriptions[subject]...)
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		sub.mu.Lock()
		active := sub.active
		sub.mu.Unlock()
		if !active {
			continue
		}
		wg.Add(1)
		go func(s *memorySubscription) {
			defer wg.Done()
			if err := s.handler(ctx, env); err != nil {
				b.logger.Error("event handler failed",
					zap.String("subject", subject),
					zap.String("event_id", env.ID),
					zap.Error(err))
			}
		}(sub)
	}
	wg.Wait()
	return nil
}

// Subscribe registers handler for subject.
func (b *MemoryBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{bus: b, subject: subject, handler: handler, active: true}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)
	return sub, nil
}

// Close deactivates every subscription and marks the bus closed.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, subs := range b.subscriptions {
		for _, s := range subs {
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		}
	}
	b.subscriptions = make(map[string][]*memorySubscription)
}

// IsConnected always reports true for the in-process bus until Close.
func (b *MemoryBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.subscriptions[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.bus.subscriptions[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

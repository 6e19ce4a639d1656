package events

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/events/bus"
	"github.com/kandev/orchmesh/internal/logging"
)

// Handler is a typed subscriber callback for event type T.
type Handler[T any] func(ctx context.Context, event T) error

// Bus is the typed facade over a subject-based bus.Bus, implementing the
// Subscribe[T] / Publish[T] / PublishAsync[T] contract of spec.md §4.1.
// Subscriptions are tracked per concrete handler so that, matching the
// source's event-delegate semantics, the same function subscribed twice
// is invoked twice per publish and one Unsubscribe call removes exactly
// one registration.
type Bus struct {
	backplane bus.Bus
	logger    *logging.Logger

	mu   sync.RWMutex
	subs map[string][]*entry
}

type entry struct {
	ptr    uintptr
	invoke func(ctx context.Context, event any) error
}

// localSubscription lets callers Unsubscribe via the returned handle
// without going through the type-parameterized Unsubscribe function.
type localSubscription struct {
	b       *Bus
	subject string
	ptr     uintptr
	mu      sync.Mutex
	valid   bool
}

func (s *localSubscription) Unsubscribe() error {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return nil
	}
	s.valid = false
	s.mu.Unlock()

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	entries := s.b.subs[s.subject]
	for i, e := range entries {
		if e.ptr == s.ptr {
			s.b.subs[s.subject] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	return nil
}

func (s *localSubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// New wraps backplane (nil selects an in-process MemoryBus) as a typed Bus.
func New(backplane bus.Bus, log *logging.Logger) *Bus {
	if log == nil {
		log = logging.Default()
	}
	if backplane == nil {
		backplane = bus.NewMemoryBus(log)
	}
	return &Bus{
		backplane: backplane,
		logger:    log.WithFields(zap.String("component", "typed_event_bus")),
		subs:      make(map[string][]*entry),
	}
}

func subjectFor[T any]() string {
	var zero T
	return fmt.Sprintf("event.%s", reflect.TypeOf(zero).String())
}

// Subscribe registers handler for event type T. A nil handler fails
// InvalidArgument, per spec.md §4.1.
func Subscribe[T any](b *Bus, handler Handler[T]) (bus.Subscription, error) {
	if handler == nil {
		return nil, apperr.InvalidArgument("handler must not be nil")
	}
	subject := subjectFor[T]()
	ptr := reflect.ValueOf(handler).Pointer()

	invoke := func(ctx context.Context, event any) error {
		typed, ok := event.(T)
		if !ok {
			return fmt.Errorf("event bus: unexpected payload type for subject %s", subject)
		}
		return handler(ctx, typed)
	}

	e := &entry{ptr: ptr, invoke: invoke}
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], e)
	b.mu.Unlock()

	return &localSubscription{b: b, subject: subject, ptr: ptr, valid: true}, nil
}

// Unsubscribe removes exactly one prior registration of handler for T, if
// any. A nil handler fails InvalidArgument.
func Unsubscribe[T any](b *Bus, handler Handler[T]) error {
	if handler == nil {
		return apperr.InvalidArgument("handler must not be nil")
	}
	subject := subjectFor[T]()
	ptr := reflect.ValueOf(handler).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subs[subject]
	for i, e := range entries {
		if e.ptr == ptr {
			b.subs[subject] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Publish delivers event to every handler subscribed for T, sequentially
// in subscription order, on the calling goroutine. A handler that returns
// an error is logged and skipped; remaining handlers still run. A nil
// event (nil pointer or nil interface) fails InvalidArgument; a non-pointer
// value type can never be nil, so the check never fires for it.
func Publish[T any](ctx context.Context, b *Bus, source string, event T) error {
	if v := reflect.ValueOf(any(event)); !v.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil()) {
		return apperr.InvalidArgument("event must not be nil")
	}
	subject := subjectFor[T]()
	handlers := b.snapshot(subject)

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						zap.String("subject", subject), zap.Any("recover", r))
				}
			}()
			if err := h(ctx, event); err != nil {
				b.logger.Error("event handler failed", zap.String("subject", subject), zap.Error(err))
			}
		}()
	}

	b.forward(ctx, subject, source, event)
	return nil
}

// PublishAsync delivers event to every handler subscribed for T
// concurrently, waiting for all of them (successful or not) before
// returning — it must complete even if every handler fails.
func PublishAsync[T any](ctx context.Context, b *Bus, source string, event T) error {
	subject := subjectFor[T]()
	handlers := b.snapshot(subject)

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(handle func(context.Context, any) error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						zap.String("subject", subject), zap.Any("recover", r))
				}
			}()
			if err := handle(ctx, event); err != nil {
				b.logger.Error("event handler failed", zap.String("subject", subject), zap.Error(err))
			}
		}(h)
	}
	wg.Wait()

	b.forward(ctx, subject, source, event)
	return nil
}

func (b *Bus) snapshot(subject string) []func(context.Context, any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]func(context.Context, any) error, 0, len(b.subs[subject]))
	for _, e := range b.subs[subject] {
		out = append(out, e.invoke)
	}
	return out
}

// forward best-effort mirrors the event onto the subject-based backplane
// so an optional NATS backplane can relay it to other processes. Failures
// here are logged, never surfaced to the caller — the bus never throws
// back to producers.
func (b *Bus) forward(ctx context.Context, subject, source string, event any) {
	data, err := toMap(event)
	if err != nil {
		return
	}
	env := bus.NewEnvelope(subject, source, data)
	if err := b.backplane.Publish(ctx, subject, env); err != nil {
		b.logger.Debug("backplane publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Close shuts down the underlying backplane.
func (b *Bus) Close() { b.backplane.Close() }

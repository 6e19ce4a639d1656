package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncWaitsForAllHandlers(t *testing.T) {
	b := NewMemoryBus(nil)
	var mu sync.Mutex
	var got []string

	_, err := b.Subscribe("test.subject", func(ctx context.Context, env *Envelope) error {
		mu.Lock()
		got = append(got, env.ID)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	env := NewEnvelope("test.subject", "unit-test", map[string]any{"k": "v"})
	require.NoError(t, b.PublishSync(context.Background(), "test.subject", env))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{env.ID}, got)
}

func TestPublishDoesNotDeliverToUnrelatedSubject(t *testing.T) {
	b := NewMemoryBus(nil)
	called := false
	_, err := b.Subscribe("other.subject", func(ctx context.Context, env *Envelope) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	env := NewEnvelope("test.subject", "unit-test", nil)
	require.NoError(t, b.PublishSync(context.Background(), "test.subject", env))
	assert.False(t, called)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryBus(nil)
	called := false
	sub, err := b.Subscribe("test.subject", func(ctx context.Context, env *Envelope) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	env := NewEnvelope("test.subject", "unit-test", nil)
	require.NoError(t, b.PublishSync(context.Background(), "test.subject", env))
	assert.False(t, called)
}

func TestCloseDeactivatesSubscriptionsAndRejectsNewOnes(t *testing.T) {
	b := NewMemoryBus(nil)
	sub, err := b.Subscribe("test.subject", func(ctx context.Context, env *Envelope) error { return nil })
	require.NoError(t, err)

	b.Close()
	assert.False(t, b.IsConnected())
	assert.False(t, sub.IsValid())

	_, err = b.Subscribe("test.subject", func(ctx context.Context, env *Envelope) error { return nil })
	assert.Error(t, err)

	err = b.PublishSync(context.Background(), "test.subject", NewEnvelope("test.subject", "x", nil))
	assert.Error(t, err)
}

func TestPublishIsolatesHandlerErrorsAndDoesNotBlock(t *testing.T) {
	b := NewMemoryBus(nil)
	done := make(chan struct{})
	_, err := b.Subscribe("test.subject", func(ctx context.Context, env *Envelope) error {
		return assertAnError
	})
	require.NoError(t, err)
	_, err = b.Subscribe("test.subject", func(ctx context.Context, env *Envelope) error {
		close(done)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "test.subject", NewEnvelope("test.subject", "x", nil)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler never ran")
	}
}

var assertAnError = errTestBoom{}

type errTestBoom struct{}

func (errTestBoom) Error() string { return "boom" }

package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Value string
}

type otherEvent struct {
	Value int
}

func TestPublishDeliversToSubscribedType(t *testing.T) {
	b := New(nil, nil)

	var mu sync.Mutex
	var received []string
	_, err := Subscribe(b, func(ctx context.Context, e testEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e.Value)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), b, "test", testEvent{Value: "a"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a"}, received)
}

func TestPublishDoesNotCrossDeliverBetweenTypes(t *testing.T) {
	b := New(nil, nil)

	called := false
	_, err := Subscribe(b, func(ctx context.Context, e otherEvent) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), b, "test", testEvent{Value: "a"}))
	assert.False(t, called)
}

func TestSameHandlerSubscribedTwiceInvokedTwice(t *testing.T) {
	b := New(nil, nil)

	var count int
	var mu sync.Mutex
	handler := func(ctx context.Context, e testEvent) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	_, err := Subscribe(b, handler)
	require.NoError(t, err)
	_, err = Subscribe(b, handler)
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), b, "test", testEvent{Value: "a"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestUnsubscribeRemovesExactlyOneRegistration(t *testing.T) {
	b := New(nil, nil)

	var count int
	var mu sync.Mutex
	handler := func(ctx context.Context, e testEvent) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	sub1, err := Subscribe(b, handler)
	require.NoError(t, err)
	_, err = Subscribe(b, handler)
	require.NoError(t, err)

	require.NoError(t, sub1.Unsubscribe())
	require.NoError(t, Publish(context.Background(), b, "test", testEvent{Value: "a"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	b := New(nil, nil)

	var second bool
	_, err := Subscribe(b, func(ctx context.Context, e testEvent) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = Subscribe(b, func(ctx context.Context, e testEvent) error {
		second = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), b, "test", testEvent{Value: "a"}))
	assert.True(t, second)
}

func TestPublishSurvivesHandlerPanic(t *testing.T) {
	b := New(nil, nil)

	var ran bool
	_, err := Subscribe(b, func(ctx context.Context, e testEvent) error {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = Subscribe(b, func(ctx context.Context, e testEvent) error {
		ran = true
		return nil
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		require.NoError(t, Publish(context.Background(), b, "test", testEvent{Value: "a"}))
	})
	assert.True(t, ran)
}

func TestSubscribeNilHandlerFails(t *testing.T) {
	b := New(nil, nil)
	_, err := Subscribe[testEvent](b, nil)
	assert.Error(t, err)
}

func TestPublishAsyncWaitsForAllHandlers(t *testing.T) {
	b := New(nil, nil)

	var mu sync.Mutex
	calls := 0
	_, err := Subscribe(b, func(ctx context.Context, e testEvent) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	_, err = Subscribe(b, func(ctx context.Context, e testEvent) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, PublishAsync(context.Background(), b, "test", testEvent{Value: "a"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls, "PublishAsync returned before handlers completed")
}

package bus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crawlgraph/crawlgraph/internal/bus"
)

func TestMemoryBus_FansOutToEverySubscriber(t *testing.T) {
	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan bus.Message, 1)
	second := make(chan bus.Message, 1)
	go b.Run(ctx, "topic-a", "group-1", func(_ context.Context, msg bus.Message) error {
		first <- msg
		return nil
	})
	go b.Run(ctx, "topic-a", "group-2", func(_ context.Context, msg bus.Message) error {
		second <- msg
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Publish(ctx, "topic-a", bus.Message{Key: "k", Value: []byte("v")}))

	for _, ch := range []chan bus.Message{first, second} {
		select {
		case msg := <-ch:
			require.Equal(t, "k", msg.Key)
		case <-time.After(time.Second):
			t.Fatal("expected every subscriber to receive the published message")
		}
	}
}

func TestMemoryBus_FailedHandlerDoesNotBlockSubsequentMessages(t *testing.T) {
	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan bus.Message, 2)
	calls := 0
	go b.Run(ctx, "topic-b", "group-1", func(_ context.Context, msg bus.Message) error {
		calls++
		if calls == 1 {
			return errors.New("boom")
		}
		received <- msg
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Publish(ctx, "topic-b", bus.Message{Key: "first"}))
	require.NoError(t, b.Publish(ctx, "topic-b", bus.Message{Key: "second"}))

	select {
	case msg := <-received:
		require.Equal(t, "second", msg.Key)
	case <-time.After(time.Second):
		t.Fatal("expected the handler to keep processing after a failed message")
	}
}

func TestMemoryBus_RunReturnsWhenContextCancelled(t *testing.T) {
	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx, "topic-c", "group-1", func(_ context.Context, _ bus.Message) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}

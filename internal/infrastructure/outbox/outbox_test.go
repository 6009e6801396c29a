package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

type ctxKey struct{}

func TestBusFanoutToAllSubscribers(t *testing.T) {
	b := NewBus(nil, WithConcurrency(2))
	var wg sync.WaitGroup
	var calls atomic.Int32
	wg.Add(3)
	for range 3 {
		b.Subscribe("order.paid", func(context.Context, domoutbox.Event) error {
			calls.Add(1)
			wg.Done()
			return nil
		})
	}
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), testEvent{"order.paid"}))
	wg.Wait()
	assert.Equal(t, int32(3), calls.Load())
	require.NoError(t, b.Stop(context.Background()))
}

func TestBusHandlerPanicAndErrorDoNotStopDispatch(t *testing.T) {
	b := NewBus(nil)
	delivered := make(chan string, 4)
	b.Subscribe("boom", func(context.Context, domoutbox.Event) error { panic("handler exploded") })
	b.Subscribe("boom", func(context.Context, domoutbox.Event) error { return errors.New("failed") })
	b.Subscribe("next", func(_ context.Context, e domoutbox.Event) error {
		delivered <- e.EventName()
		return nil
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), testEvent{"boom"}))
	require.NoError(t, b.Publish(context.Background(), testEvent{"next"}))

	select {
	case name := <-delivered:
		assert.Equal(t, "next", name)
	case <-time.After(2 * time.Second):
		t.Fatal("event after panicking handler was not delivered")
	}
	require.NoError(t, b.Stop(context.Background()))
}

func TestBusStopDrainsQueueAndRejectsLatePublish(t *testing.T) {
	b := NewBus(nil)
	var calls atomic.Int32
	b.Subscribe("e", func(context.Context, domoutbox.Event) error {
		calls.Add(1)
		return nil
	})
	for range 5 {
		require.NoError(t, b.Publish(context.Background(), testEvent{"e"}))
	}
	b.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
	assert.Equal(t, int32(5), calls.Load())

	assert.ErrorIs(t, b.Publish(context.Background(), testEvent{"e"}), ErrClosed)
}

func TestBusAppliesContextDecoratorAndTimeout(t *testing.T) {
	got := make(chan any, 1)
	b := NewBus(nil,
		WithHandlerTimeout(50*time.Millisecond),
		WithContextDecorator(func(ctx context.Context, e domoutbox.Event) context.Context {
			return context.WithValue(ctx, ctxKey{}, e.EventName())
		}),
	)
	b.Subscribe("e", func(ctx context.Context, _ domoutbox.Event) error {
		<-ctx.Done()
		got <- ctx.Value(ctxKey{})
		return ctx.Err()
	})
	b.Start(context.Background())
	require.NoError(t, b.Publish(context.Background(), testEvent{"e"}))

	select {
	case v := <-got:
		assert.Equal(t, "e", v)
	case <-time.After(2 * time.Second):
		t.Fatal("handler timeout not applied")
	}
	require.NoError(t, b.Stop(context.Background()))
}

func TestBusPublishNilIsNoop(t *testing.T) {
	b := NewBus(nil)
	assert.NoError(t, b.Publish(context.Background(), nil))
}

package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/trace"
)

const componentOutbox = "outbox"

var ErrClosed = errors.New("outbox: bus stopped")

// ContextDecorator prepares the handler context for one delivery, e.g. an event-scoped logger.
type ContextDecorator func(ctx context.Context, e domoutbox.Event) context.Context

type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

func WithContextDecorator(fn ContextDecorator) Option {
	return func(b *Bus) { b.decorate = fn }
}

// delivery keeps the publisher's span so handlers join the settlement trace.
type delivery struct {
	event domoutbox.Event
	span  trace.SpanContext
}

// Bus is an in-memory, non-durable fanout for events published after commit.
// Handlers run with a bounded concurrency and a per-handler timeout; their errors are logged, never retried.
type Bus struct {
	mu             sync.RWMutex
	subs           map[string][]domoutbox.Handler
	queue          chan delivery
	queueSize      int
	concurrency    int
	handlerTimeout time.Duration
	decorate       ContextDecorator

	startOnce sync.Once
	stopOnce  sync.Once
	closed    chan struct{}
	done      chan struct{}
	log       observability.Logger
}

func NewBus(tel observability.Observability, opts ...Option) *Bus {
	b := &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		queueSize:      1024,
		concurrency:    8,
		handlerTimeout: 30 * time.Second,
		closed:         make(chan struct{}),
		done:           make(chan struct{}),
		log:            observability.LoggerOf(tel, componentOutbox),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = make(chan delivery, b.queueSize)
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.dispatchLoop(context.WithoutCancel(ctx))
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop rejects new events, drains the queue and waits for in-flight handlers or ctx expiry.
func (b *Bus) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() {
		close(b.closed)
	})
	select {
	case <-b.done:
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
		return nil
	case <-ctx.Done():
		logctx.FromOr(ctx, b.log).Warn("event_bus_stop_timeout", observability.F("pending", len(b.queue)))
		return ctx.Err()
	}
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))

	select {
	case <-b.closed:
		logger.Warn("event_rejected_bus_stopped")
		return ErrClosed
	default:
	}

	d := delivery{event: e, span: trace.SpanContextFromContext(ctx)}
	select {
	case b.queue <- d:
		logger.Debug("event_enqueued")
		return nil
	case <-b.closed:
		logger.Warn("event_rejected_bus_stopped")
		return ErrClosed
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case d := <-b.queue:
			b.fanout(ctx, d)
		case <-b.closed:
			for {
				select {
				case d := <-b.queue:
					b.fanout(ctx, d)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) fanout(ctx context.Context, d delivery) {
	name := d.event.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	if d.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, d.span)
	}
	ctx = logctx.With(ctx, logger)
	if b.decorate != nil {
		ctx = b.decorate(ctx, d.event)
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logctx.FromOr(ctx, logger).Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
			defer cancel()
			if err := h(hctx, d.event); err != nil {
				logctx.FromOr(ctx, logger).Warn("event_handler_error", observability.F("error", err.Error()))
			}
		}()
	}

	wg.Wait()
	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}

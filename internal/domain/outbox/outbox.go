package outbox

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Handler processes a published event. Returned errors are logged by the bus, never retried.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events after the state they describe has been committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

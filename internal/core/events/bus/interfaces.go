package bus

import "time"

// EventBus is a synchronous in-process pub/sub bus.
//
// Handlers subscribe by event type and are called in the publisher's goroutine
// in subscription order. Handler errors are joined and returned from Publish.
// All methods are safe for concurrent use; handlers may subscribe, cancel or
// publish from inside a delivery.
type EventBus interface {
	Publish(event Event) error
	// PublishBatch publishes events in order and joins every handler error.
	PublishBatch(events ...Event) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels sub. A nil subscription is ignored.
	Unsubscribe(sub Subscription) error

	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	Metrics() Metrics
}

// Event is an immutable message. Type is the routing key.
type Event struct {
	Type   string
	Source string
	Time   time.Time
	Data   any
}

type EventHandler func(event Event) error

type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Repeated calls are safe.
	Cancel() error
}

// Observer sees every publish. Implementations must return quickly.
type Observer interface {
	OnDelivered(event Event, handlers int, err error, elapsed time.Duration)
}

type Metrics struct {
	Published   uint64
	Delivered   uint64
	Errors      uint64
	Subscribers uint64
}

package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type subscription struct {
	id        string
	eventType string
	handler   EventHandler

	mu     sync.Mutex
	active bool
	cancel func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventType() string { return s.eventType }

func (s *subscription) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *subscription) Cancel() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

type inMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]*subscription
	observers []Observer
	metrics   Metrics
	now       func() time.Time
}

// New creates an empty bus.
func New() EventBus {
	return &inMemoryBus{
		handlers: make(map[string][]*subscription),
		now:      time.Now,
	}
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, source string, data any) Event {
	return Event{Type: eventType, Source: source, Time: time.Now(), Data: data}
}

func (b *inMemoryBus) Publish(event Event) error {
	if event.Time.IsZero() {
		event.Time = b.now()
	}
	start := b.now()

	b.mu.RLock()
	subs := append([]*subscription(nil), b.handlers[event.Type]...)
	observers := append([]Observer(nil), b.observers...)
	b.mu.RUnlock()

	var all error
	delivered := 0
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		delivered++
		if err := s.handler(event); err != nil {
			all = errors.Join(all, err)
		}
	}

	b.mu.Lock()
	b.metrics.Published++
	b.metrics.Delivered += uint64(delivered)
	if all != nil {
		b.metrics.Errors++
	}
	b.mu.Unlock()

	if len(observers) > 0 {
		elapsed := b.now().Sub(start)
		for _, obs := range observers {
			obs.OnDelivered(event, delivered, all, elapsed)
		}
	}
	return all
}

func (b *inMemoryBus) PublishBatch(events ...Event) error {
	var all error
	for _, e := range events {
		if err := b.Publish(e); err != nil {
			all = errors.Join(all, err)
		}
	}
	return all
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	if eventType == "" {
		return nil, ErrEmptyEventType
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	s := &subscription{id: uuid.NewString(), eventType: eventType, handler: handler, active: true}
	s.cancel = func() { b.remove(s) }

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], s)
	b.metrics.Subscribers++
	b.mu.Unlock()
	return s, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) AddObserver(obs Observer) {
	b.mu.Lock()
	b.observers = append(b.observers, obs)
	b.mu.Unlock()
}

func (b *inMemoryBus) RemoveObserver(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			return
		}
	}
}

func (b *inMemoryBus) Metrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *inMemoryBus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[s.eventType]
	for i, other := range subs {
		if other == s {
			// copy so in-flight deliveries keep their snapshot
			next := make([]*subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			b.handlers[s.eventType] = append(next, subs[i+1:]...)
			b.metrics.Subscribers--
			break
		}
	}
	if len(b.handlers[s.eventType]) == 0 {
		delete(b.handlers, s.eventType)
	}
}

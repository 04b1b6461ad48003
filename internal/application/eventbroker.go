package application

import (
	"log/slog"
	"sync"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// subscriberBuffer is how many events a subscriber may lag behind before
// further events are dropped for it.
const subscriberBuffer = 32

// Compile-time interface satisfaction check.
var _ driven.EventPublisher = (*EventBroker)(nil)

// EventBroker fans job events out to per-user subscribers. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type EventBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int64]map[int]chan model.JobEvent
}

// NewEventBroker creates an EventBroker with no subscribers.
func NewEventBroker() *EventBroker {
	return &EventBroker{subs: make(map[int64]map[int]chan model.JobEvent)}
}

// Subscribe registers a listener for the user's events. The returned cancel
// function unregisters it and closes the channel; it is safe to call twice.
func (b *EventBroker) Subscribe(userID int64) (<-chan model.JobEvent, func()) {
	ch := make(chan model.JobEvent, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan model.JobEvent)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers event to every subscriber of event.UserID.
func (b *EventBroker) Publish(event model.JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs[event.UserID] {
		select {
		case ch <- event:
		default:
			slog.Warn("dropping job event for slow subscriber",
				"user_id", event.UserID,
				"subscriber", id,
				"job_id", event.JobID,
			)
		}
	}
}

// Subscribers returns the number of active subscriptions for the user.
func (b *EventBroker) Subscribers(userID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

package fanout

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sonet/timeline/pkg/metrics"
	"github.com/sonet/timeline/pkg/types"
)

// EventType identifies what happened to a viewer's timeline.
type EventType string

const (
	EventTimelineAppended    EventType = "timeline.appended"
	EventTimelineRepositions EventType = "timeline.repositioned"
	EventTimelineRemoved     EventType = "timeline.removed"
	EventTimelineInvalidated EventType = "timeline.invalidated"
)

// Event is one timeline change delivered to live subscribers.
type Event struct {
	ID        string               `json:"id"`
	Type      EventType            `json:"type"`
	ViewerID  string               `json:"viewer_id"`
	NoteID    string               `json:"note_id,omitempty"`
	AuthorID  string               `json:"author_id,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Entry     *types.TimelineEntry `json:"entry,omitempty"`
}

// Subscriber receives the events addressed to one viewer.
type Subscriber chan *Event

type subscription struct {
	viewerID string
	ch       Subscriber
}

// Broker fans timeline events out to per-viewer subscribers. Delivery
// is best effort: a subscriber whose buffer is full misses the event
// rather than stalling the distribution loop.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]*subscription
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates an event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]*subscription),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop shuts down the broker.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe registers a channel receiving events for the given viewer.
func (b *Broker) Subscribe(viewerID string) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(Subscriber, 32)
	b.subscribers[ch] = &subscription{viewerID: viewerID, ch: ch}
	metrics.LiveSubscribers.Set(float64(len(b.subscribers)))
	return ch
}

// Unsubscribe removes and closes the subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
	metrics.LiveSubscribers.Set(float64(len(b.subscribers)))
}

// Publish enqueues an event for distribution.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
		metrics.FanoutDropped.Inc()
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.viewerID != event.ViewerID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full, skip.
		}
	}
}

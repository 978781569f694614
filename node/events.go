package node

import (
	"sync"
	"time"

	"github.com/satwire/satwire/p2p"
)

// EventType identifies the kind of event published on the bus.
type EventType string

// Channel lifecycle events.
const (
	EventPeerConnected    EventType = "p2p.peerConnected"
	EventHandshakeFailed  EventType = "p2p.handshakeFailed"
	EventPeerDisconnected EventType = "p2p.peerDisconnected"
)

// Event describes a change in the state of one channel.
type Event struct {
	Type      EventType
	Authority p2p.Authority
	Nonce     uint64
	Inbound   bool
	Version   uint32 // negotiated; zero before the handshake completes
	UserAgent string
	Err       error // handshake failure or stop reason
	Timestamp time.Time
}

func channelEvent(typ EventType, ch *p2p.Channel, err error) Event {
	return Event{
		Type:      typ,
		Authority: ch.Authority(),
		Nonce:     ch.Nonce(),
		Inbound:   ch.Inbound(),
		Version:   ch.Version(),
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Subscription receives the events of the types it was created for.
type Subscription struct {
	id    uint64
	types map[EventType]struct{}
	ch    chan Event
	bus   *EventBus
}

// Chan returns the delivery channel. It is closed by Unsubscribe or when
// the bus closes.
func (s *Subscription) Chan() <-chan Event {
	return s.ch
}

// Unsubscribe removes the subscription and closes its channel. It is safe
// to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.unsubscribe(s)
	}
}

// EventBus fans channel events out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
}

// NewEventBus creates a bus whose subscriptions buffer bufferSize events.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &EventBus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a subscription for the given event types. An empty list
// subscribes to every type.
func (eb *EventBus) Subscribe(types ...EventType) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		sub := &Subscription{ch: make(chan Event)}
		close(sub.ch)
		return sub
	}

	eb.nextID++
	sub := &Subscription{
		id:  eb.nextID,
		ch:  make(chan Event, eb.bufferSize),
		bus: eb,
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	eb.subs[sub.id] = sub
	return sub
}

func (eb *EventBus) unsubscribe(sub *Subscription) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, ok := eb.subs[sub.id]; !ok {
		return
	}
	delete(eb.subs, sub.id)
	close(sub.ch)
}

// Publish delivers ev to every matching subscriber with buffer space.
func (eb *EventBus) Publish(ev Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subs {
		if sub.types != nil {
			if _, ok := sub.types[ev.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of subscriptions that receive typ.
func (eb *EventBus) SubscriberCount(typ EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	count := 0
	for _, sub := range eb.subs {
		if sub.types == nil {
			count++
			continue
		}
		if _, ok := sub.types[typ]; ok {
			count++
		}
	}
	return count
}

// Close closes every subscription. Later subscriptions are born closed and
// later events are discarded.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for id, sub := range eb.subs {
		close(sub.ch)
		delete(eb.subs, id)
	}
}

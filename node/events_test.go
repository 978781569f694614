package node

import (
	"errors"
	"testing"
)

func TestEventBusPublish(t *testing.T) {
	bus := NewEventBus(4)
	connected := bus.Subscribe(EventPeerConnected)
	all := bus.Subscribe()

	if n := bus.SubscriberCount(EventPeerConnected); n != 2 {
		t.Fatalf("SubscriberCount(connected) = %d, want 2", n)
	}
	if n := bus.SubscriberCount(EventPeerDisconnected); n != 1 {
		t.Fatalf("SubscriberCount(disconnected) = %d, want 1", n)
	}

	bus.Publish(Event{Type: EventPeerConnected, Nonce: 1})
	reason := errors.New("gone")
	bus.Publish(Event{Type: EventPeerDisconnected, Nonce: 1, Err: reason})

	ev := <-connected.Chan()
	if ev.Type != EventPeerConnected || ev.Nonce != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
	select {
	case ev := <-connected.Chan():
		t.Fatalf("filtered subscription got %+v", ev)
	default:
	}

	if ev := <-all.Chan(); ev.Type != EventPeerConnected {
		t.Fatalf("first event type = %s", ev.Type)
	}
	if ev := <-all.Chan(); ev.Type != EventPeerDisconnected || ev.Err != reason {
		t.Fatalf("second event = %+v", ev)
	}
}

func TestEventBusFullBufferDrops(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe(EventHandshakeFailed)

	bus.Publish(Event{Type: EventHandshakeFailed, Nonce: 1})
	bus.Publish(Event{Type: EventHandshakeFailed, Nonce: 2})

	if ev := <-sub.Chan(); ev.Nonce != 1 {
		t.Fatalf("kept event nonce = %d, want 1", ev.Nonce)
	}
	select {
	case ev := <-sub.Chan():
		t.Fatalf("overflow event delivered: %+v", ev)
	default:
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe(EventPeerConnected)
	sub.Unsubscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.Chan(); ok {
		t.Fatal("channel open after Unsubscribe")
	}
	if n := bus.SubscriberCount(EventPeerConnected); n != 0 {
		t.Fatalf("SubscriberCount = %d after Unsubscribe", n)
	}
	bus.Publish(Event{Type: EventPeerConnected})
}

func TestEventBusClose(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe()
	bus.Close()
	bus.Close()

	if _, ok := <-sub.Chan(); ok {
		t.Fatal("subscription open after Close")
	}
	late := bus.Subscribe(EventPeerConnected)
	if _, ok := <-late.Chan(); ok {
		t.Fatal("subscription after Close is open")
	}
	late.Unsubscribe()
	sub.Unsubscribe()
	bus.Publish(Event{Type: EventPeerConnected})
}

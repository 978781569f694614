package p2p

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/satwire/satwire/message"
)

// --- Channel tests ---

func TestChannel_SendWritesFrame(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())
	if err := ch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sent := make(chan error, 1)
	ch.Send(message.NewPing(7), func(err error) { sent <- err })

	msg := readPeer(t, peer)
	if msg.Command != "ping" {
		t.Fatalf("command: got %q, want ping", msg.Command)
	}
	var ping message.Ping
	if err := ping.FromData(msg.Payload); err != nil || ping.Nonce != 7 {
		t.Fatalf("payload: nonce %d, err %v", ping.Nonce, err)
	}
	if err := recvErr(t, sent); err != nil {
		t.Fatalf("send handler: %v", err)
	}
}

func TestChannel_SubscribeDelivers(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())

	got := make(chan message.Message, 1)
	ch.Subscribe("ping", func(err error, m message.Message) {
		if err == nil {
			got <- m
		}
	})
	ch.Start()
	sendPeer(t, peer, message.NewPing(9))

	select {
	case m := <-got:
		ping, ok := m.(*message.Ping)
		if !ok || ping.Nonce != 9 {
			t.Fatalf("got %#v", m)
		}
	case <-time.After(testTimeout):
		t.Fatal("message not delivered")
	}
}

func TestChannel_FanOutCopies(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())

	got := make(chan message.Message, 4)
	for i := 0; i < 2; i++ {
		ch.Subscribe("ping", func(err error, m message.Message) {
			if err == nil {
				got <- m
			}
		})
	}
	ch.Start()
	sendPeer(t, peer, message.NewPing(3))

	first, second := <-got, <-got
	if first == second {
		t.Fatal("subscribers share one decoded message")
	}
	expectNone(t, got, "extra delivery")
}

func TestChannel_StopNotifiesOnce(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())
	drainPeer(peer)

	var msgCalls, stopCalls atomic.Int32
	reasons := make(chan error, 4)
	ch.Subscribe("ping", func(err error, m message.Message) {
		if m != nil {
			t.Errorf("unexpected message %v", m)
		}
		msgCalls.Add(1)
		reasons <- err
	})
	ch.SubscribeStop(func(err error) {
		stopCalls.Add(1)
		reasons <- err
	})
	ch.Start()

	stopErr := errors.New("test stop")
	ch.Stop(stopErr)
	ch.Stop(errors.New("second stop"))

	for i := 0; i < 2; i++ {
		if err := recvErr(t, reasons); err != stopErr {
			t.Fatalf("reason: got %v, want %v", err, stopErr)
		}
	}
	expectNone(t, reasons, "second notification")
	if msgCalls.Load() != 1 || stopCalls.Load() != 1 {
		t.Fatalf("calls: message %d, stop %d", msgCalls.Load(), stopCalls.Load())
	}
	if !ch.Stopped() || ch.Reason() != stopErr {
		t.Fatalf("state: stopped %v, reason %v", ch.Stopped(), ch.Reason())
	}
}

func TestChannel_StopBeforeStart(t *testing.T) {
	ch, _ := pipeChannel(t, testSettings())

	var reason error
	ch.SubscribeStop(func(err error) { reason = err })
	ch.Stop(nil)

	if !errors.Is(reason, ErrChannelStopped) {
		t.Fatalf("reason: got %v, want ErrChannelStopped", reason)
	}
	if err := ch.Start(); !errors.Is(err, ErrAlreadyStopped) {
		t.Fatalf("Start after Stop: got %v", err)
	}
}

func TestChannel_AfterStop(t *testing.T) {
	ch, _ := pipeChannel(t, testSettings())
	ch.Stop(ErrProtocolViolation)

	var sendErr, subErr, stopErr error
	ch.Send(message.NewVerAck(), func(err error) { sendErr = err })
	ch.Subscribe("verack", func(err error, _ message.Message) { subErr = err })
	ch.SubscribeStop(func(err error) { stopErr = err })

	if !errors.Is(sendErr, ErrChannelStopped) {
		t.Errorf("send: got %v", sendErr)
	}
	if !errors.Is(subErr, ErrChannelStopped) {
		t.Errorf("subscribe: got %v", subErr)
	}
	if !errors.Is(stopErr, ErrProtocolViolation) {
		t.Errorf("subscribe stop: got %v", stopErr)
	}
}

func TestChannel_PendingSendsFailOnStop(t *testing.T) {
	ch, _ := pipeChannel(t, testSettings())

	// Not started, so the send stays queued.
	sent := make(chan error, 1)
	ch.Send(message.NewVerAck(), func(err error) { sent <- err })
	ch.Stop(nil)
	if err := recvErr(t, sent); !errors.Is(err, ErrChannelStopped) {
		t.Fatalf("got %v", err)
	}
}

func TestChannel_RemoteClose(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())
	reasons := make(chan error, 1)
	ch.SubscribeStop(func(err error) { reasons <- err })
	ch.Start()

	peer.Close()
	if err := recvErr(t, reasons); !errors.Is(err, ErrChannelStopped) {
		t.Fatalf("reason: got %v", err)
	}
}

func TestChannel_MalformedPayload(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())
	reasons := make(chan error, 1)
	ch.SubscribeStop(func(err error) { reasons <- err })
	ch.Start()

	writePeer(t, peer, Msg{Command: "ping", Payload: []byte{1, 2}})
	if err := recvErr(t, reasons); !errors.Is(err, ErrBadMessage) {
		t.Fatalf("reason: got %v", err)
	}
}

func TestChannel_MalformedPayloadReachesNoSubscriber(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())

	type delivery struct {
		err error
		msg message.Message
	}
	got := make(chan delivery, 4)
	for i := 0; i < 2; i++ {
		ch.Subscribe("ping", func(err error, m message.Message) {
			got <- delivery{err, m}
		})
	}
	ch.Start()

	writePeer(t, peer, Msg{Command: "ping", Payload: []byte{1, 2, 3}})
	for i := 0; i < 2; i++ {
		select {
		case d := <-got:
			if d.err == nil || d.msg != nil {
				t.Fatalf("subscriber %d: got (%v, %v), want stop reason and no message", i, d.err, d.msg)
			}
			if !errors.Is(d.err, ErrBadMessage) {
				t.Fatalf("subscriber %d: reason %v, want ErrBadMessage", i, d.err)
			}
		case <-time.After(testTimeout):
			t.Fatalf("subscriber %d not notified", i)
		}
	}
	expectNone(t, got, "extra delivery")
}

func TestChannel_UnknownCommandDropped(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())
	got := make(chan message.Message, 1)
	ch.Subscribe("pong", func(err error, m message.Message) {
		if err == nil {
			got <- m
		}
	})
	ch.Start()

	writePeer(t, peer, Msg{Command: "inv", Payload: []byte{0}})
	sendPeer(t, peer, message.NewPong(5))

	select {
	case <-got:
	case <-time.After(testTimeout):
		t.Fatal("message after unknown command not delivered")
	}
	if ch.Stopped() {
		t.Fatalf("channel stopped: %v", ch.Reason())
	}
}

func TestChannel_WrongNetwork(t *testing.T) {
	ch, peer := pipeChannel(t, testSettings())
	reasons := make(chan error, 1)
	ch.SubscribeStop(func(err error) { reasons <- err })
	ch.Start()

	testnet := NewFrameTransport(peer.conn, wire.TestNet3)
	writePeer(t, testnet, Msg{Command: "verack"})
	if err := recvErr(t, reasons); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("reason: got %v", err)
	}
}

func TestChannel_InactivityTimeout(t *testing.T) {
	clock := new(mclock.Simulated)
	settings := testSettings()
	settings.Clock = clock
	settings.ChannelInactivity = 10 * time.Second

	ch, peer := pipeChannel(t, settings)
	got := make(chan message.Message, 1)
	ch.Subscribe("ping", func(err error, m message.Message) {
		if err == nil {
			got <- m
		}
	})
	ch.Start()

	clock.Run(9 * time.Second)
	sendPeer(t, peer, message.NewPing(1))
	select {
	case <-got:
	case <-time.After(testTimeout):
		t.Fatal("ping not delivered")
	}

	// The ping re-armed the timer at 9s, so it expires at 19s.
	clock.Run(9 * time.Second)
	if ch.Stopped() {
		t.Fatalf("stopped early: %v", ch.Reason())
	}
	clock.Run(time.Second)
	if !errors.Is(ch.Reason(), ErrChannelTimeout) {
		t.Fatalf("reason: got %v, want ErrChannelTimeout", ch.Reason())
	}
}

func TestChannel_Metadata(t *testing.T) {
	settings := testSettings()
	ch, _ := pipeChannel(t, settings)

	if ch.Nonce() == 0 {
		t.Error("nonce is zero")
	}
	if ch.Inbound() {
		t.Error("pipe channel should be outbound")
	}
	if ch.Version() != settings.ProtocolVersion {
		t.Errorf("version: got %d, want %d", ch.Version(), settings.ProtocolVersion)
	}
	ch.SetVersion(70001)
	if ch.Version() != 70001 {
		t.Errorf("version after set: got %d", ch.Version())
	}
	if ch.Settings() != settings {
		t.Error("settings pointer not shared")
	}
}

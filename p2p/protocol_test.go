package p2p

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satwire/satwire/message"
)

// --- ProtocolBase tests ---

func TestProtocolBase_TwoSubscribersOneMessage(t *testing.T) {
	pool := newTestPool(t)
	ch, peer := pipeChannel(t, testSettings())

	p1 := NewProtocolBase(pool, ch, "first")
	p2 := NewProtocolBase(pool, ch, "second")
	got1 := make(chan uint64, 2)
	got2 := make(chan uint64, 2)
	Subscribe(p1, func(err error, m *message.Ping) {
		if err == nil {
			got1 <- m.Nonce
		}
	})
	Subscribe(p2, func(err error, m *message.Ping) {
		if err == nil {
			got2 <- m.Nonce
		}
	})
	ch.Start()
	sendPeer(t, peer, message.NewPing(77))

	for _, got := range []chan uint64{got1, got2} {
		select {
		case n := <-got:
			if n != 77 {
				t.Fatalf("nonce: got %d, want 77", n)
			}
		case <-timeoutC():
			t.Fatal("subscriber not invoked")
		}
	}
	expectNone(t, got1, "second delivery to first protocol")
	expectNone(t, got2, "second delivery to second protocol")
}

func TestProtocolBase_StopFanOut(t *testing.T) {
	pool := newTestPool(t)
	ch, peer := pipeChannel(t, testSettings())
	drainPeer(peer)

	reason := errors.New("misbehaving")
	var calls atomic.Int32
	var wg sync.WaitGroup
	wg.Add(4)
	for _, name := range []string{"a", "b"} {
		p := NewProtocolBase(pool, ch, name)
		p.SubscribeStop(func(err error) {
			if err != reason {
				t.Errorf("%s stop: got %v", name, err)
			}
			calls.Add(1)
			wg.Done()
		})
		Subscribe(p, func(err error, m *message.VerAck) {
			if err != reason || m != nil {
				t.Errorf("%s subscriber: got (%v, %v)", name, err, m)
			}
			calls.Add(1)
			wg.Done()
		})
	}
	ch.Start()
	NewProtocolBase(pool, ch, "stopper").Stop(reason)

	waitGroup(t, &wg)
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 4 {
		t.Fatalf("stop notifications: got %d, want 4", got)
	}
}

func TestProtocolBase_OrderedCalls(t *testing.T) {
	pool := newTestPool(t)
	ch, _ := pipeChannel(t, testSettings())
	p := NewProtocolBase(pool, ch, "ordered")

	const n = 500
	var (
		mu        sync.Mutex
		scheduled []int
		executed  []int
		wg        sync.WaitGroup
	)
	wg.Add(n)
	for g := 0; g < 5; g++ {
		go func(g int) {
			for i := 0; i < n/5; i++ {
				id := g*1000 + i
				mu.Lock()
				scheduled = append(scheduled, id)
				if i%2 == 0 {
					p.Call(func() { executed = append(executed, id); wg.Done() })
				} else {
					p.Bind(func() { executed = append(executed, id); wg.Done() })()
				}
				mu.Unlock()
			}
		}(g)
	}
	waitGroup(t, &wg)
	for i := range scheduled {
		if executed[i] != scheduled[i] {
			t.Fatalf("position %d: executed %d, scheduled %d", i, executed[i], scheduled[i])
		}
	}
}

func TestProtocolBase_SendCompletesOnDispatcher(t *testing.T) {
	pool := newTestPool(t)
	ch, peer := pipeChannel(t, testSettings())
	p := NewProtocolBase(pool, ch, "sender")
	ch.Start()

	sent := make(chan error, 1)
	p.Send(message.NewGetAddress(), func(err error) { sent <- err })
	if msg := readPeer(t, peer); msg.Command != "getaddr" || len(msg.Payload) != 0 {
		t.Fatalf("frame: %q %x", msg.Command, msg.Payload)
	}
	if err := recvErr(t, sent); err != nil {
		t.Fatalf("send: %v", err)
	}

	p.Stop(nil)
	p.Send(message.NewGetAddress(), func(err error) { sent <- err })
	if err := recvErr(t, sent); !errors.Is(err, ErrChannelStopped) {
		t.Fatalf("send after stop: got %v", err)
	}

	stopped := make(chan error, 1)
	Subscribe(p, func(err error, _ *message.Ping) { stopped <- err })
	if err := recvErr(t, stopped); !errors.Is(err, ErrChannelStopped) {
		t.Fatalf("subscribe after stop: got %v", err)
	}
}

func TestProtocolBase_Accessors(t *testing.T) {
	pool := newTestPool(t)
	settings := testSettings()
	ch, _ := pipeChannel(t, settings)
	p := NewProtocolBase(pool, ch, "accessors")

	if p.Name() != "accessors" {
		t.Errorf("name: got %q", p.Name())
	}
	if p.Nonce() != ch.Nonce() || p.Authority() != ch.Authority() {
		t.Error("nonce or authority differ from channel")
	}
	if p.Pool() != pool || p.Settings() != settings {
		t.Error("pool or settings not shared")
	}
	p.SetVersion(70002)
	if p.Version() != 70002 || ch.Version() != 70002 {
		t.Errorf("version: got %d", p.Version())
	}
	if p.Stopped() {
		t.Error("fresh protocol reports stopped")
	}
}

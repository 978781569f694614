package p2p

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/satwire/satwire/log"
	"github.com/satwire/satwire/message"
)

const testTimeout = 5 * time.Second

func testSettings() *Settings {
	s := DefaultSettings()
	s.Threads = 4
	s.Logger = log.Discard()
	return s
}

func newTestPool(t *testing.T) *Threadpool {
	pool := NewThreadpool(4)
	t.Cleanup(func() {
		pool.Shutdown()
		pool.Join()
	})
	return pool
}

// pipeChannel returns an unstarted channel on one end of an in-memory
// connection and a raw frame transport playing the peer on the other.
func pipeChannel(t *testing.T, settings *Settings) (*Channel, *FrameTransport) {
	c1, c2 := net.Pipe()
	ch := NewChannel(c1, false, settings)
	peer := NewFrameTransport(c2, settings.Network)
	t.Cleanup(func() {
		ch.Stop(nil)
		peer.Close()
	})
	return ch, peer
}

func readPeer(t *testing.T, peer *FrameTransport) Msg {
	t.Helper()
	type result struct {
		msg Msg
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := peer.ReadMsg()
		done <- result{msg, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("peer read: %v", r.err)
		}
		return r.msg
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for frame")
	}
	return Msg{}
}

func writePeer(t *testing.T, peer *FrameTransport, msg Msg) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- peer.WriteMsg(msg) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("peer write: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("timeout writing frame")
	}
}

func sendPeer(t *testing.T, peer *FrameTransport, m message.Message) {
	t.Helper()
	writePeer(t, peer, NewMsg(m))
}

// drainPeer discards frames until the connection closes.
func drainPeer(peer *FrameTransport) {
	go func() {
		for {
			if _, err := peer.ReadMsg(); err != nil {
				return
			}
		}
	}()
}

func recvErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for handler")
	}
	return nil
}

// expectNone fails if anything arrives on ch within a short grace period.
func expectNone[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for handlers")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func timeoutC() <-chan time.Time { return time.After(testTimeout) }

package p2p

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/satwire/satwire/log"
	"github.com/satwire/satwire/metrics"
)

type acceptorState int

const (
	acceptorIdle acceptorState = iota
	acceptorListening
	acceptorFailed
	acceptorCanceled
)

// Acceptor listens on a port and turns inbound connections into Channels.
// Handlers run on the threadpool.
type Acceptor struct {
	settings *Settings
	pool     *Threadpool
	log      *log.Logger

	mu      sync.Mutex
	state   acceptorState
	ln      net.Listener
	pending map[*acceptOp]struct{}
}

// acceptOp is one outstanding Accept call.
type acceptOp struct {
	done    atomic.Bool
	handler func(error, *Channel)
}

// NewAcceptor returns an idle acceptor.
func NewAcceptor(pool *Threadpool, settings *Settings) *Acceptor {
	return &Acceptor{
		settings: settings,
		pool:     pool,
		log:      settings.logger().With("component", "acceptor"),
		pending:  make(map[*acceptOp]struct{}),
	}
}

// Listen binds port on all interfaces and reports the result to handler.
// Port zero binds an ephemeral port; see Addr. A failed Listen leaves the
// acceptor unusable.
func (a *Acceptor) Listen(port uint16, handler func(error)) {
	if !a.settings.Inbound {
		a.pool.Post(func() { handler(ErrOperationNotSupported) })
		return
	}

	a.mu.Lock()
	if a.state != acceptorIdle {
		a.mu.Unlock()
		a.pool.Post(func() { handler(ErrOperationNotSupported) })
		return
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort("", strconv.Itoa(int(port))))
	if err != nil {
		a.state = acceptorFailed
		a.mu.Unlock()
		a.log.Warn("listen failed", "port", port, "err", err)
		err = fmt.Errorf("%w: %w", ErrBindFailed, err)
		a.pool.Post(func() { handler(err) })
		return
	}
	a.ln = ln
	a.state = acceptorListening
	a.mu.Unlock()

	a.log.Debug("listening", "addr", ln.Addr().String())
	a.pool.Post(func() { handler(nil) })
}

// Addr returns the bound address, or nil when not listening.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Accept waits for the next inbound connection. handler fires exactly once
// with a new, unstarted Channel or an error. Accept may be called again
// before earlier calls complete.
func (a *Acceptor) Accept(handler func(error, *Channel)) {
	a.mu.Lock()
	switch a.state {
	case acceptorListening:
	case acceptorCanceled:
		a.mu.Unlock()
		a.pool.Post(func() { handler(ErrCanceled, nil) })
		return
	default:
		a.mu.Unlock()
		a.pool.Post(func() { handler(ErrOperationNotSupported, nil) })
		return
	}
	op := &acceptOp{handler: handler}
	a.pending[op] = struct{}{}
	ln := a.ln
	a.mu.Unlock()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			a.complete(op, fmt.Errorf("%w: %w", ErrAcceptFailed, err), nil)
			return
		}
		if !a.complete(op, nil, conn) {
			conn.Close()
		}
	}()
}

// Cancel closes the listener. Every outstanding Accept completes with
// ErrCanceled; a connection accepted concurrently is closed instead.
func (a *Acceptor) Cancel() {
	a.mu.Lock()
	if a.state == acceptorCanceled {
		a.mu.Unlock()
		return
	}
	a.state = acceptorCanceled
	ln := a.ln
	ops := make([]*acceptOp, 0, len(a.pending))
	for op := range a.pending {
		ops = append(ops, op)
	}
	a.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, op := range ops {
		a.complete(op, ErrCanceled, nil)
	}
}

// complete fires op's handler if nothing else did first.
func (a *Acceptor) complete(op *acceptOp, err error, conn net.Conn) bool {
	if !op.done.CompareAndSwap(false, true) {
		return false
	}
	a.mu.Lock()
	delete(a.pending, op)
	a.mu.Unlock()

	var ch *Channel
	if err != nil {
		metrics.AcceptFailure.Inc()
		a.log.Debug("accept failed", "err", err)
	} else {
		metrics.AcceptSuccess.Inc()
		ch = NewChannel(conn, true, a.settings)
		a.log.Debug("accepted", "peer", ch.Authority().String())
	}
	a.pool.Post(func() { op.handler(err, ch) })
	return true
}

package p2p

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/go-socks/socks"
	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/satwire/satwire/log"
	"github.com/satwire/satwire/metrics"
)

// Resolver turns a host name into candidate addresses. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer opens a single TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ConnectorOption customizes a Connector.
type ConnectorOption func(*Connector)

// WithResolver replaces the system resolver.
func WithResolver(r Resolver) ConnectorOption {
	return func(c *Connector) { c.resolver = r }
}

// WithDialer replaces the TCP (or SOCKS5) dialer.
func WithDialer(d Dialer) ConnectorOption {
	return func(c *Connector) { c.dialer = d }
}

// Connector establishes outbound connections. Each Connect resolves its
// host, dials the candidates strictly one after another and races the whole
// chain against Settings.ConnectTimeout. Handlers run on the threadpool.
type Connector struct {
	settings *Settings
	pool     *Threadpool
	clock    mclock.Clock
	resolver Resolver
	dialer   Dialer
	log      *log.Logger

	mu       sync.Mutex
	canceled bool
	attempts map[*connectAttempt]struct{}
}

// NewConnector returns a connector using the system resolver, or the SOCKS5
// proxy from settings when one is configured.
func NewConnector(pool *Threadpool, settings *Settings, opts ...ConnectorOption) *Connector {
	c := &Connector{
		settings: settings,
		pool:     pool,
		clock:    settings.clock(),
		resolver: net.DefaultResolver,
		dialer:   &net.Dialer{},
		log:      settings.logger().With("component", "connector"),
		attempts: make(map[*connectAttempt]struct{}),
	}
	if settings.Proxy != "" {
		c.dialer = &proxyDialer{proxy: &socks.Proxy{Addr: settings.Proxy}}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials host:port and reports exactly once: a new, unstarted
// Channel, or ErrTimedOut, ErrResolveFailed, ErrConnectFailed or
// ErrCanceled.
func (c *Connector) Connect(host string, port uint16, handler func(error, *Channel)) {
	if !c.settings.Outbound {
		c.pool.Post(func() { handler(ErrOperationNotSupported, nil) })
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &connectAttempt{
		connector: c,
		host:      host,
		port:      port,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		latency:   metrics.NewTimer(metrics.ConnectLatency, c.clock),
	}

	c.mu.Lock()
	if c.canceled {
		c.mu.Unlock()
		cancel()
		c.pool.Post(func() { handler(ErrCanceled, nil) })
		return
	}
	c.attempts[a] = struct{}{}
	c.mu.Unlock()

	a.mu.Lock()
	a.timer = c.clock.AfterFunc(c.settings.ConnectTimeout, func() {
		a.finish(ErrTimedOut, nil)
	})
	if a.completed.Load() {
		// Canceled before the timer existed.
		a.timer.Stop()
	}
	a.mu.Unlock()

	go a.run()
}

// ConnectAuthority dials a numeric address.
func (c *Connector) ConnectAuthority(authority Authority, handler func(error, *Channel)) {
	c.Connect(authority.Addr().String(), authority.Port(), handler)
}

// ConnectEndpoint dials a host endpoint.
func (c *Connector) ConnectEndpoint(endpoint Endpoint, handler func(error, *Channel)) {
	c.Connect(endpoint.Host, endpoint.Port, handler)
}

// Cancel aborts every outstanding Connect with ErrCanceled. The connector
// rejects later calls with ErrCanceled.
func (c *Connector) Cancel() {
	c.mu.Lock()
	if c.canceled {
		c.mu.Unlock()
		return
	}
	c.canceled = true
	attempts := make([]*connectAttempt, 0, len(c.attempts))
	for a := range c.attempts {
		attempts = append(attempts, a)
	}
	c.mu.Unlock()

	for _, a := range attempts {
		a.finish(ErrCanceled, nil)
	}
}

func (c *Connector) remove(a *connectAttempt) {
	c.mu.Lock()
	delete(c.attempts, a)
	c.mu.Unlock()
}

// connectAttempt is the state of one Connect call: its candidates, the
// cursor into them, the deadline timer and the single-fire guard shared by
// the dial chain, the timer and Cancel.
type connectAttempt struct {
	connector  *Connector
	host       string
	port       uint16
	handler    func(error, *Channel)
	ctx        context.Context
	cancel     context.CancelFunc
	latency    *metrics.Timer
	candidates []string
	index      int
	completed  atomic.Bool

	mu    sync.Mutex
	timer mclock.Timer
}

func (a *connectAttempt) run() {
	candidates, err := a.resolve()
	if a.ctx.Err() != nil {
		return
	}
	if err != nil {
		a.finish(fmt.Errorf("%w: %s: %w", ErrResolveFailed, a.host, err), nil)
		return
	}
	if len(candidates) == 0 {
		a.finish(fmt.Errorf("%w: %s: no addresses", ErrResolveFailed, a.host), nil)
		return
	}
	a.candidates = candidates

	port := strconv.Itoa(int(a.port))
	var lastErr error
	for a.index = 0; a.index < len(a.candidates); a.index++ {
		address := net.JoinHostPort(a.candidates[a.index], port)
		conn, err := a.connector.dialer.DialContext(a.ctx, "tcp", address)
		if err == nil {
			if !a.finish(nil, conn) {
				conn.Close()
			}
			return
		}
		if a.ctx.Err() != nil {
			return
		}
		a.connector.log.Debug("candidate failed", "address", address, "err", err)
		lastErr = err
	}
	a.finish(fmt.Errorf("%w: %w", ErrConnectFailed, lastErr), nil)
}

// resolve returns the candidates in resolver order. Literal addresses and
// proxied hosts are their own single candidate.
func (a *connectAttempt) resolve() ([]string, error) {
	if addr, err := netip.ParseAddr(a.host); err == nil {
		return []string{addr.Unmap().String()}, nil
	}
	if _, proxied := a.connector.dialer.(*proxyDialer); proxied {
		return []string{a.host}, nil
	}
	return a.connector.resolver.LookupHost(a.ctx, a.host)
}

// finish completes the attempt if nothing else has. It reports whether the
// caller won the race; a losing caller owns any connection it holds.
func (a *connectAttempt) finish(err error, conn net.Conn) bool {
	if !a.completed.CompareAndSwap(false, true) {
		return false
	}
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	a.cancel()

	c := a.connector
	c.remove(a)

	var ch *Channel
	switch {
	case err == nil:
		metrics.ConnectSuccess.Inc()
		a.latency.Stop()
		ch = NewChannel(conn, false, c.settings)
		c.log.Debug("connected", "host", a.host, "peer", ch.Authority().String())
	case err == ErrTimedOut:
		metrics.ConnectTimeout.Inc()
		c.log.Debug("connect timed out", "host", a.host, "port", a.port)
	default:
		metrics.ConnectFailure.Inc()
		c.log.Debug("connect failed", "host", a.host, "port", a.port, "err", err)
	}
	c.pool.Post(func() { a.handler(err, ch) })
	return true
}

// proxyDialer adapts a SOCKS5 proxy, which has no context support, to
// Dialer. A dial abandoned by its context closes the late connection.
type proxyDialer struct {
	proxy *socks.Proxy
}

func (d *proxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := d.proxy.Dial(network, address)
		done <- result{conn, err}
	}()
	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

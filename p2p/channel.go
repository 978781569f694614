package p2p

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/satwire/satwire/log"
	"github.com/satwire/satwire/message"
	"github.com/satwire/satwire/metrics"
)

// Channel owns one peer connection. It frames outbound messages through a
// single writer goroutine, decodes inbound frames and fans them out to the
// subscribers of their command, and fans its stop event out to every
// subscriber exactly once.
//
// Handlers registered directly on a Channel run on the channel's own
// goroutines and must not block; protocols register through ProtocolBase,
// which moves them onto a Dispatcher.
type Channel struct {
	transport *FrameTransport
	authority Authority
	inbound   bool
	nonce     uint64
	settings  *Settings
	log       *log.Logger
	version   atomic.Uint32

	mu       sync.Mutex
	started  bool
	stopped  bool
	reason   error
	subs     map[string][]func(error, message.Message)
	stopSubs []func(error)
	sendq    []outbound
	timer    mclock.Timer
	timerGen uint64

	wake chan struct{}
	quit chan struct{}
}

type outbound struct {
	msg     Msg
	handler func(error)
}

// NewChannel wraps conn. The channel does not read or write until Start.
func NewChannel(conn net.Conn, inbound bool, settings *Settings) *Channel {
	authority := authorityOf(conn.RemoteAddr())
	c := &Channel{
		transport: NewFrameTransport(conn, settings.Network),
		authority: authority,
		inbound:   inbound,
		nonce:     newNonce(),
		settings:  settings,
		subs:      make(map[string][]func(error, message.Message)),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	c.log = settings.logger().With("authority", authority.String(), "inbound", inbound)
	c.version.Store(settings.ProtocolVersion)
	return c
}

func newNonce() uint64 {
	for {
		if n := rand.Uint64(); n != 0 {
			return n
		}
	}
}

// Start begins reading and writing. Protocols should subscribe before Start
// so no early message goes undelivered.
func (c *Channel) Start() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrAlreadyStopped
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.armTimerLocked()
	c.mu.Unlock()

	metrics.ChannelsOpen.Inc()
	c.log.Debug("channel started", "nonce", c.nonce)
	go c.readLoop()
	go c.writeLoop()
	return nil
}

// Stop closes the connection. Every message subscriber receives (reason,
// nil) and every stop subscriber receives reason, once. A nil reason is
// recorded as ErrChannelStopped. Later calls are no-ops.
func (c *Channel) Stop(reason error) {
	if reason == nil {
		reason = ErrChannelStopped
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.reason = reason
	if c.timer != nil {
		c.timer.Stop()
	}
	started := c.started
	pending := c.sendq
	c.sendq = nil
	c.mu.Unlock()

	close(c.quit)
	_ = c.transport.Close()
	c.log.Debug("channel stopped", "reason", reason)

	for _, out := range pending {
		out.handler(ErrChannelStopped)
	}
	if started {
		// The read loop notifies on exit, after its last delivery.
		metrics.ChannelsOpen.Dec()
		return
	}
	c.notifyStop()
}

// Send encodes m and queues it for the writer. handler receives the write
// result, or ErrChannelStopped if the channel stops first.
func (c *Channel) Send(m message.Message, handler func(error)) {
	if handler == nil {
		handler = func(error) {}
	}
	msg := NewMsg(m)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		handler(ErrChannelStopped)
		return
	}
	c.sendq = append(c.sendq, outbound{msg: msg, handler: handler})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers handler for every inbound message with the given
// command. Each subscriber receives its own decoded copy. When the channel
// stops the handler receives (reason, nil) once and is dropped; on an
// already stopped channel it receives (ErrChannelStopped, nil) at once.
func (c *Channel) Subscribe(command string, handler func(error, message.Message)) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		handler(ErrChannelStopped, nil)
		return
	}
	c.subs[command] = append(c.subs[command], handler)
	c.mu.Unlock()
}

// SubscribeStop registers handler to receive the stop reason once.
func (c *Channel) SubscribeStop(handler func(error)) {
	c.mu.Lock()
	if c.stopped {
		reason := c.reason
		c.mu.Unlock()
		handler(reason)
		return
	}
	c.stopSubs = append(c.stopSubs, handler)
	c.mu.Unlock()
}

// Authority returns the peer's address.
func (c *Channel) Authority() Authority { return c.authority }

// Inbound reports whether the peer connected to us.
func (c *Channel) Inbound() bool { return c.inbound }

// Nonce returns the random session nonce of this channel.
func (c *Channel) Nonce() uint64 { return c.nonce }

// Version returns the negotiated protocol version, initially the version
// from settings.
func (c *Channel) Version() uint32 { return c.version.Load() }

// SetVersion records the negotiated protocol version. Only the handshake
// protocol calls it, before other protocols attach and read it.
func (c *Channel) SetVersion(v uint32) { c.version.Store(v) }

// Settings returns the settings the channel was created with.
func (c *Channel) Settings() *Settings { return c.settings }

// Stopped reports whether Stop has been called.
func (c *Channel) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Reason returns the stop reason, or nil while running.
func (c *Channel) Reason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *Channel) String() string {
	return c.authority.String()
}

func (c *Channel) readLoop() {
	defer c.notifyStop()
	for {
		msg, err := c.transport.ReadMsg()
		if err != nil {
			c.Stop(readFailure(err))
			return
		}
		metrics.MessagesReceived.Inc()
		c.resetTimer()
		if !c.deliver(msg) {
			return
		}
	}
}

func readFailure(err error) error {
	switch {
	case errors.Is(err, ErrBadMagic), errors.Is(err, ErrBadChecksum),
		errors.Is(err, ErrFrameTooLarge), errors.Is(err, ErrBadCommand):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrChannelStopped, err)
	}
}

// deliver decodes msg once per subscriber and hands it over. Every copy is
// decoded before any subscriber runs, so a payload that fails to decode
// stops the channel without a partial delivery. It reports false once the
// channel is stopping.
func (c *Channel) deliver(msg Msg) bool {
	if _, known := message.New(msg.Command); !known {
		c.log.Debug("dropping unknown command", "command", msg.Command, "size", len(msg.Payload))
		return true
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	handlers := append(([]func(error, message.Message))(nil), c.subs[msg.Command]...)
	c.mu.Unlock()

	copies := make([]message.Message, max(len(handlers), 1))
	for i := range copies {
		decoded, err := msg.Decode()
		if err != nil {
			c.Stop(fmt.Errorf("%w: %s: %w", ErrBadMessage, msg.Command, err))
			return false
		}
		copies[i] = decoded
	}
	for i, handler := range handlers {
		handler(nil, copies[i])
	}
	return true
}

func (c *Channel) writeLoop() {
	defer c.failPending()
	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		}
		for {
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			batch := c.sendq
			c.sendq = nil
			c.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for i, out := range batch {
				if err := c.transport.WriteMsg(out.msg); err != nil {
					out.handler(err)
					for _, rest := range batch[i+1:] {
						rest.handler(ErrChannelStopped)
					}
					c.Stop(fmt.Errorf("%w: %w", ErrChannelStopped, err))
					return
				}
				metrics.MessagesSent.Inc()
				out.handler(nil)
			}
		}
	}
}

func (c *Channel) failPending() {
	c.mu.Lock()
	pending := c.sendq
	c.sendq = nil
	c.mu.Unlock()
	for _, out := range pending {
		out.handler(ErrChannelStopped)
	}
}

func (c *Channel) notifyStop() {
	c.mu.Lock()
	subs := c.subs
	stops := c.stopSubs
	reason := c.reason
	c.subs = nil
	c.stopSubs = nil
	c.mu.Unlock()

	for _, handlers := range subs {
		for _, handler := range handlers {
			handler(reason, nil)
		}
	}
	for _, handler := range stops {
		handler(reason)
	}
}

func (c *Channel) resetTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.armTimerLocked()
	}
}

// armTimerLocked (re)starts the inactivity timer. A superseded timer that
// fires anyway is ignored through the generation check.
func (c *Channel) armTimerLocked() {
	period := c.settings.ChannelInactivity
	if period <= 0 {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = c.settings.clock().AfterFunc(period, func() {
		c.mu.Lock()
		current := gen == c.timerGen
		c.mu.Unlock()
		if current {
			c.Stop(ErrChannelTimeout)
		}
	})
}

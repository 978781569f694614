// Package p2p implements the Bitcoin peer-to-peer transport: wire framing,
// channels, the inbound acceptor and outbound connector, and the ordered
// dispatch runtime that protocol state machines are built on.
package p2p

import (
	"github.com/satwire/satwire/log"
	"github.com/satwire/satwire/message"
)

// ProtocolBase is the runtime a protocol state machine embeds. Everything it
// schedules, including message and stop handlers, runs through a private
// Dispatcher, so the protocol's own fields need no locking as long as they
// are only touched from those handlers.
//
// Scheduled closures capture the concrete protocol, which keeps it alive
// until the last of them has run.
type ProtocolBase struct {
	pool       *Threadpool
	dispatcher *Dispatcher
	channel    *Channel
	name       string
	log        *log.Logger
}

// NewProtocolBase attaches a protocol named name to channel.
func NewProtocolBase(pool *Threadpool, channel *Channel, name string) *ProtocolBase {
	return &ProtocolBase{
		pool:       pool,
		dispatcher: NewDispatcher(pool),
		channel:    channel,
		name:       name,
		log:        channel.log.With("protocol", name),
	}
}

// Bind returns a callable that schedules fn on the protocol's dispatcher.
func (p *ProtocolBase) Bind(fn func()) func() {
	return func() { p.dispatcher.Ordered(fn) }
}

// Call schedules fn on the protocol's dispatcher now.
func (p *ProtocolBase) Call(fn func()) {
	p.dispatcher.Ordered(fn)
}

// Send transmits msg on the channel. handler, if not nil, receives the
// result on the protocol's dispatcher.
func (p *ProtocolBase) Send(msg message.Message, handler func(error)) {
	if handler == nil {
		p.channel.Send(msg, nil)
		return
	}
	p.channel.Send(msg, OrderedDelegate(p.dispatcher, handler))
}

// Subscribe delivers every inbound message of M's command to handler on the
// protocol's dispatcher. When the channel stops handler receives the stop
// reason and a nil message, once.
func Subscribe[T any, M interface {
	*T
	message.Message
}](p *ProtocolBase, handler func(error, M)) {
	command := M(new(T)).Command()
	p.channel.Subscribe(command, func(err error, msg message.Message) {
		var typed M
		if msg != nil {
			typed, _ = msg.(M)
		}
		p.dispatcher.Ordered(func() { handler(err, typed) })
	})
}

// SubscribeStop delivers the channel's stop reason to handler once, on the
// protocol's dispatcher.
func (p *ProtocolBase) SubscribeStop(handler func(error)) {
	p.channel.SubscribeStop(OrderedDelegate(p.dispatcher, handler))
}

// Stop stops the channel with reason.
func (p *ProtocolBase) Stop(reason error) {
	p.log.Debug("stopping channel", "reason", reason)
	p.channel.Stop(reason)
}

// Authority returns the peer's address.
func (p *ProtocolBase) Authority() Authority { return p.channel.Authority() }

// Name returns the protocol's display name.
func (p *ProtocolBase) Name() string { return p.name }

// Nonce returns the channel's session nonce.
func (p *ProtocolBase) Nonce() uint64 { return p.channel.Nonce() }

// Pool returns the shared threadpool.
func (p *ProtocolBase) Pool() *Threadpool { return p.pool }

// Stopped reports whether the channel has stopped.
func (p *ProtocolBase) Stopped() bool { return p.channel.Stopped() }

// Version returns the channel's negotiated protocol version.
func (p *ProtocolBase) Version() uint32 { return p.channel.Version() }

// SetVersion sets the channel's negotiated protocol version. Protocols
// reading Version concurrently may see either value, so only the handshake
// calls it, before any other protocol is attached.
func (p *ProtocolBase) SetVersion(v uint32) { p.channel.SetVersion(v) }

// Settings returns the channel's settings.
func (p *ProtocolBase) Settings() *Settings { return p.channel.Settings() }

// Logger returns the protocol's logger.
func (p *ProtocolBase) Logger() *log.Logger { return p.log }

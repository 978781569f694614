package p2p

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/satwire/satwire/message"
)

// ProtocolPing answers pings and sends one every Settings.Heartbeat. A peer
// that leaves a ping unanswered until the next heartbeat, or answers with
// the wrong nonce, is stopped. Attach it only to channels that negotiated
// at least BIP31 (pong support).
type ProtocolPing struct {
	*ProtocolBase
	timer   mclock.Timer
	pending uint64
	stopped bool
}

// NewProtocolPing attaches a keepalive to channel.
func NewProtocolPing(pool *Threadpool, channel *Channel) *ProtocolPing {
	return &ProtocolPing{ProtocolBase: NewProtocolBase(pool, channel, "ping")}
}

// Start subscribes to pings and pongs and arms the heartbeat.
func (p *ProtocolPing) Start() {
	Subscribe(p.ProtocolBase, p.handlePing)
	Subscribe(p.ProtocolBase, p.handlePong)
	p.SubscribeStop(p.handleStop)
	p.Call(p.schedule)
}

func (p *ProtocolPing) schedule() {
	settings := p.Settings()
	if settings.Heartbeat <= 0 || p.stopped {
		return
	}
	p.timer = settings.clock().AfterFunc(settings.Heartbeat, p.Bind(p.sendPing))
}

func (p *ProtocolPing) sendPing() {
	if p.stopped {
		return
	}
	if p.pending != 0 {
		p.Stop(fmt.Errorf("%w: ping %d unanswered", ErrChannelTimeout, p.pending))
		return
	}
	p.pending = newNonce()
	p.Send(message.NewPing(p.pending), p.handleSend)
	p.schedule()
}

func (p *ProtocolPing) handlePing(err error, ping *message.Ping) {
	if err != nil {
		return
	}
	p.Send(message.NewPong(ping.Nonce), p.handleSend)
}

func (p *ProtocolPing) handlePong(err error, pong *message.Pong) {
	if err != nil {
		return
	}
	if p.pending == 0 || pong.Nonce != p.pending {
		p.Stop(fmt.Errorf("%w: unexpected pong nonce %d", ErrProtocolViolation, pong.Nonce))
		return
	}
	p.pending = 0
}

func (p *ProtocolPing) handleSend(err error) {
	if err != nil {
		p.Logger().Debug("ping send failed", "err", err)
	}
}

func (p *ProtocolPing) handleStop(error) {
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
}

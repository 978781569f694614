package p2p

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/satwire/satwire/message"
	"github.com/satwire/satwire/metrics"
)

var (
	// ErrSelfConnect is returned when a peer echoes a nonce this node sent.
	ErrSelfConnect = errors.New("p2p: connected to self")

	// ErrVersionTooLow is returned for peers below Settings.MinimumVersion.
	ErrVersionTooLow = errors.New("p2p: peer version too low")
)

// SentNonces remembers the version nonces of handshakes in progress. A peer
// version carrying one of them means the node dialed itself.
type SentNonces struct {
	cache *lru.Cache[uint64, struct{}]
}

// NewSentNonces returns a set holding at most size nonces.
func NewSentNonces(size int) *SentNonces {
	return &SentNonces{cache: lru.NewCache[uint64, struct{}](size)}
}

// Add records nonce.
func (s *SentNonces) Add(nonce uint64) { s.cache.Add(nonce, struct{}{}) }

// Contains reports whether nonce was sent and not yet removed.
func (s *SentNonces) Contains(nonce uint64) bool { return s.cache.Contains(nonce) }

// Remove forgets nonce.
func (s *SentNonces) Remove(nonce uint64) { s.cache.Remove(nonce) }

// ProtocolVersion performs the version/verack handshake on a channel and
// negotiates the lower of both protocol versions.
type ProtocolVersion struct {
	*ProtocolBase
	nonces *SentNonces

	handler   func(error)
	timer     mclock.Timer
	peer      *message.Version
	gotVerAck bool
	done      bool
}

// NewProtocolVersion attaches a handshake to channel.
func NewProtocolVersion(pool *Threadpool, channel *Channel, nonces *SentNonces) *ProtocolVersion {
	return &ProtocolVersion{
		ProtocolBase: NewProtocolBase(pool, channel, "version"),
		nonces:       nonces,
	}
}

// Start sends our version and calls handler once: nil after the peer's
// version and verack arrived, otherwise the reason the channel was stopped.
// Call it before starting the channel.
func (p *ProtocolVersion) Start(handler func(error)) {
	p.handler = handler
	p.nonces.Add(p.Nonce())

	Subscribe(p.ProtocolBase, p.handleVersion)
	Subscribe(p.ProtocolBase, p.handleVerAck)
	p.SubscribeStop(p.handleStop)

	p.Call(func() {
		if p.done {
			return
		}
		settings := p.Settings()
		p.timer = settings.clock().AfterFunc(settings.HandshakeTimeout, p.Bind(func() {
			p.complete(fmt.Errorf("%w: handshake", ErrTimedOut))
		}))
		p.Send(p.versionMessage(), p.handleSend)
	})
}

// Peer returns the peer's version message. It is set before the handshake
// handler runs.
func (p *ProtocolVersion) Peer() *message.Version { return p.peer }

func (p *ProtocolVersion) versionMessage() *message.Version {
	settings := p.Settings()
	return &message.Version{
		ProtocolVersion: settings.ProtocolVersion,
		Services:        uint64(settings.Services),
		Timestamp:       time.Now().Unix(),
		AddrReceiver:    message.NewNetAddress(p.Authority().AddrPort, 0),
		AddrSender:      message.NewNetAddress(netip.AddrPort{}, uint64(settings.Services)),
		Nonce:           p.Nonce(),
		UserAgent:       settings.UserAgent,
		Relay:           settings.Relay,
	}
}

func (p *ProtocolVersion) handleVersion(err error, v *message.Version) {
	if err != nil || p.done {
		return
	}
	settings := p.Settings()
	switch {
	case p.peer != nil:
		p.complete(fmt.Errorf("%w: duplicate version", ErrProtocolViolation))
		return
	case p.nonces.Contains(v.Nonce):
		p.complete(ErrSelfConnect)
		return
	case v.ProtocolVersion < settings.MinimumVersion:
		p.complete(fmt.Errorf("%w: %d < %d", ErrVersionTooLow, v.ProtocolVersion, settings.MinimumVersion))
		return
	}

	p.peer = v
	p.SetVersion(min(settings.ProtocolVersion, v.ProtocolVersion))
	p.Logger().Debug("peer version", "version", v.ProtocolVersion,
		"agent", v.UserAgent, "negotiated", p.Version())
	p.Send(message.NewVerAck(), p.handleSend)
	p.checkDone()
}

func (p *ProtocolVersion) handleVerAck(err error, _ *message.VerAck) {
	if err != nil || p.done {
		return
	}
	p.gotVerAck = true
	p.checkDone()
}

func (p *ProtocolVersion) handleSend(err error) {
	if err != nil {
		p.complete(err)
	}
}

func (p *ProtocolVersion) handleStop(reason error) {
	p.complete(reason)
}

func (p *ProtocolVersion) checkDone() {
	if p.peer != nil && p.gotVerAck {
		p.complete(nil)
	}
}

func (p *ProtocolVersion) complete(err error) {
	if p.done {
		return
	}
	p.done = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.nonces.Remove(p.Nonce())

	if err != nil {
		p.Stop(err)
	} else {
		metrics.HandshakesCompleted.Inc()
	}
	p.handler(err)
}

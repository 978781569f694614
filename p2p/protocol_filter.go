package p2p

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/satwire/satwire/message"
)

// ProtocolFilter tracks the BIP37 bloom filter a peer loads on this node.
// Oversized filters, too many hash functions and unknown update modes stop
// the channel, as does a filter sent to a node not advertising bloom
// support.
type ProtocolFilter struct {
	*ProtocolBase
	filter *message.FilterLoad
}

// NewProtocolFilter attaches filter tracking to channel.
func NewProtocolFilter(pool *Threadpool, channel *Channel) *ProtocolFilter {
	return &ProtocolFilter{ProtocolBase: NewProtocolBase(pool, channel, "filter")}
}

// Start subscribes to filterload and filterclear.
func (p *ProtocolFilter) Start() {
	Subscribe(p.ProtocolBase, p.handleFilterLoad)
	Subscribe(p.ProtocolBase, p.handleFilterClear)
}

// Filter passes the currently loaded filter, or nil, to handler on the
// protocol's dispatcher.
func (p *ProtocolFilter) Filter(handler func(*message.FilterLoad)) {
	p.Call(func() { handler(p.filter) })
}

func (p *ProtocolFilter) handleFilterLoad(err error, m *message.FilterLoad) {
	if err != nil {
		return
	}
	switch {
	case p.Settings().Services&wire.SFNodeBloom == 0:
		p.Stop(fmt.Errorf("%w: filterload without bloom service", ErrProtocolViolation))
	case !m.IsValid():
		p.Stop(fmt.Errorf("%w: filterload exceeds limits", ErrBadMessage))
	case !m.Flags.Known():
		p.Stop(fmt.Errorf("%w: filterload update mode %s", ErrBadMessage, m.Flags))
	default:
		p.filter = m
		p.Logger().Debug("filter loaded", "size", len(m.Filter),
			"hashes", m.HashFunctions, "flags", m.Flags.String())
	}
}

func (p *ProtocolFilter) handleFilterClear(err error, _ *message.FilterClear) {
	if err != nil {
		return
	}
	p.filter = nil
}

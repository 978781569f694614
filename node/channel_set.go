package node

import (
	"errors"
	"sort"
	"sync"

	"github.com/satwire/satwire/p2p"
)

var (
	// ErrMaxChannels is returned when the channel set is full.
	ErrMaxChannels = errors.New("node: max connections reached")

	// ErrChannelSetClosed is returned when operating on a closed set.
	ErrChannelSetClosed = errors.New("node: channel set closed")

	// ErrChannelRegistered is returned when a channel nonce is already present.
	ErrChannelRegistered = errors.New("node: channel already registered")
)

// ChannelSet is a bounded concurrent set of channels keyed by channel nonce.
type ChannelSet struct {
	mu       sync.RWMutex
	channels map[uint64]*p2p.Channel
	max      int
	closed   bool
}

// NewChannelSet creates a set holding at most max channels.
func NewChannelSet(max int) *ChannelSet {
	return &ChannelSet{
		channels: make(map[uint64]*p2p.Channel),
		max:      max,
	}
}

// Add inserts a channel. It fails once the set is full or closed.
func (s *ChannelSet) Add(ch *p2p.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrChannelSetClosed
	}
	if _, exists := s.channels[ch.Nonce()]; exists {
		return ErrChannelRegistered
	}
	if len(s.channels) >= s.max {
		return ErrMaxChannels
	}
	s.channels[ch.Nonce()] = ch
	return nil
}

// Remove deletes the channel with the given nonce and reports whether it
// was present.
func (s *ChannelSet) Remove(nonce uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.channels[nonce]; !exists {
		return false
	}
	delete(s.channels, nonce)
	return true
}

// Get returns the channel with the given nonce, or nil.
func (s *ChannelSet) Get(nonce uint64) *p2p.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[nonce]
}

// Len returns the number of channels.
func (s *ChannelSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// Counts returns the number of inbound and outbound channels.
func (s *ChannelSet) Counts() (inbound, outbound int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.channels {
		if ch.Inbound() {
			inbound++
		} else {
			outbound++
		}
	}
	return inbound, outbound
}

// Channels returns a snapshot ordered by authority.
func (s *ChannelSet) Channels() []*p2p.Channel {
	s.mu.RLock()
	list := make([]*p2p.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		list = append(list, ch)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Authority().Compare(list[j].Authority().AddrPort) < 0
	})
	return list
}

// Close marks the set closed and returns the channels it held. Later Add
// calls fail with ErrChannelSetClosed.
func (s *ChannelSet) Close() []*p2p.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	list := make([]*p2p.Channel, 0, len(s.channels))
	for nonce, ch := range s.channels {
		list = append(list, ch)
		delete(s.channels, nonce)
	}
	return list
}

// Closed reports whether Close has been called.
func (s *ChannelSet) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

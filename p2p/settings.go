package p2p

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/satwire/satwire/log"
)

// Default settings values.
const (
	DefaultProtocolVersion   uint32 = wire.ProtocolVersion
	DefaultMinimumVersion    uint32 = 31800
	DefaultUserAgent                = "/satwire:0.1.0/"
	DefaultConnectTimeout           = 5 * time.Second
	DefaultHandshakeTimeout         = 30 * time.Second
	DefaultHeartbeat                = 60 * time.Second
	DefaultChannelInactivity        = 180 * time.Second
)

// Settings is the read-only configuration shared by acceptors, connectors,
// channels and protocols. Components keep the pointer they are given and
// never modify it; build a new Settings to change behavior.
type Settings struct {
	// Network is the magic that opens every frame.
	Network wire.BitcoinNet

	// ProtocolVersion is the version this node advertises.
	ProtocolVersion uint32

	// MinimumVersion is the lowest peer version the handshake accepts.
	MinimumVersion uint32

	// Services advertised in the version message.
	Services wire.ServiceFlag

	// UserAgent advertised in the version message.
	UserAgent string

	// Relay asks peers to relay transactions before a filter is loaded.
	Relay bool

	// ConnectTimeout bounds a whole outbound connect, all candidates
	// included.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the version/verack exchange.
	HandshakeTimeout time.Duration

	// Heartbeat is the ping interval. Zero disables pings.
	Heartbeat time.Duration

	// ChannelInactivity stops a channel that receives nothing for this
	// long. Zero disables the timer.
	ChannelInactivity time.Duration

	// Inbound and Outbound enable the acceptor and connector.
	Inbound  bool
	Outbound bool

	// Threads is the worker count of the shared threadpool.
	Threads int

	// Proxy is an optional SOCKS5 proxy address (host:port) for outbound
	// connections.
	Proxy string

	// Clock drives every timer. Nil means the system clock.
	Clock mclock.Clock

	// Logger receives component logs. Nil means the default logger.
	Logger *log.Logger
}

// DefaultSettings returns settings for mainnet.
func DefaultSettings() *Settings {
	return &Settings{
		Network:           wire.MainNet,
		ProtocolVersion:   DefaultProtocolVersion,
		MinimumVersion:    DefaultMinimumVersion,
		Services:          wire.SFNodeBloom,
		UserAgent:         DefaultUserAgent,
		Relay:             true,
		ConnectTimeout:    DefaultConnectTimeout,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		Heartbeat:         DefaultHeartbeat,
		ChannelInactivity: DefaultChannelInactivity,
		Inbound:           true,
		Outbound:          true,
		Threads:           runtime.NumCPU(),
		Clock:             mclock.System{},
	}
}

// Validate checks settings values for consistency.
func (s *Settings) Validate() error {
	if s.ProtocolVersion == 0 {
		return errors.New("p2p: protocol version must not be zero")
	}
	if s.MinimumVersion > s.ProtocolVersion {
		return fmt.Errorf("p2p: minimum version %d above protocol version %d",
			s.MinimumVersion, s.ProtocolVersion)
	}
	if len(s.UserAgent) > wire.MaxUserAgentLen {
		return fmt.Errorf("p2p: user agent longer than %d bytes", wire.MaxUserAgentLen)
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("p2p: invalid connect timeout: %v", s.ConnectTimeout)
	}
	if s.HandshakeTimeout <= 0 {
		return fmt.Errorf("p2p: invalid handshake timeout: %v", s.HandshakeTimeout)
	}
	if s.Heartbeat < 0 || s.ChannelInactivity < 0 {
		return errors.New("p2p: negative heartbeat or inactivity period")
	}
	if s.Threads <= 0 {
		return fmt.Errorf("p2p: invalid thread count: %d", s.Threads)
	}
	return nil
}

func (s *Settings) clock() mclock.Clock {
	if s.Clock == nil {
		return mclock.System{}
	}
	return s.Clock
}

func (s *Settings) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default().Module("p2p")
	}
	return s.Logger
}

package node

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/btcsuite/btcd/wire"

	"github.com/satwire/satwire/log"
	"github.com/satwire/satwire/p2p"
)

// Network describes a Bitcoin network the node can join.
type Network struct {
	Name  string
	Magic wire.BitcoinNet
	Port  uint16
}

// networks maps config names to wire magics and default listen ports.
var networks = map[string]Network{
	"mainnet":  {Name: "mainnet", Magic: wire.MainNet, Port: 8333},
	"testnet3": {Name: "testnet3", Magic: wire.TestNet3, Port: 18333},
	"regtest":  {Name: "regtest", Magic: wire.TestNet, Port: 18444},
	"signet":   {Name: "signet", Magic: wire.SigNet, Port: 38333},
	"simnet":   {Name: "simnet", Magic: wire.SimNet, Port: 18555},
}

// LookupNetwork returns the network registered under name.
func LookupNetwork(name string) (Network, bool) {
	n, ok := networks[strings.ToLower(name)]
	return n, ok
}

// NetworkNames returns the supported network names in sorted order.
func NetworkNames() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// P2PConfig holds the transport and protocol knobs of a node.
type P2PConfig struct {
	UserAgent         string        `toml:"user_agent"`
	ProtocolVersion   uint32        `toml:"protocol_version"`
	MinimumVersion    uint32        `toml:"minimum_version"`
	Bloom             bool          `toml:"bloom"`
	Relay             bool          `toml:"relay"`
	Inbound           bool          `toml:"inbound"`
	Outbound          bool          `toml:"outbound"`
	Threads           int           `toml:"threads"`
	Proxy             string        `toml:"proxy"`
	ConnectTimeout    time.Duration `toml:"connect_timeout"`
	HandshakeTimeout  time.Duration `toml:"handshake_timeout"`
	Heartbeat         time.Duration `toml:"heartbeat"`
	ChannelInactivity time.Duration `toml:"channel_inactivity"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Config holds all configuration for a satwire node.
type Config struct {
	// Name is a human-readable identifier used in logs.
	Name string `toml:"name"`

	// Network selects the magic and the default listen port.
	Network string `toml:"network"`

	// Port is the TCP listen port. Zero lets the operating system pick.
	Port int `toml:"port"`

	// Peers are host:port endpoints dialed when the node starts.
	Peers []string `toml:"peers"`

	// MaxConnections caps inbound plus outbound channels.
	MaxConnections int `toml:"max_connections"`

	P2P P2PConfig `toml:"p2p"`
	Log LogConfig `toml:"log"`
}

// DefaultConfig returns a Config with sensible defaults for mainnet.
func DefaultConfig() Config {
	s := p2p.DefaultSettings()
	return Config{
		Name:           "satwire",
		Network:        "mainnet",
		Port:           int(networks["mainnet"].Port),
		MaxConnections: 125,
		P2P: P2PConfig{
			UserAgent:         s.UserAgent,
			ProtocolVersion:   s.ProtocolVersion,
			MinimumVersion:    s.MinimumVersion,
			Bloom:             s.Services&wire.SFNodeBloom != 0,
			Relay:             s.Relay,
			Inbound:           s.Inbound,
			Outbound:          s.Outbound,
			Threads:           s.Threads,
			ConnectTimeout:    s.ConnectTimeout,
			HandshakeTimeout:  s.HandshakeTimeout,
			Heartbeat:         s.Heartbeat,
			ChannelInactivity: s.ChannelInactivity,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a TOML file over the defaults. Keys missing from the file
// keep their default value; a file that selects a network without a port
// listens on that network's default port. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("network") && !meta.IsDefined("port") {
		if n, ok := LookupNetwork(cfg.Network); ok {
			cfg.Port = int(n.Port)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration values are consistent.
func (c *Config) Validate() error {
	if _, ok := LookupNetwork(c.Network); !ok {
		return fmt.Errorf("config: unknown network %q (want one of %s)",
			c.Network, strings.Join(NetworkNames(), ", "))
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d", c.Port)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: invalid max connections: %d", c.MaxConnections)
	}
	for _, peer := range c.Peers {
		if _, err := p2p.ParseEndpoint(peer); err != nil {
			return fmt.Errorf("config: peer %q: %w", peer, err)
		}
	}
	if len(c.Peers) > 0 && !c.P2P.Outbound {
		return errors.New("config: peers configured with outbound connections disabled")
	}
	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	settings, err := c.Settings()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Settings converts the configuration into transport settings. The logger
// and clock are left for the caller to fill in.
func (c *Config) Settings() (*p2p.Settings, error) {
	n, ok := LookupNetwork(c.Network)
	if !ok {
		return nil, fmt.Errorf("config: unknown network %q", c.Network)
	}
	s := p2p.DefaultSettings()
	s.Network = n.Magic
	s.ProtocolVersion = c.P2P.ProtocolVersion
	s.MinimumVersion = c.P2P.MinimumVersion
	s.UserAgent = c.P2P.UserAgent
	s.Relay = c.P2P.Relay
	s.Inbound = c.P2P.Inbound
	s.Outbound = c.P2P.Outbound
	s.Threads = c.P2P.Threads
	s.Proxy = c.P2P.Proxy
	s.ConnectTimeout = c.P2P.ConnectTimeout
	s.HandshakeTimeout = c.P2P.HandshakeTimeout
	s.Heartbeat = c.P2P.Heartbeat
	s.ChannelInactivity = c.P2P.ChannelInactivity
	s.Services = 0
	if c.P2P.Bloom {
		s.Services |= wire.SFNodeBloom
	}
	return s, nil
}

// Logger builds the root logger described by the log section.
func (c *Config) Logger() *log.Logger {
	level, _ := log.ParseLevel(c.Log.Level)
	if c.Log.Format == "json" {
		return log.New(level)
	}
	return log.NewText(os.Stderr, level)
}

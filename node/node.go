package node

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/satwire/satwire/log"
	"github.com/satwire/satwire/message"
	"github.com/satwire/satwire/metrics"
	"github.com/satwire/satwire/p2p"
)

const (
	// sentNonceCapacity bounds the self-connection nonce cache.
	sentNonceCapacity = 1024

	// acceptRetryDelay paces the accept loop after a failed accept.
	acceptRetryDelay = 100 * time.Millisecond

	// eventBuffer is the per-subscription event backlog.
	eventBuffer = 64
)

var (
	// ErrNodeRunning is returned by Start on a running node.
	ErrNodeRunning = errors.New("node: already running")

	// ErrNodeStopped is the reason given to channels closed by Stop and the
	// error reported by operations on a stopped node.
	ErrNodeStopped = errors.New("node: stopped")
)

// Node owns the threadpool, acceptor and connector and attaches the version,
// ping and filter protocols to every channel they produce.
type Node struct {
	config   *Config
	settings *p2p.Settings
	log      *log.Logger

	pool      *p2p.Threadpool
	acceptor  *p2p.Acceptor
	connector *p2p.Connector
	channels  *ChannelSet
	nonces    *p2p.SentNonces
	events    *EventBus

	mu      sync.Mutex
	running bool
	stopped bool
	stop    chan struct{}
}

// New creates a node from config. Nothing touches the network until Start.
func New(config *Config) (*Node, error) {
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	settings, err := config.Settings()
	if err != nil {
		return nil, err
	}
	logger := config.Logger().With("node", config.Name)
	settings.Logger = logger.Module("p2p")
	return newNode(config, settings, logger), nil
}

// NewWithSettings creates a node whose transport settings are supplied by
// the caller instead of being derived from config. Tests use it to inject
// clocks and loggers.
func NewWithSettings(config *Config, settings *p2p.Settings) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	logger := settings.Logger
	if logger == nil {
		logger = config.Logger().With("node", config.Name)
	}
	return newNode(config, settings, logger), nil
}

func newNode(config *Config, settings *p2p.Settings, logger *log.Logger) *Node {
	return &Node{
		config:   config,
		settings: settings,
		log:      logger.Module("node"),
		channels: NewChannelSet(config.MaxConnections),
		nonces:   p2p.NewSentNonces(sentNonceCapacity),
		events:   NewEventBus(eventBuffer),
		stop:     make(chan struct{}),
	}
}

// Start binds the listener when inbound connections are enabled, starts
// accepting and dials the configured peers. A node cannot be restarted
// after Stop.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return ErrNodeStopped
	}
	if n.running {
		return ErrNodeRunning
	}

	network, _ := LookupNetwork(n.config.Network)
	n.log.Info("starting node", "network", network.Name, "version", n.settings.ProtocolVersion,
		"agent", n.settings.UserAgent)

	n.pool = p2p.NewThreadpool(n.settings.Threads)
	n.acceptor = p2p.NewAcceptor(n.pool, n.settings)
	n.connector = p2p.NewConnector(n.pool, n.settings)

	if n.settings.Inbound {
		bound := make(chan error, 1)
		n.acceptor.Listen(uint16(n.config.Port), func(err error) { bound <- err })
		if err := <-bound; err != nil {
			n.pool.Shutdown()
			n.pool.Join()
			return fmt.Errorf("start p2p: %w", err)
		}
		n.log.Info("listening", "addr", n.acceptor.Addr())
		n.acceptNext()
	}

	n.running = true

	for _, peer := range n.config.Peers {
		endpoint, err := p2p.ParseEndpoint(peer)
		if err != nil {
			n.log.Warn("skipping peer", "peer", peer, "err", err)
			continue
		}
		n.connectLocked(endpoint.Host, endpoint.Port, nil)
	}
	return nil
}

// Stop cancels the acceptor and connector, stops every channel and waits for
// the threadpool to drain. It must not run on a threadpool worker; Connect
// handlers are safe because they run on their own goroutines.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	n.stopped = true
	n.mu.Unlock()

	n.log.Info("stopping node")

	n.acceptor.Cancel()
	n.connector.Cancel()
	for _, ch := range n.channels.Close() {
		ch.Stop(ErrNodeStopped)
	}

	n.pool.Shutdown()
	err := n.pool.Join()
	n.events.Close()
	close(n.stop)
	n.log.Info("node stopped", "metrics", metrics.DefaultRegistry.Snapshot())
	return err
}

// Wait blocks until the node is stopped.
func (n *Node) Wait() {
	<-n.stop
}

// Connect dials host:port and runs the version handshake. The handler, if
// not nil, receives the channel once the handshake succeeds or the error
// that ended the attempt. It runs on its own goroutine, outside the
// threadpool, so it may call back into the node, Stop included.
func (n *Node) Connect(host string, port uint16, handler func(error, *p2p.Channel)) {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		report(handler, ErrNodeStopped, nil)
		return
	}
	n.connectLocked(host, port, handler)
	n.mu.Unlock()
}

func (n *Node) connectLocked(host string, port uint16, handler func(error, *p2p.Channel)) {
	n.log.Debug("connecting", "host", host, "port", port)
	n.connector.Connect(host, port, func(err error, ch *p2p.Channel) {
		if err != nil {
			n.log.Warn("connect failed", "host", host, "port", port, "err", err)
			report(handler, err, nil)
			return
		}
		n.attach(ch, handler)
	})
}

// report hands a connect result to a caller's handler off the threadpool.
func report(handler func(error, *p2p.Channel), err error, ch *p2p.Channel) {
	if handler != nil {
		go handler(err, ch)
	}
}

// Addr returns the bound listen address, or nil when not listening.
func (n *Node) Addr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.acceptor == nil {
		return nil
	}
	return n.acceptor.Addr()
}

// Channels returns the channels currently tracked by the node.
func (n *Node) Channels() []*p2p.Channel {
	return n.channels.Channels()
}

// Events returns the bus on which channel lifecycle events are published.
func (n *Node) Events() *EventBus {
	return n.events
}

// Config returns the node configuration.
func (n *Node) Config() *Config {
	return n.config
}

// Settings returns the transport settings.
func (n *Node) Settings() *p2p.Settings {
	return n.settings
}

// Running reports whether the node is currently running.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

func (n *Node) acceptNext() {
	n.acceptor.Accept(n.handleAccept)
}

func (n *Node) handleAccept(err error, ch *p2p.Channel) {
	if errors.Is(err, p2p.ErrCanceled) {
		return
	}
	if err != nil {
		n.log.Warn("accept failed", "err", err)
		n.clock().AfterFunc(acceptRetryDelay, n.acceptNext)
		return
	}
	n.attach(ch, nil)
	n.acceptNext()
}

// attach registers ch, starts the version handshake and, once it succeeds,
// the protocols the negotiated version supports.
func (n *Node) attach(ch *p2p.Channel, handler func(error, *p2p.Channel)) {
	fail := func(err error) { report(handler, err, nil) }
	if err := n.channels.Add(ch); err != nil {
		n.log.Debug("rejecting channel", "peer", ch, "err", err)
		ch.Stop(err)
		fail(err)
		return
	}
	ch.SubscribeStop(func(reason error) {
		n.channels.Remove(ch.Nonce())
		n.log.Debug("channel stopped", "peer", ch, "reason", reason)
		n.events.Publish(channelEvent(EventPeerDisconnected, ch, reason))
	})

	version := p2p.NewProtocolVersion(n.pool, ch, n.nonces)
	version.Start(func(err error) {
		if err != nil {
			n.log.Debug("handshake failed", "peer", ch, "err", err)
			n.events.Publish(channelEvent(EventHandshakeFailed, ch, err))
			fail(err)
			return
		}
		negotiated := ch.Version()
		if negotiated >= wire.BIP0031Version {
			p2p.NewProtocolPing(n.pool, ch).Start()
		}
		if negotiated >= message.RelayVersion {
			p2p.NewProtocolFilter(n.pool, ch).Start()
		}
		peer := version.Peer()
		n.log.Info("peer connected", "peer", ch, "inbound", ch.Inbound(),
			"version", negotiated, "agent", peer.UserAgent)
		ev := channelEvent(EventPeerConnected, ch, nil)
		ev.UserAgent = peer.UserAgent
		n.events.Publish(ev)
		report(handler, nil, ch)
	})
	if err := ch.Start(); err != nil {
		// Already stopped: the handshake reported the reason.
		n.log.Debug("channel not started", "peer", ch, "err", err)
	}
}

func (n *Node) clock() mclock.Clock {
	if n.settings.Clock == nil {
		return mclock.System{}
	}
	return n.settings.Clock
}

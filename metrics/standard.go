package metrics

// Pre-defined metrics for the p2p layer. They live in DefaultRegistry so
// acceptors, connectors and channels can record without a registry being
// threaded through every constructor.

var (
	// ---- Inbound ----

	// AcceptSuccess counts inbound connections turned into channels.
	AcceptSuccess = DefaultRegistry.Counter("p2p.accept.success")
	// AcceptFailure counts accept calls that completed with an error,
	// including cancellation.
	AcceptFailure = DefaultRegistry.Counter("p2p.accept.failure")

	// ---- Outbound ----

	// ConnectSuccess counts outbound connect calls that produced a channel.
	ConnectSuccess = DefaultRegistry.Counter("p2p.connect.success")
	// ConnectTimeout counts connect calls that lost the race to the deadline.
	ConnectTimeout = DefaultRegistry.Counter("p2p.connect.timeout")
	// ConnectFailure counts connect calls that failed to resolve, exhausted
	// their candidates or were canceled.
	ConnectFailure = DefaultRegistry.Counter("p2p.connect.failure")
	// ConnectLatency records time to a successful connect in milliseconds.
	ConnectLatency = DefaultRegistry.Histogram("p2p.connect.latency_ms")

	// ---- Channels ----

	// ChannelsOpen tracks channels that have started and not yet stopped.
	ChannelsOpen = DefaultRegistry.Gauge("p2p.channels")
	// MessagesReceived counts framed messages read from peers.
	MessagesReceived = DefaultRegistry.Counter("p2p.messages.received")
	// MessagesSent counts framed messages written to peers.
	MessagesSent = DefaultRegistry.Counter("p2p.messages.sent")
	// HandshakesCompleted counts version handshakes that negotiated a
	// protocol version.
	HandshakesCompleted = DefaultRegistry.Counter("p2p.handshakes")
)

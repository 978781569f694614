package p2p

import "errors"

// Transport outcomes reported through accept, connect and listen handlers.
var (
	// ErrResolveFailed is returned when a host yields no candidate addresses.
	ErrResolveFailed = errors.New("p2p: resolve failed")

	// ErrConnectFailed is returned when every candidate address refused or
	// failed the connection.
	ErrConnectFailed = errors.New("p2p: connect failed")

	// ErrBindFailed is returned when the acceptor cannot bind its port.
	ErrBindFailed = errors.New("p2p: bind failed")

	// ErrAcceptFailed is returned when the listener fails to accept.
	ErrAcceptFailed = errors.New("p2p: accept failed")

	// ErrTimedOut is returned when a deadline elapses first.
	ErrTimedOut = errors.New("p2p: timed out")

	// ErrCanceled is returned to handlers outstanding at Cancel.
	ErrCanceled = errors.New("p2p: operation canceled")
)

// Lifecycle errors.
var (
	// ErrAlreadyStopped is returned when starting a stopped component.
	ErrAlreadyStopped = errors.New("p2p: already stopped")

	// ErrOperationNotSupported is returned for calls the component's state
	// or settings do not permit, such as Accept before Listen.
	ErrOperationNotSupported = errors.New("p2p: operation not supported")
)

// Channel errors.
var (
	// ErrChannelStopped is the stop reason of a channel stopped without an
	// explicit cause, and the result of sending on a stopped channel.
	ErrChannelStopped = errors.New("p2p: channel stopped")

	// ErrChannelTimeout stops a channel that received nothing for the
	// configured inactivity period.
	ErrChannelTimeout = errors.New("p2p: channel inactivity timeout")

	// ErrBadMessage stops a channel whose peer sent a payload that does not
	// decode as its command.
	ErrBadMessage = errors.New("p2p: malformed message")

	// ErrProtocolViolation stops a channel whose peer broke a protocol rule.
	ErrProtocolViolation = errors.New("p2p: protocol violation")
)

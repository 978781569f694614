package message

import (
	"io"

	"github.com/btcsuite/btcd/wire"
)

// Protocol version levels that change the version message layout or the
// messages a peer understands.
const (
	// RelayVersion (BIP37) adds the trailing relay flag and bloom filters.
	RelayVersion uint32 = wire.BIP0037Version

	// MaxUserAgentLen bounds the user agent string.
	MaxUserAgentLen = wire.MaxUserAgentLen
)

// Version opens the handshake and advertises the sender's protocol version,
// services and chain height.
type Version struct {
	ProtocolVersion uint32
	Services        uint64
	Timestamp       int64
	AddrReceiver    NetAddress
	AddrSender      NetAddress
	Nonce           uint64
	UserAgent       string
	StartHeight     uint32
	Relay           bool
}

// Command returns "version".
func (m *Version) Command() string { return wire.CmdVersion }

// FromData decodes the message from a raw payload.
func (m *Version) FromData(data []byte) error { return FromData(m, data) }

// FromReader decodes the message from r. The relay flag is read only for
// peers at RelayVersion or above and defaults to true when they omit it.
func (m *Version) FromReader(r io.Reader) error {
	return decodeInto(m, r, func(src *Reader) {
		m.ProtocolVersion = src.Uint32("version.value")
		m.Services = src.Uint64("version.services")
		m.Timestamp = src.Int64("version.timestamp")
		m.AddrReceiver.decode(src, "version.addr_recv")
		m.AddrSender.decode(src, "version.addr_from")
		m.Nonce = src.Uint64("version.nonce")
		m.UserAgent = src.VarString(MaxUserAgentLen, "version.user_agent")
		m.StartHeight = src.Uint32("version.start_height")
		if m.ProtocolVersion >= RelayVersion {
			m.Relay = src.OptionalBool("version.relay", true)
		}
	})
}

// ToData encodes the message.
func (m *Version) ToData() []byte { return ToData(m) }

// ToWriter encodes the message into w.
func (m *Version) ToWriter(w io.Writer) error {
	return encodeFrom(w, func(sink *Writer) {
		sink.Uint32(m.ProtocolVersion)
		sink.Uint64(m.Services)
		sink.Int64(m.Timestamp)
		m.AddrReceiver.encode(sink)
		m.AddrSender.encode(sink)
		sink.Uint64(m.Nonce)
		sink.VarString(m.UserAgent)
		sink.Uint32(m.StartHeight)
		if m.ProtocolVersion >= RelayVersion {
			sink.Bool(m.Relay)
		}
	})
}

// SerializedSize returns the encoded payload length.
func (m *Version) SerializedSize() uint64 {
	size := uint64(4+8+8+2*netAddressSize+8+4) + VarBytesSize(len(m.UserAgent))
	if m.ProtocolVersion >= RelayVersion {
		size++
	}
	return size
}

// IsValid reports whether a protocol version is present and the user agent
// is within bounds.
func (m *Version) IsValid() bool {
	return m.ProtocolVersion != 0 && len(m.UserAgent) <= MaxUserAgentLen
}

// Reset clears every field.
func (m *Version) Reset() { *m = Version{} }

// Equal reports field-wise equality.
func (m *Version) Equal(other *Version) bool {
	if m == nil || other == nil {
		return m == other
	}
	return *m == *other
}

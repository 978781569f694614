package message

import (
	"io"

	"github.com/btcsuite/btcd/wire"
)

// Ping carries a nonce the remote peer must echo in a Pong (BIP31).
type Ping struct {
	Nonce uint64
	valid bool
}

// NewPing returns a ping with the given nonce.
func NewPing(nonce uint64) *Ping { return &Ping{Nonce: nonce, valid: true} }

// Command returns "ping".
func (m *Ping) Command() string { return wire.CmdPing }

// FromData decodes the message from a raw payload.
func (m *Ping) FromData(data []byte) error { return FromData(m, data) }

// FromReader decodes the message from r.
func (m *Ping) FromReader(r io.Reader) error {
	return decodeInto(m, r, func(src *Reader) {
		m.Nonce = src.Uint64("ping.nonce")
		m.valid = src.Err() == nil
	})
}

// ToData encodes the message.
func (m *Ping) ToData() []byte { return ToData(m) }

// ToWriter encodes the message into w.
func (m *Ping) ToWriter(w io.Writer) error {
	return encodeFrom(w, func(sink *Writer) { sink.Uint64(m.Nonce) })
}

// SerializedSize is always 8.
func (m *Ping) SerializedSize() uint64 { return 8 }

// IsValid reports whether the ping was constructed or decoded since the
// last Reset.
func (m *Ping) IsValid() bool { return m.valid }

// Reset zeroes the nonce and marks the message invalid.
func (m *Ping) Reset() { *m = Ping{} }

// Equal compares nonces.
func (m *Ping) Equal(other *Ping) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.Nonce == other.Nonce
}

// Pong answers a Ping with the same nonce.
type Pong struct {
	Nonce uint64
	valid bool
}

// NewPong returns a pong echoing nonce.
func NewPong(nonce uint64) *Pong { return &Pong{Nonce: nonce, valid: true} }

// Command returns "pong".
func (m *Pong) Command() string { return wire.CmdPong }

// FromData decodes the message from a raw payload.
func (m *Pong) FromData(data []byte) error { return FromData(m, data) }

// FromReader decodes the message from r.
func (m *Pong) FromReader(r io.Reader) error {
	return decodeInto(m, r, func(src *Reader) {
		m.Nonce = src.Uint64("pong.nonce")
		m.valid = src.Err() == nil
	})
}

// ToData encodes the message.
func (m *Pong) ToData() []byte { return ToData(m) }

// ToWriter encodes the message into w.
func (m *Pong) ToWriter(w io.Writer) error {
	return encodeFrom(w, func(sink *Writer) { sink.Uint64(m.Nonce) })
}

// SerializedSize is always 8.
func (m *Pong) SerializedSize() uint64 { return 8 }

// IsValid reports whether the pong was constructed or decoded since the
// last Reset.
func (m *Pong) IsValid() bool { return m.valid }

// Reset zeroes the nonce and marks the message invalid.
func (m *Pong) Reset() { *m = Pong{} }

// Equal compares nonces.
func (m *Pong) Equal(other *Pong) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.Nonce == other.Nonce
}

package message

import (
	"io"

	"github.com/btcsuite/btcd/wire"
)

// emptyPayload implements the codec for messages whose payload is empty.
// Such a message is valid once constructed or decoded and invalid after
// Reset, like every other message type.
type emptyPayload struct {
	valid bool
}

// FromReader consumes nothing; any bytes following an empty payload are
// left to the framing layer, which bounds the payload by its length field.
func (m *emptyPayload) FromReader(io.Reader) error {
	m.valid = true
	return nil
}

// ToWriter writes nothing.
func (m *emptyPayload) ToWriter(io.Writer) error { return nil }

// SerializedSize is always zero.
func (m *emptyPayload) SerializedSize() uint64 { return 0 }

// IsValid reports whether the message was constructed or decoded since the
// last Reset.
func (m *emptyPayload) IsValid() bool { return m.valid }

// Reset marks the message invalid.
func (m *emptyPayload) Reset() { m.valid = false }

// VerAck acknowledges a peer's version message.
type VerAck struct{ emptyPayload }

// NewVerAck returns a valid verack message.
func NewVerAck() *VerAck { return &VerAck{emptyPayload{valid: true}} }

// Command returns "verack".
func (m *VerAck) Command() string { return wire.CmdVerAck }

// FromData decodes the message from a raw payload.
func (m *VerAck) FromData(data []byte) error { return FromData(m, data) }

// ToData encodes the message.
func (m *VerAck) ToData() []byte { return ToData(m) }

// Equal reports whether both messages are verack messages.
func (m *VerAck) Equal(other *VerAck) bool { return (m == nil) == (other == nil) }

// GetAddress requests known peer addresses.
type GetAddress struct{ emptyPayload }

// NewGetAddress returns a valid getaddr message.
func NewGetAddress() *GetAddress { return &GetAddress{emptyPayload{valid: true}} }

// Command returns "getaddr".
func (m *GetAddress) Command() string { return wire.CmdGetAddr }

// FromData decodes the message from a raw payload.
func (m *GetAddress) FromData(data []byte) error { return FromData(m, data) }

// ToData encodes the message.
func (m *GetAddress) ToData() []byte { return ToData(m) }

// Equal reports whether both messages are getaddr messages.
func (m *GetAddress) Equal(other *GetAddress) bool { return (m == nil) == (other == nil) }

// FilterClear removes a previously loaded bloom filter (BIP37).
type FilterClear struct{ emptyPayload }

// NewFilterClear returns a valid filterclear message.
func NewFilterClear() *FilterClear { return &FilterClear{emptyPayload{valid: true}} }

// Command returns "filterclear".
func (m *FilterClear) Command() string { return wire.CmdFilterClear }

// FromData decodes the message from a raw payload.
func (m *FilterClear) FromData(data []byte) error { return FromData(m, data) }

// ToData encodes the message.
func (m *FilterClear) ToData() []byte { return ToData(m) }

// Equal reports whether both messages are filterclear messages.
func (m *FilterClear) Equal(other *FilterClear) bool { return (m == nil) == (other == nil) }

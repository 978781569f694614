package message

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// BIP37 limits on a loaded filter.
const (
	MaxFilterLoadFilterSize = wire.MaxFilterLoadFilterSize
	MaxFilterLoadHashFuncs  = wire.MaxFilterLoadHashFuncs
)

// BloomFlags is the nFlags byte of a filterload message. The low two bits
// select how matched outputs update the filter (BIP37); higher bits have no
// defined meaning and are carried through decoding unchanged.
type BloomFlags uint8

// Update modes defined by BIP37.
const (
	BloomUpdateNone         = BloomFlags(wire.BloomUpdateNone)
	BloomUpdateAll          = BloomFlags(wire.BloomUpdateAll)
	BloomUpdateP2PubkeyOnly = BloomFlags(wire.BloomUpdateP2PubkeyOnly)

	bloomUpdateMask BloomFlags = 0x03
)

// UpdateType returns the update mode selected by the masked low bits.
func (f BloomFlags) UpdateType() wire.BloomUpdateType {
	return wire.BloomUpdateType(f & bloomUpdateMask)
}

// Known reports whether f is exactly one of the BIP37 update modes.
func (f BloomFlags) Known() bool {
	return f <= BloomUpdateP2PubkeyOnly
}

func (f BloomFlags) String() string {
	switch f {
	case BloomUpdateNone:
		return "none"
	case BloomUpdateAll:
		return "all"
	case BloomUpdateP2PubkeyOnly:
		return "p2pubkey-only"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(f))
	}
}

// ErrFilterHashFuncs is returned when a filterload asks for more hash
// functions than BIP37 permits.
var ErrFilterHashFuncs = errors.New("message: too many filter hash functions")

// FilterLoad installs a bloom filter on the remote peer (BIP37).
//
// Wire layout: CompactSize-prefixed filter bytes, uint32 hash function
// count, uint32 tweak, one flags byte.
type FilterLoad struct {
	Filter        []byte
	HashFunctions uint32
	Tweak         uint32
	Flags         BloomFlags
}

// NewFilterLoad returns a filterload message for the given filter.
func NewFilterLoad(filter []byte, hashFuncs, tweak uint32, flags BloomFlags) *FilterLoad {
	return &FilterLoad{
		Filter:        filter,
		HashFunctions: hashFuncs,
		Tweak:         tweak,
		Flags:         flags,
	}
}

// ParseFilterLoad decodes a filterload payload.
func ParseFilterLoad(data []byte) (*FilterLoad, error) {
	m := new(FilterLoad)
	if err := m.FromData(data); err != nil {
		return m, err
	}
	return m, nil
}

// Command returns "filterload".
func (m *FilterLoad) Command() string { return wire.CmdFilterLoad }

// FromData decodes the message from a raw payload.
func (m *FilterLoad) FromData(data []byte) error { return FromData(m, data) }

// FromReader decodes the message from r.
func (m *FilterLoad) FromReader(r io.Reader) error {
	return decodeInto(m, r, func(src *Reader) {
		m.Filter = src.VarBytes(MaxFilterLoadFilterSize, "filterload.filter")
		m.HashFunctions = src.Uint32("filterload.hash_functions")
		m.Tweak = src.Uint32("filterload.tweak")
		m.Flags = BloomFlags(src.Uint8("filterload.flags"))
		if src.Err() == nil && m.HashFunctions > MaxFilterLoadHashFuncs {
			src.Fail(errors.Wrapf(ErrFilterHashFuncs, "%d > %d",
				m.HashFunctions, MaxFilterLoadHashFuncs))
		}
	})
}

// ToData encodes the message.
func (m *FilterLoad) ToData() []byte { return ToData(m) }

// ToWriter encodes the message into w.
func (m *FilterLoad) ToWriter(w io.Writer) error {
	return encodeFrom(w, func(sink *Writer) {
		sink.VarBytes(m.Filter)
		sink.Uint32(m.HashFunctions)
		sink.Uint32(m.Tweak)
		sink.Uint8(uint8(m.Flags))
	})
}

// SerializedSize returns the encoded payload length.
func (m *FilterLoad) SerializedSize() uint64 {
	return VarBytesSize(len(m.Filter)) + 4 + 4 + 1
}

// IsValid reports whether the message carries a filter within BIP37 limits.
// Unknown flag bits do not make a message invalid; see BloomFlags.
func (m *FilterLoad) IsValid() bool {
	populated := len(m.Filter) > 0 || m.HashFunctions != 0 || m.Tweak != 0 || m.Flags != 0
	return populated &&
		len(m.Filter) <= MaxFilterLoadFilterSize &&
		m.HashFunctions <= MaxFilterLoadHashFuncs
}

// Reset clears every field.
func (m *FilterLoad) Reset() {
	m.Filter = nil
	m.HashFunctions = 0
	m.Tweak = 0
	m.Flags = 0
}

// Equal reports field-wise equality. A nil and an empty filter compare equal.
func (m *FilterLoad) Equal(other *FilterLoad) bool {
	if m == nil || other == nil {
		return m == other
	}
	return bytes.Equal(m.Filter, other.Filter) &&
		m.HashFunctions == other.HashFunctions &&
		m.Tweak == other.Tweak &&
		m.Flags == other.Flags
}

// Package message implements the codec contract shared by every Bitcoin
// wire message carried on a p2p Channel, together with the handful of
// concrete messages the built-in protocols exchange.
//
// Every message type satisfies Message and additionally provides
// FromData/ToData for raw buffers and an Equal method for field-wise
// comparison. Decoding never panics on untrusted input: a malformed or
// truncated payload yields an error and leaves the message Reset.
package message

import (
	"bytes"
	"io"
)

// Message is the codec contract of a single wire message type.
type Message interface {
	// Command returns the fixed command name carried in the frame header.
	Command() string

	// FromReader decodes the payload from r. On failure the message is
	// Reset and the error describes the first field that could not be read.
	FromReader(r io.Reader) error

	// ToWriter encodes the payload into w.
	ToWriter(w io.Writer) error

	// SerializedSize is the exact encoded payload length.
	SerializedSize() uint64

	// IsValid reports whether the message holds a non-default value that
	// satisfies its structural limits.
	IsValid() bool

	// Reset returns the message to its canonical default, invalid state.
	Reset()
}

// FromData decodes m from a raw payload buffer.
func FromData(m Message, data []byte) error {
	return m.FromReader(bytes.NewReader(data))
}

// ToData encodes m into a freshly allocated buffer of SerializedSize bytes.
func ToData(m Message) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, m.SerializedSize()))
	// Writes to a bytes.Buffer cannot fail.
	_ = m.ToWriter(buf)
	return buf.Bytes()
}

// decodeInto resets m, runs decode and resets again if decode failed, so
// callers never observe a partially populated message.
func decodeInto(m Message, r io.Reader, decode func(*Reader)) error {
	m.Reset()
	src := NewReader(r)
	decode(src)
	if err := src.Err(); err != nil {
		m.Reset()
		return err
	}
	return nil
}

// encodeFrom runs encode against a Writer on w.
func encodeFrom(w io.Writer, encode func(*Writer)) error {
	sink := NewWriter(w)
	encode(sink)
	return sink.Err()
}

package message

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// Writer encodes little-endian wire fields into a stream with a sticky
// error, mirroring Reader.
type Writer struct {
	w   io.Writer
	err error
	buf [8]byte
}

// NewWriter returns a Writer producing into w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered, or nil.
func (w *Writer) Err() error { return w.err }

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = errors.Wrap(err, "message: write")
	}
}

// Uint8 writes one byte.
func (w *Writer) Uint8(v uint8) {
	w.buf[0] = v
	w.write(w.buf[:1])
}

// Bool writes a boolean as a single 0/1 byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
}

// Uint16BE writes a big-endian uint16.
func (w *Writer) Uint16BE(v uint16) {
	binary.BigEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
}

// Uint32 writes a little-endian uint32.
func (w *Writer) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

// Uint64 writes a little-endian uint64.
func (w *Writer) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.write(w.buf[:8])
}

// Int64 writes a little-endian int64.
func (w *Writer) Int64(v int64) { w.Uint64(uint64(v)) }

// Bytes writes b verbatim.
func (w *Writer) Bytes(b []byte) { w.write(b) }

// VarBytes writes a CompactSize length prefix followed by b.
func (w *Writer) VarBytes(b []byte) {
	if w.err != nil {
		return
	}
	if err := wire.WriteVarBytes(w.w, 0, b); err != nil {
		w.err = errors.Wrap(err, "message: write var bytes")
	}
}

// VarString writes a CompactSize-prefixed string.
func (w *Writer) VarString(s string) {
	w.VarBytes([]byte(s))
}

// VarBytesSize returns the encoded size of a CompactSize-prefixed field of
// n bytes.
func VarBytesSize(n int) uint64 {
	return uint64(wire.VarIntSerializeSize(uint64(n))) + uint64(n)
}

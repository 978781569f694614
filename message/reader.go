package message

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// Reader decodes little-endian wire fields from a stream. The first failure
// is sticky: later reads are no-ops returning zero values and Err reports
// the original failure annotated with the field being read.
type Reader struct {
	r   io.Reader
	err error
	buf [8]byte
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first error encountered, or nil.
func (r *Reader) Err() error { return r.err }

func (r *Reader) fill(n int, field string) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		r.err = errors.Wrapf(noEOF(err), "message: read %s", field)
		return false
	}
	return true
}

// Uint8 reads one byte.
func (r *Reader) Uint8(field string) uint8 {
	if !r.fill(1, field) {
		return 0
	}
	return r.buf[0]
}

// Bool reads one byte as a boolean; any non-zero value is true.
func (r *Reader) Bool(field string) bool {
	return r.Uint8(field) != 0
}

// OptionalBool reads a trailing boolean that older peers omit. A clean end
// of stream yields def without recording an error.
func (r *Reader) OptionalBool(field string, def bool) bool {
	if r.err != nil {
		return def
	}
	n, err := io.ReadFull(r.r, r.buf[:1])
	if n == 0 && err == io.EOF {
		return def
	}
	if err != nil {
		r.err = errors.Wrapf(noEOF(err), "message: read %s", field)
		return def
	}
	return r.buf[0] != 0
}

// Uint16BE reads a big-endian uint16, the byte order of network ports.
func (r *Reader) Uint16BE(field string) uint16 {
	if !r.fill(2, field) {
		return 0
	}
	return binary.BigEndian.Uint16(r.buf[:2])
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32(field string) uint32 {
	if !r.fill(4, field) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.buf[:4])
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64(field string) uint64 {
	if !r.fill(8, field) {
		return 0
	}
	return binary.LittleEndian.Uint64(r.buf[:8])
}

// Int64 reads a little-endian int64.
func (r *Reader) Int64(field string) int64 {
	return int64(r.Uint64(field))
}

// Bytes reads exactly n bytes.
func (r *Reader) Bytes(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r.r, out); err != nil {
		r.err = errors.Wrapf(noEOF(err), "message: read %s", field)
		return nil
	}
	return out
}

// VarBytes reads a CompactSize length prefix followed by that many bytes,
// rejecting lengths above max before allocating.
func (r *Reader) VarBytes(max uint32, field string) []byte {
	if r.err != nil {
		return nil
	}
	b, err := wire.ReadVarBytes(r.r, 0, max, field)
	if err != nil {
		r.err = errors.Wrapf(noEOF(err), "message: read %s", field)
		return nil
	}
	return b
}

// VarString reads a CompactSize-prefixed string of at most max bytes.
func (r *Reader) VarString(max uint32, field string) string {
	return string(r.VarBytes(max, field))
}

// Fail records err as the reader's failure if none is set yet. Decoders use
// it for semantic checks that follow a successful read.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// noEOF converts a bare io.EOF into io.ErrUnexpectedEOF: once decoding has
// started, running out of input always means a truncated payload.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

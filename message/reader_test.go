package message

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader_StickyError(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	require.Equal(t, uint32(0), r.Uint32("first"))
	require.ErrorIs(t, r.Err(), io.ErrUnexpectedEOF)
	require.Contains(t, r.Err().Error(), "first")

	// Later reads do not replace the original failure.
	r.Uint8("second")
	require.Contains(t, r.Err().Error(), "first")
}

func TestReader_EmptyInputIsTruncation(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	r.Uint64("nonce")
	require.ErrorIs(t, r.Err(), io.ErrUnexpectedEOF)
}

func TestReader_OptionalBool(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	require.True(t, r.OptionalBool("relay", true))
	require.NoError(t, r.Err())

	r = NewReader(bytes.NewReader([]byte{0}))
	require.False(t, r.OptionalBool("relay", true))
	require.NoError(t, r.Err())
}

func TestWriterReader_Fields(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Uint8(0x7f)
	w.Bool(true)
	w.Uint16BE(8333)
	w.Uint32(0xd9b4bef9)
	w.Uint64(1 << 40)
	w.Int64(-5)
	w.VarString("hello")
	require.NoError(t, w.Err())
	require.Equal(t, []byte{0x20, 0x8d}, buf.Bytes()[2:4])

	r := NewReader(&buf)
	require.Equal(t, uint8(0x7f), r.Uint8("a"))
	require.True(t, r.Bool("b"))
	require.Equal(t, uint16(8333), r.Uint16BE("c"))
	require.Equal(t, uint32(0xd9b4bef9), r.Uint32("d"))
	require.Equal(t, uint64(1<<40), r.Uint64("e"))
	require.Equal(t, int64(-5), r.Int64("f"))
	require.Equal(t, "hello", r.VarString(16, "g"))
	require.NoError(t, r.Err())
}

func TestReader_VarBytesLimit(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).VarBytes(make([]byte, 10))
	r := NewReader(&buf)
	require.Nil(t, r.VarBytes(9, "payload"))
	require.Error(t, r.Err())
}

func TestVarBytesSize(t *testing.T) {
	require.Equal(t, uint64(1), VarBytesSize(0))
	require.Equal(t, uint64(1+252), VarBytesSize(252))
	require.Equal(t, uint64(3+253), VarBytesSize(253))
}

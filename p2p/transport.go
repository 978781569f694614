package p2p

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Frame header layout: magic, NUL-padded command, payload length and
// checksum.
const (
	HeaderSize     = 24
	CommandSize    = wire.CommandSize
	MaxPayloadSize = wire.MaxMessagePayload
	checksumSize   = 4
)

var (
	// ErrBadMagic is returned for frames of a different network.
	ErrBadMagic = errors.New("p2p: bad network magic")

	// ErrBadChecksum is returned when the payload does not match the header
	// checksum.
	ErrBadChecksum = errors.New("p2p: bad checksum")

	// ErrFrameTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrFrameTooLarge = errors.New("p2p: frame too large")

	// ErrBadCommand is returned for commands that are too long, not
	// NUL-padded or not printable ASCII.
	ErrBadCommand = errors.New("p2p: bad command")
)

// FrameTransport reads and writes Bitcoin wire frames on a connection.
// Reads and writes are independently serialized, so one reader and any
// number of writers may use it concurrently.
type FrameTransport struct {
	conn  net.Conn
	magic wire.BitcoinNet
	rmu   sync.Mutex
	wmu   sync.Mutex
}

// NewFrameTransport wraps conn for the network identified by magic.
func NewFrameTransport(conn net.Conn, magic wire.BitcoinNet) *FrameTransport {
	return &FrameTransport{conn: conn, magic: magic}
}

// ReadMsg reads a single frame and verifies its header.
func (t *FrameTransport) ReadMsg() (Msg, error) {
	t.rmu.Lock()
	defer t.rmu.Unlock()

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
		return Msg{}, err
	}
	if magic := wire.BitcoinNet(binary.LittleEndian.Uint32(hdr[0:4])); magic != t.magic {
		return Msg{}, fmt.Errorf("%w: %v", ErrBadMagic, magic)
	}
	command, err := parseCommand(hdr[4 : 4+CommandSize])
	if err != nil {
		return Msg{}, err
	}
	length := binary.LittleEndian.Uint32(hdr[16:20])
	if length > MaxPayloadSize {
		return Msg{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		return Msg{}, err
	}
	if sum := chainhash.DoubleHashB(payload)[:checksumSize]; !bytes.Equal(sum, hdr[20:24]) {
		return Msg{}, fmt.Errorf("%w: command %s", ErrBadChecksum, command)
	}
	return Msg{Command: command, Payload: payload}, nil
}

// WriteMsg writes msg as a single frame.
func (t *FrameTransport) WriteMsg(msg Msg) error {
	if len(msg.Command) == 0 || len(msg.Command) > CommandSize {
		return fmt.Errorf("%w: %q", ErrBadCommand, msg.Command)
	}
	if len(msg.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg.Payload))
	}

	frame := make([]byte, HeaderSize+len(msg.Payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(t.magic))
	copy(frame[4:4+CommandSize], msg.Command)
	binary.LittleEndian.PutUint32(frame[16:20], uint32(len(msg.Payload)))
	copy(frame[20:24], chainhash.DoubleHashB(msg.Payload)[:checksumSize])
	copy(frame[HeaderSize:], msg.Payload)

	t.wmu.Lock()
	defer t.wmu.Unlock()
	_, err := t.conn.Write(frame)
	return err
}

// Close closes the underlying connection.
func (t *FrameTransport) Close() error {
	return t.conn.Close()
}

// parseCommand extracts the command from its NUL-padded field.
func parseCommand(field []byte) (string, error) {
	n := bytes.IndexByte(field, 0)
	if n < 0 {
		n = len(field)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty", ErrBadCommand)
	}
	for _, b := range field[n:] {
		if b != 0 {
			return "", fmt.Errorf("%w: %q not NUL-padded", ErrBadCommand, field)
		}
	}
	for _, b := range field[:n] {
		if b < 0x20 || b > 0x7e {
			return "", fmt.Errorf("%w: non-printable byte 0x%02x", ErrBadCommand, b)
		}
	}
	return string(field[:n]), nil
}

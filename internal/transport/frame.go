// Package transport carries relay frames over TCP. A frame is a 4 byte
// big-endian payload length followed by the payload.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

const (
	frameHeaderLength = 4

	// DefaultMaxFrameSize bounds a single frame when no limit is configured.
	DefaultMaxFrameSize = 64 * 1024 * 1024
)

// ErrFrameTooLarge is returned for frames above the configured maximum.
var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, frameHeaderLength, frameHeaderLength+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload))) // #nosec G115 -- checked above
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r. A clean end of stream before the header
// is reported as io.EOF.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if uint64(length) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrFrameTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// Conn is a framed connection. Writes are serialised; reads must come from a
// single goroutine.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	maxSize int

	writeMu sync.Mutex
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn, maxSize int) *Conn {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Conn{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		maxSize: maxSize,
	}
}

// Dial connects to a receiver.
func Dial(ctx context.Context, addr string, maxSize int) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(conn, maxSize), nil
}

// Listen opens a TCP listener for receivers.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// WriteFrame writes one frame.
func (c *Conn) WriteFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.conn, payload)
}

// ReadFrame reads one frame.
func (c *Conn) ReadFrame() ([]byte, error) {
	return ReadFrame(c.reader, c.maxSize)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

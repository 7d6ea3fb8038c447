package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// Sentinel errors surfaced by capture sources. The authenticator maps these
// to user-facing failure reasons.
var (
	ErrPermissionDenied = errors.New("audio: capture permission denied")
	ErrDeviceNotFound   = errors.New("audio: capture device not found")
)

// Source provides live PCM audio as normalized float32 samples in
// [-1.0, 1.0]. A source is an exclusive resource: it must be opened before
// reading and closed on every exit path. The capture device behind a source
// must run with echo cancellation, auto gain, and noise suppression
// disabled; that processing distorts the acoustic signal enough to break
// decoding.
type Source interface {
	// Open acquires the capture device.
	Open(ctx context.Context) error
	// ReadFrame fills buf with samples and returns the count read.
	// io.EOF signals the end of the stream.
	ReadFrame(buf []float32) (int, error)
	// Close releases the capture device. Safe to call more than once.
	Close() error
}

// ReaderSource adapts a PCM16LE byte stream (a pipe from a capture tool,
// a recorded file) into a Source.
type ReaderSource struct {
	r      io.Reader
	closer io.Closer // optional

	opened bool
	mu     sync.Mutex
}

// NewReaderSource wraps an io.Reader producing little-endian 16-bit mono
// PCM. If the reader is also an io.Closer it is closed with the source.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{r: r}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Open marks the source as acquired.
func (s *ReaderSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r == nil {
		return ErrDeviceNotFound
	}
	s.opened = true
	return nil
}

// ReadFrame reads up to len(buf) samples from the underlying stream.
func (s *ReaderSource) ReadFrame(buf []float32) (int, error) {
	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return 0, fmt.Errorf("source not open")
	}

	raw := make([]byte, len(buf)*2)
	n, err := io.ReadFull(s.r, raw)
	samples := n / 2
	decodePCM16(raw[:samples*2], buf)

	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if samples > 0 && err == io.EOF {
		// Deliver the final partial frame; EOF surfaces on the next read.
		return samples, nil
	}
	return samples, err
}

// Close releases the underlying reader if it is closable.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opened = false
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}

// UDPSource receives PCM16LE datagrams from a remote capture device.
// Datagrams may arrive fragmented relative to the frame size; leftover
// bytes carry over to the next read.
type UDPSource struct {
	addr string

	conn     *net.UDPConn
	leftover []byte
	buf      []byte

	mu sync.Mutex
}

// NewUDPSource creates a source listening on the given address
// (e.g. "0.0.0.0:9999").
func NewUDPSource(addr string) *UDPSource {
	return &UDPSource{
		addr: addr,
		buf:  make([]byte, 65536),
	}
}

// Open binds the UDP socket.
func (s *UDPSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", s.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.conn = conn
	return nil
}

// ReadFrame fills buf from received datagrams, blocking until enough bytes
// arrive or the socket closes.
func (s *UDPSource) ReadFrame(buf []float32) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("source not open")
	}

	need := len(buf) * 2
	for len(s.leftover) < need {
		n, _, err := conn.ReadFromUDP(s.buf)
		if err != nil {
			if len(s.leftover) >= 2 {
				break // drain what we have
			}
			return 0, io.EOF
		}
		s.leftover = append(s.leftover, s.buf[:n]...)
	}

	avail := len(s.leftover) / 2
	if avail > len(buf) {
		avail = len(buf)
	}
	decodePCM16(s.leftover[:avail*2], buf)
	s.leftover = s.leftover[avail*2:]

	return avail, nil
}

// Close shuts the socket down, unblocking any pending read.
func (s *UDPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// decodePCM16 converts little-endian 16-bit PCM bytes into normalized
// float32 samples.
func decodePCM16(raw []byte, out []float32) {
	for i := 0; i+1 < len(raw); i += 2 {
		sample := int16(raw[i]) | int16(raw[i+1])<<8
		out[i/2] = float32(sample) / 32768.0
	}
}

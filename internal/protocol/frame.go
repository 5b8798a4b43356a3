package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameHeaderSize is the length of the big-endian uint32 prefix on every frame.
const FrameHeaderSize = 4

// DefaultMaxFrameSize bounds frame payloads when no explicit limit is given.
const DefaultMaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when a frame's declared length exceeds the limit.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// FrameReader reads length-prefixed frames from a byte stream.
type FrameReader struct {
	r       *bufio.Reader
	maxSize int
	header  [FrameHeaderSize]byte
}

// NewFrameReader wraps r. maxSize <= 0 selects DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 4096), maxSize: maxSize}
}

// ReadFrame returns the next frame payload.
//
// Postcondition: Returns io.EOF only on a clean end of stream between frames.
// A zero-length or oversized frame yields an error wrapping ErrMalformed.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(f.r, f.header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("reading frame header: %w", err)
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(f.header[:])
	if n == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	if uint64(n) > uint64(f.maxSize) {
		return nil, fmt.Errorf("%w: %w: %d > %d", ErrMalformed, ErrFrameTooLarge, n, f.maxSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return buf, nil
}

// WriteFrame writes payload to w with its length prefix in a single Write call.
//
// Precondition: len(payload) must fit in a uint32 and be non-zero.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	buf := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

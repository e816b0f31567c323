// Package frame serializes raw measurements as fixed-width big-endian frames.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Size is the width of one frame in bytes.
const Size = 2

// Compose joins the high and low result bytes of a measurement.
func Compose(high, low byte) uint16 {
	return uint16(high)<<8 | uint16(low)
}

func Encode(v uint16) [Size]byte {
	var b [Size]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b
}

func Decode(b []byte) (uint16, error) {
	if len(b) != Size {
		return 0, fmt.Errorf("frame: got %d bytes, want %d", len(b), Size)
	}
	return binary.BigEndian.Uint16(b), nil
}

// Flusher is a byte sink that can push buffered bytes to its consumer.
type Flusher interface {
	io.Writer
	Flush() error
}

// Encoder writes one frame per Emit and flushes right after it.
type Encoder struct {
	w      Flusher
	frames uint64
}

func NewEncoder(w Flusher) *Encoder {
	return &Encoder{w: w}
}

// Emit writes v with a single Write call and flushes the sink.
func (e *Encoder) Emit(v uint16) error {
	b := Encode(v)
	n, err := e.w.Write(b[:])
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if n != Size {
		return fmt.Errorf("write frame: %w", io.ErrShortWrite)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	e.frames++
	return nil
}

// Frames returns the number of frames emitted so far.
func (e *Encoder) Frames() uint64 { return e.frames }

package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for v := 0; v <= 0xFFFF; v++ {
		b := Encode(uint16(v))
		if got := Compose(b[0], b[1]); got != uint16(v) {
			t.Fatalf("Compose(Encode(%d)) = %d", v, got)
		}
		got, err := Decode(b[:])
		if err != nil || got != uint16(v) {
			t.Fatalf("Decode(Encode(%d)) = %d, %v", v, got, err)
		}
	}
}

func TestEncodeIsBigEndian(t *testing.T) {
	assert.Equal(t, [2]byte{0x12, 0x34}, Encode(0x1234))
	assert.Equal(t, [2]byte{0x00, 0x01}, Encode(1))
	assert.Equal(t, uint16(3*256+7), Compose(3, 7))
}

func TestDecodeRejectsWrongWidth(t *testing.T) {
	_, err := Decode([]byte{1})
	assert.Error(t, err)
	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

// countingFlusher records what was visible downstream at each flush.
type countingFlusher struct {
	*bufio.Writer
	out     *bytes.Buffer
	flushes []int
}

func (c *countingFlusher) Flush() error {
	if err := c.Writer.Flush(); err != nil {
		return err
	}
	c.flushes = append(c.flushes, c.out.Len())
	return nil
}

func TestEmitFlushesEveryFrame(t *testing.T) {
	var out bytes.Buffer
	cf := &countingFlusher{Writer: bufio.NewWriter(&out), out: &out}
	enc := NewEncoder(cf)

	for _, v := range []uint16{0x0102, 0xFFFE, 7} {
		require.NoError(t, enc.Emit(v))
	}
	assert.Equal(t, []byte{0x01, 0x02, 0xFF, 0xFE, 0x00, 0x07}, out.Bytes())
	assert.Equal(t, []int{2, 4, 6}, cf.flushes)
	assert.Equal(t, uint64(3), enc.Frames())
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return 1, nil }
func (shortWriter) Flush() error                { return nil }

type failingWriter struct{ err error }

func (f failingWriter) Write(p []byte) (int, error) { return 0, f.err }
func (f failingWriter) Flush() error                { return nil }

func TestEmitErrors(t *testing.T) {
	enc := NewEncoder(shortWriter{})
	assert.ErrorIs(t, enc.Emit(1), io.ErrShortWrite)
	assert.Equal(t, uint64(0), enc.Frames())

	errPipe := errors.New("broken pipe")
	enc = NewEncoder(failingWriter{err: errPipe})
	assert.ErrorIs(t, enc.Emit(1), errPipe)
}

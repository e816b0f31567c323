package console

import (
	"bufio"
	"io"
	"os"

	"github.com/ericogr/vcnl4020-stream/pkg/output"
)

// ConsoleOutput streams raw frames to standard output.
type ConsoleOutput struct {
	w *bufio.Writer
}

func NewConsole() output.Sink { return NewWriter(os.Stdout) }

// NewWriter streams to w instead of standard output.
func NewWriter(w io.Writer) output.Sink {
	return &ConsoleOutput{w: bufio.NewWriter(w)}
}

func (c *ConsoleOutput) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *ConsoleOutput) Flush() error { return c.w.Flush() }

// Close flushes pending bytes; standard output itself stays open.
func (c *ConsoleOutput) Close() error { return c.w.Flush() }

package file

import (
	"bufio"
	"fmt"
	"os"

	"github.com/ericogr/vcnl4020-stream/pkg/output"
	"go.uber.org/multierr"
)

// FileOutput appends raw frames to a file.
type FileOutput struct {
	f    *os.File
	w    *bufio.Writer
	sync bool
}

// NewFile opens path for writing. With appendMode false an existing file is
// truncated. With sync set every Flush also commits the file to disk.
func NewFile(path string, appendMode, sync bool) (output.Sink, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &FileOutput{f: f, w: bufio.NewWriter(f), sync: sync}, nil
}

func (o *FileOutput) Write(p []byte) (int, error) { return o.w.Write(p) }

func (o *FileOutput) Flush() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if o.sync {
		return o.f.Sync()
	}
	return nil
}

func (o *FileOutput) Close() error {
	return multierr.Append(o.w.Flush(), o.f.Close())
}

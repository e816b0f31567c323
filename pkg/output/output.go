package output

import (
	"io"

	"go.uber.org/multierr"
)

// Sink is an append-only byte stream that can be flushed on demand.
type Sink interface {
	io.Writer
	Flush() error
	Close() error
}

// helper constructors are in subpackages

type multi struct {
	sinks []Sink
}

// Multi returns a Sink that writes every frame to each sink in order. The
// first failing write aborts the call.
func Multi(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &multi{sinks: append([]Sink(nil), sinks...)}
}

func (m *multi) Write(p []byte) (int, error) {
	for _, s := range m.sinks {
		n, err := s.Write(p)
		if err != nil {
			return n, err
		}
		if n != len(p) {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}

func (m *multi) Flush() error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Flush())
	}
	return err
}

func (m *multi) Close() error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Close())
	}
	return err
}

package sensor

import (
	"errors"
	"fmt"
)

// Sensor yields raw proximity measurements.
type Sensor interface {
	ReadMeasurement() (uint16, error)
	Close() error
}

// ErrReadbackMismatch is matched by every *ReadbackError.
var ErrReadbackMismatch = errors.New("register read-back mismatch")

// ReadbackError reports a configuration register that did not hold the value
// written to it.
type ReadbackError struct {
	Register byte
	Wrote    byte
	Read     byte
}

func (e *ReadbackError) Error() string {
	return fmt.Sprintf("register 0x%02X: wrote 0x%02X, read back 0x%02X", e.Register, e.Wrote, e.Read)
}

func (e *ReadbackError) Is(target error) bool { return target == ErrReadbackMismatch }

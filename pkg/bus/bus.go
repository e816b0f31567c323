package bus

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Transport is the register-level view of a two-wire bus used by device drivers.
type Transport interface {
	WriteRegister(addr uint16, reg, value byte) error
	ReadRegister(addr uint16, reg byte) (byte, error)
	ReadBlock(addr uint16, reg byte, n int) ([]byte, error)
}

// TransportError wraps any failure of a bus transaction.
type TransportError struct {
	Op   string
	Addr uint16
	Reg  byte
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("i2c %s addr=0x%02X reg=0x%02X: %v", e.Op, e.Addr, e.Reg, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// I2C implements Transport on top of a periph.io bus.
type I2C struct {
	bus    i2c.Bus
	closer i2c.BusCloser
}

// New wraps an already opened bus. The caller keeps ownership of b.
func New(b i2c.Bus) *I2C {
	return &I2C{bus: b}
}

// Open initializes the host drivers and opens the named bus ("" selects the
// first one available). The returned transport owns the bus handle.
func Open(name string) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return &I2C{bus: b, closer: b}, nil
}

func (t *I2C) String() string { return t.bus.String() }

func (t *I2C) WriteRegister(addr uint16, reg, value byte) error {
	if err := t.bus.Tx(addr, []byte{reg, value}, nil); err != nil {
		return &TransportError{Op: "write", Addr: addr, Reg: reg, Err: err}
	}
	return nil
}

func (t *I2C) ReadRegister(addr uint16, reg byte) (byte, error) {
	var r [1]byte
	if err := t.bus.Tx(addr, []byte{reg}, r[:]); err != nil {
		return 0, &TransportError{Op: "read", Addr: addr, Reg: reg, Err: err}
	}
	return r[0], nil
}

func (t *I2C) ReadBlock(addr uint16, reg byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, &TransportError{Op: "read block", Addr: addr, Reg: reg, Err: fmt.Errorf("invalid length %d", n)}
	}
	r := make([]byte, n)
	if err := t.bus.Tx(addr, []byte{reg}, r); err != nil {
		return nil, &TransportError{Op: "read block", Addr: addr, Reg: reg, Err: err}
	}
	return r, nil
}

// Close releases the bus if it was opened by Open.
func (t *I2C) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

package sensor

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/ericogr/vcnl4020-stream/pkg/bus"
)

// fuseID is what the simulator reports in the read-only bits of 0x83.
const fuseID = 0xC0

// Simulator is an in-memory VCNL4020 register bank implementing
// bus.Transport, for running without hardware.
type Simulator struct {
	addr uint16
	regs [256]byte
	rnd  *rand.Rand
	mu   sync.Mutex
}

func NewSimulator(addr uint16, seed int64) *Simulator {
	return &Simulator{addr: addr, rnd: rand.New(rand.NewSource(seed))}
}

func (s *Simulator) check(op string, addr uint16, reg byte) error {
	if addr != s.addr {
		return &bus.TransportError{Op: op, Addr: addr, Reg: reg, Err: fmt.Errorf("no device")}
	}
	return nil
}

func (s *Simulator) WriteRegister(addr uint16, reg, value byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("write", addr, reg); err != nil {
		return err
	}
	if reg == regLEDCurrent {
		value = value&maskLEDCurrent | fuseID
	}
	s.regs[reg] = value
	return nil
}

func (s *Simulator) ReadRegister(addr uint16, reg byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("read", addr, reg); err != nil {
		return 0, err
	}
	return s.regs[reg], nil
}

func (s *Simulator) ReadBlock(addr uint16, reg byte, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("read block", addr, reg); err != nil {
		return nil, err
	}
	if n <= 0 || int(reg)+n > len(s.regs) {
		return nil, &bus.TransportError{Op: "read block", Addr: addr, Reg: reg, Err: fmt.Errorf("length %d out of range", n)}
	}
	if reg == regProxResult && s.regs[regCommand]&(cmdProxEn|cmdSelfTimed) == cmdProxEn|cmdSelfTimed {
		v := uint16(s.rnd.Intn(1 << 16))
		s.regs[regProxResult] = byte(v >> 8)
		s.regs[regProxResult+1] = byte(v)
	}
	out := make([]byte, n)
	copy(out, s.regs[int(reg):int(reg)+n])
	return out, nil
}

func (s *Simulator) Close() error { return nil }

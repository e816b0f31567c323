package sensor

import (
	"fmt"
	"io"

	"github.com/ericogr/vcnl4020-stream/pkg/bus"
	"github.com/ericogr/vcnl4020-stream/pkg/frame"
	"go.uber.org/zap"
)

// DefaultAddress is the fixed bus address of the VCNL4020.
const DefaultAddress = 0x13

const (
	regCommand    = 0x80
	regProxRate   = 0x82
	regLEDCurrent = 0x83
	regProxResult = 0x87 // high byte; low byte at 0x88

	// Writable bits of the rate and current registers. The upper bits of the
	// current register carry a read-only fuse ID.
	maskProxRate   = 0x07
	maskLEDCurrent = 0x3F

	cmdReset     = 0x00
	cmdProxEn    = 0x02 // periodic proximity, starts oscillator and state machine
	cmdSelfTimed = 0x01
)

// Options selects the operating mode programmed by Init.
type Options struct {
	Address uint16
	Rate    ProxRate
	Current LEDCurrent
	// StrictReadback makes a read-back mismatch during Init fatal. When false
	// the mismatch is logged and initialization continues.
	StrictReadback bool
}

func DefaultOptions() Options {
	return Options{
		Address:        DefaultAddress,
		Rate:           ProxRate125,
		Current:        LEDCurrent40,
		StrictReadback: true,
	}
}

type VCNL4020 struct {
	tr     bus.Transport
	opts   Options
	logger *zap.Logger
}

// NewVCNL4020 returns a driver talking through tr. The driver takes ownership
// of tr: Close closes it when it implements io.Closer.
func NewVCNL4020(tr bus.Transport, opts Options, logger *zap.Logger) *VCNL4020 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VCNL4020{tr: tr, opts: opts, logger: logger.With(zap.String("device", "vcnl4020"))}
}

// Init resets the command register, programs rate and LED current and starts
// self-timed proximity measurements.
func (d *VCNL4020) Init() error {
	if err := d.tr.WriteRegister(d.opts.Address, regCommand, cmdReset); err != nil {
		return fmt.Errorf("reset command register: %w", err)
	}
	if err := d.writeChecked(regProxRate, byte(d.opts.Rate), maskProxRate); err != nil {
		return fmt.Errorf("set proximity rate: %w", err)
	}
	if err := d.writeChecked(regLEDCurrent, byte(d.opts.Current), maskLEDCurrent); err != nil {
		return fmt.Errorf("set led current: %w", err)
	}
	// The oscillator has to be running before self-timed mode is requested,
	// setting both bits in one write is not reliable.
	if err := d.tr.WriteRegister(d.opts.Address, regCommand, cmdProxEn); err != nil {
		return fmt.Errorf("enable proximity: %w", err)
	}
	if err := d.tr.WriteRegister(d.opts.Address, regCommand, cmdProxEn|cmdSelfTimed); err != nil {
		return fmt.Errorf("enable self-timed measurement: %w", err)
	}
	d.logger.Info("device configured",
		zap.Uint8("rate_code", uint8(d.opts.Rate)),
		zap.Uint8("led_current_code", uint8(d.opts.Current)))
	return nil
}

func (d *VCNL4020) writeChecked(reg, value, mask byte) error {
	if err := d.tr.WriteRegister(d.opts.Address, reg, value); err != nil {
		return err
	}
	got, err := d.tr.ReadRegister(d.opts.Address, reg)
	if err != nil {
		return err
	}
	if got&mask == value&mask {
		return nil
	}
	rbErr := &ReadbackError{Register: reg, Wrote: value, Read: got}
	if d.opts.StrictReadback {
		return rbErr
	}
	d.logger.Warn("ignoring read-back mismatch", zap.Error(rbErr))
	return nil
}

// ReadMeasurement returns the latest proximity result.
func (d *VCNL4020) ReadMeasurement() (uint16, error) {
	b, err := d.tr.ReadBlock(d.opts.Address, regProxResult, frame.Size)
	if err != nil {
		return 0, fmt.Errorf("read proximity: %w", err)
	}
	if len(b) != frame.Size {
		return 0, fmt.Errorf("read proximity: got %d bytes, want %d", len(b), frame.Size)
	}
	return frame.Compose(b[0], b[1]), nil
}

func (d *VCNL4020) Close() error {
	if c, ok := d.tr.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

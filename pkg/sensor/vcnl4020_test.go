package sensor

import (
	"errors"
	"testing"

	"github.com/ericogr/vcnl4020-stream/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func initOps(rateReadback, currentReadback byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{0x80, 0x00}},
		{Addr: DefaultAddress, W: []byte{0x82, 0x06}},
		{Addr: DefaultAddress, W: []byte{0x82}, R: []byte{rateReadback}},
		{Addr: DefaultAddress, W: []byte{0x83, 0x04}},
		{Addr: DefaultAddress, W: []byte{0x83}, R: []byte{currentReadback}},
		{Addr: DefaultAddress, W: []byte{0x80, 0x02}},
		{Addr: DefaultAddress, W: []byte{0x80, 0x03}},
	}
}

func TestInitRegisterSequence(t *testing.T) {
	pb := &i2ctest.Playback{Ops: initOps(0x06, 0x04), DontPanic: true}
	d := NewVCNL4020(bus.New(pb), DefaultOptions(), zaptest.NewLogger(t))

	require.NoError(t, d.Init())
	require.NoError(t, pb.Close())
}

func TestInitIgnoresFuseBits(t *testing.T) {
	// bits 7:6 of the current register are a read-only fuse ID
	pb := &i2ctest.Playback{Ops: initOps(0xF6, 0xC4), DontPanic: true}
	d := NewVCNL4020(bus.New(pb), DefaultOptions(), zaptest.NewLogger(t))

	require.NoError(t, d.Init())
	require.NoError(t, pb.Close())
}

func TestInitStrictReadbackMismatch(t *testing.T) {
	pb := &i2ctest.Playback{Ops: initOps(0x05, 0x04)[:3], DontPanic: true}
	d := NewVCNL4020(bus.New(pb), DefaultOptions(), zaptest.NewLogger(t))

	err := d.Init()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadbackMismatch)
	var rb *ReadbackError
	require.ErrorAs(t, err, &rb)
	assert.Equal(t, byte(0x82), rb.Register)
	assert.Equal(t, byte(0x06), rb.Wrote)
	assert.Equal(t, byte(0x05), rb.Read)
	// startup stops at the failing register
	assert.Equal(t, 3, pb.Count)
}

func TestInitLenientReadbackMismatch(t *testing.T) {
	pb := &i2ctest.Playback{Ops: initOps(0x05, 0x01), DontPanic: true}
	opts := DefaultOptions()
	opts.StrictReadback = false
	d := NewVCNL4020(bus.New(pb), opts, zaptest.NewLogger(t))

	require.NoError(t, d.Init())
	require.NoError(t, pb.Close())
}

func TestInitCustomModes(t *testing.T) {
	opts := DefaultOptions()
	opts.Rate = ProxRate250
	opts.Current = LEDCurrent20
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{0x80, 0x00}},
		{Addr: DefaultAddress, W: []byte{0x82, 0x07}},
		{Addr: DefaultAddress, W: []byte{0x82}, R: []byte{0x07}},
		{Addr: DefaultAddress, W: []byte{0x83, 0x02}},
		{Addr: DefaultAddress, W: []byte{0x83}, R: []byte{0x02}},
		{Addr: DefaultAddress, W: []byte{0x80, 0x02}},
		{Addr: DefaultAddress, W: []byte{0x80, 0x03}},
	}, DontPanic: true}
	d := NewVCNL4020(bus.New(pb), opts, nil)

	require.NoError(t, d.Init())
	require.NoError(t, pb.Close())
}

func TestReadMeasurement(t *testing.T) {
	tests := []struct {
		high, low byte
		want      uint16
	}{
		{0x00, 0x00, 0},
		{0x00, 0xFF, 255},
		{0x01, 0x00, 256},
		{0x12, 0x34, 0x1234},
		{0xFF, 0xFF, 65535},
	}
	for _, tt := range tests {
		pb := &i2ctest.Playback{Ops: []i2ctest.IO{
			{Addr: DefaultAddress, W: []byte{0x87}, R: []byte{tt.high, tt.low}},
		}, DontPanic: true}
		d := NewVCNL4020(bus.New(pb), DefaultOptions(), nil)
		got, err := d.ReadMeasurement()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, uint16(tt.high)*256+uint16(tt.low), got)
		require.NoError(t, pb.Close())
	}
}

var errTimeout = errors.New("timeout")

type deadBus struct{}

func (deadBus) String() string                    { return "dead" }
func (deadBus) Tx(addr uint16, w, r []byte) error { return errTimeout }
func (deadBus) SetSpeed(f physic.Frequency) error { return nil }

func TestTransportErrorsPropagate(t *testing.T) {
	d := NewVCNL4020(bus.New(deadBus{}), DefaultOptions(), nil)

	err := d.Init()
	var te *bus.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, errTimeout)

	_, err = d.ReadMeasurement()
	require.ErrorAs(t, err, &te)
	assert.Equal(t, byte(0x87), te.Reg)
}

type closingTransport struct {
	*Simulator
	closed bool
}

func (c *closingTransport) Close() error {
	c.closed = true
	return nil
}

func TestCloseReleasesTransport(t *testing.T) {
	tr := &closingTransport{Simulator: NewSimulator(DefaultAddress, 1)}
	d := NewVCNL4020(tr, DefaultOptions(), nil)
	require.NoError(t, d.Close())
	assert.True(t, tr.closed)
}

func TestRateAndCurrentCodes(t *testing.T) {
	r, err := RateCode(125)
	require.NoError(t, err)
	assert.Equal(t, ProxRate125, r)
	r, err = RateCode(2)
	require.NoError(t, err)
	assert.Equal(t, ProxRate2, r)
	_, err = RateCode(100)
	assert.Error(t, err)

	c, err := CurrentCode(40)
	require.NoError(t, err)
	assert.Equal(t, LEDCurrent40, c)
	_, err = CurrentCode(50)
	assert.ErrorContains(t, err, "supported: [0 10 20 30 40]")
}

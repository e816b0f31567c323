package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericogr/vcnl4020-stream/pkg/bus"
	"github.com/ericogr/vcnl4020-stream/pkg/config"
	"github.com/ericogr/vcnl4020-stream/pkg/frame"
	"github.com/ericogr/vcnl4020-stream/pkg/logging"
	"github.com/ericogr/vcnl4020-stream/pkg/output"
	"github.com/ericogr/vcnl4020-stream/pkg/output/console"
	"github.com/ericogr/vcnl4020-stream/pkg/output/file"
	"github.com/ericogr/vcnl4020-stream/pkg/output/mqtt"
	"github.com/ericogr/vcnl4020-stream/pkg/scheduler"
	"github.com/ericogr/vcnl4020-stream/pkg/sensor"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run owns every resource for the lifetime of the sampling loop: the sinks
// are closed first, then the bus handle is released.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	dev, err := newSensor(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dev.Close()) }()

	sink, err := initOutputs(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sink.Close()) }()

	enc := frame.NewEncoder(sink)
	sched, err := scheduler.New(newSampler(dev, enc), scheduler.Options{
		Period: cfg.SamplingPeriod,
		Window: cfg.Window,
		Yield:  cfg.SpinYield(),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if !sleepCtx(ctx, cfg.StartDelay()) {
		return nil
	}
	if err := sched.Run(ctx); err != nil {
		return err
	}
	logger.Info("frames written", zap.Uint64("frames", enc.Frames()))
	return nil
}

// newSensor opens the transport selected by the config and brings the
// device into continuous measurement mode.
func newSensor(cfg config.Config, logger *zap.Logger) (sensor.Sensor, error) {
	rate, err := sensor.RateCode(cfg.ProximityRate)
	if err != nil {
		return nil, err
	}
	current, err := sensor.CurrentCode(cfg.LEDCurrentMA)
	if err != nil {
		return nil, err
	}
	opts := sensor.Options{
		Address:        uint16(cfg.I2C.Address),
		Rate:           rate,
		Current:        current,
		StrictReadback: cfg.StrictReadback,
	}

	var tr bus.Transport
	switch cfg.SensorType {
	case config.SensorSimulation:
		tr = sensor.NewSimulator(opts.Address, time.Now().UnixNano())
		logger.Info("using simulated sensor")
	default:
		b, err := bus.Open(cfg.I2C.Bus)
		if err != nil {
			return nil, err
		}
		logger.Info("i2c bus opened", zap.String("bus", b.String()), zap.Uint16("address", opts.Address))
		tr = b
	}

	dev := sensor.NewVCNL4020(tr, opts, logger)
	if err := dev.Init(); err != nil {
		return nil, multierr.Append(fmt.Errorf("init vcnl4020: %w", err), dev.Close())
	}
	return dev, nil
}

func initOutputs(cfg config.Config) (output.Sink, error) {
	sinks := make([]output.Sink, 0, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		var (
			s   output.Sink
			err error
		)
		switch o.Type {
		case config.OutputConsole:
			s = console.NewConsole()
		case config.OutputFile:
			s, err = file.NewFile(o.Path, o.AppendMode(), o.Sync)
		case config.OutputMQTT:
			mc := config.MQTTConfig{}
			if o.MQTT != nil {
				mc = *o.MQTT
			}
			s, err = mqtt.NewMQTT(mc)
		default:
			err = fmt.Errorf("unknown output type %q", o.Type)
		}
		if err != nil {
			for _, opened := range sinks {
				err = multierr.Append(err, opened.Close())
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("no outputs configured")
	}
	return output.Multi(sinks...), nil
}

// newSampler reads one measurement and emits it; a failed read emits nothing.
func newSampler(dev sensor.Sensor, enc *frame.Encoder) scheduler.Sampler {
	return scheduler.SamplerFunc(func(ctx context.Context) error {
		v, err := dev.ReadMeasurement()
		if err != nil {
			return err
		}
		return enc.Emit(v)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

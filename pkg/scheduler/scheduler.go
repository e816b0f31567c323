// Package scheduler keeps a fixed sampling cadence by busy-polling a monotonic
// clock against a virtual clock of expected sample instants.
//
// Each iteration reads the elapsed time since start. While the elapsed time is
// past the next due instant, samples are taken back to back and the due
// instant advances by one period, so a slow iteration is caught up instead of
// shifting every later sample. If no catch-up happened and the elapsed time
// lies within a window of half-width Window around the due instant, one sample
// is taken early and the due instant is rounded to microseconds, which keeps
// the repeated float additions from drifting out of the window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// DefaultPeriod is the target interval between samples, in seconds.
	DefaultPeriod = 1.0 / 60
	// DefaultWindow is the half-width of the acceptance window, in seconds.
	DefaultWindow = 0.0085
)

var ErrAlreadyStarted = errors.New("scheduler already started")

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Sampler takes one sample and emits it.
type Sampler interface {
	Sample(ctx context.Context) error
}

type SamplerFunc func(ctx context.Context) error

func (f SamplerFunc) Sample(ctx context.Context) error { return f(ctx) }

// Clock is the subset of clock.Clock the scheduler reads.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type Options struct {
	// Period and Window are in seconds. Zero selects DefaultPeriod and
	// DefaultWindow; a set Window must be below Period.
	Period float64
	Window float64
	// Yield is the pause between polls. Zero yields the processor with
	// runtime.Gosched and keeps the loop spinning.
	Yield  time.Duration
	Clock  Clock
	Logger *zap.Logger
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Samples  uint64
	CatchUps uint64
	OnTime   uint64
	Elapsed  float64
	NextDue  float64
}

type Scheduler struct {
	sampler Sampler
	period  float64
	window  float64
	yield   time.Duration
	clock   Clock
	logger  *zap.Logger

	start   time.Time
	elapsed float64
	nextDue float64

	state    atomic.Int32
	samples  atomic.Uint64
	catchUps atomic.Uint64
	onTime   atomic.Uint64
	lastSeen atomic.Float64
	due      atomic.Float64
}

func New(sampler Sampler, opts Options) (*Scheduler, error) {
	if sampler == nil {
		return nil, errors.New("scheduler: nil sampler")
	}
	if opts.Period == 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Window == 0 {
		opts.Window = DefaultWindow
	}
	if opts.Period < 0 || math.IsNaN(opts.Period) || math.IsInf(opts.Period, 0) {
		return nil, fmt.Errorf("scheduler: invalid period %v", opts.Period)
	}
	// Windows of consecutive boundaries may overlap, but one must close
	// before the next due instant opens it again.
	if opts.Window < 0 || opts.Window >= opts.Period {
		return nil, fmt.Errorf("scheduler: window %v must be below period %v", opts.Window, opts.Period)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Scheduler{
		sampler: sampler,
		period:  opts.Period,
		window:  opts.Window,
		yield:   opts.Yield,
		clock:   opts.Clock,
		logger:  opts.Logger,
		nextDue: opts.Period,
	}
	s.due.Store(s.nextDue)
	return s, nil
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) Stats() Stats {
	return Stats{
		Samples:  s.samples.Load(),
		CatchUps: s.catchUps.Load(),
		OnTime:   s.onTime.Load(),
		Elapsed:  s.lastSeen.Load(),
		NextDue:  s.due.Load(),
	}
}

// Run polls the clock and samples on cadence until ctx is cancelled or a
// sample fails. Cancellation is only observed between iterations and is not
// an error.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrAlreadyStarted
	}
	defer s.state.Store(int32(Stopped))

	s.start = s.clock.Now()
	s.logger.Info("sampling started",
		zap.Float64("period_s", s.period),
		zap.Float64("window_s", s.window),
		zap.Duration("yield", s.yield))

	for {
		if ctx.Err() != nil {
			s.logStop(nil)
			return nil
		}
		if _, err := s.Step(ctx, s.clock.Since(s.start).Seconds()); err != nil {
			s.logStop(err)
			return fmt.Errorf("sample at %.6fs: %w", s.elapsed, err)
		}
		s.pause()
	}
}

// Step runs one iteration for the given elapsed time in seconds and returns
// the number of samples taken.
func (s *Scheduler) Step(ctx context.Context, elapsed float64) (int, error) {
	elapsed = round6(elapsed)
	if elapsed < s.elapsed {
		elapsed = s.elapsed
	}
	s.elapsed = elapsed
	s.lastSeen.Store(elapsed)

	n := 0
	for elapsed > s.nextDue {
		if err := s.sampler.Sample(ctx); err != nil {
			return n, err
		}
		s.advance(s.nextDue + s.period)
		s.catchUps.Inc()
		n++
	}
	if n > 0 {
		return n, nil
	}
	if elapsed >= round6(s.nextDue-s.window) && elapsed <= round6(s.nextDue+s.window) {
		if err := s.sampler.Sample(ctx); err != nil {
			return n, err
		}
		s.advance(round6(s.nextDue + s.period))
		s.onTime.Inc()
		n++
	}
	return n, nil
}

// NextDue returns the next scheduled sample instant in seconds since start.
func (s *Scheduler) NextDue() float64 { return s.due.Load() }

func (s *Scheduler) advance(next float64) {
	s.nextDue = next
	s.due.Store(next)
	s.samples.Inc()
}

func (s *Scheduler) pause() {
	if s.yield > 0 {
		time.Sleep(s.yield)
		return
	}
	runtime.Gosched()
}

func (s *Scheduler) logStop(err error) {
	st := s.Stats()
	fields := []zap.Field{
		zap.Uint64("samples", st.Samples),
		zap.Uint64("catch_ups", st.CatchUps),
		zap.Uint64("on_time", st.OnTime),
		zap.Float64("elapsed_s", st.Elapsed),
		zap.Float64("next_due_s", st.NextDue),
	}
	if err != nil {
		s.logger.Error("sampling aborted", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("sampling stopped", fields...)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

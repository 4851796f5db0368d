package feeder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/pigeon-feeder/internal/gpio"
)

// Feeder owns the actuator handles for the lifetime of the process.
// All actuations are strictly serial: a call waits until any actuation in
// progress has held for its full duration and returned to rest.
type Feeder struct {
	mu     sync.Mutex
	flush  gpio.Servo
	seeds  gpio.Servo
	water  gpio.Valve
	hold   Durations
	obs    []Observer
	closed bool

	// sleep and now are replaceable in tests.
	sleep func(time.Duration)
	now   func() time.Time
}

// Observer is told about every actuation. Both calls happen while the
// feeder lock is held, so observers see actuations strictly one at a time
// and must not block.
type Observer interface {
	Begin(a Action)
	Record(ev Event)
}

// ErrClosed is returned by actuations after Close.
var ErrClosed = errors.New("feeder closed")

// New creates a Feeder. The handles are used as-is; New does not move them.
func New(flush, seeds gpio.Servo, water gpio.Valve, hold Durations, obs ...Observer) (*Feeder, error) {
	if err := hold.Validate(); err != nil {
		return nil, err
	}
	return &Feeder{
		flush: flush,
		seeds: seeds,
		water: water,
		hold:  hold,
		obs:   obs,
		sleep: time.Sleep,
		now:   time.Now,
	}, nil
}

// Durations returns the configured hold times.
func (f *Feeder) Durations() Durations {
	return f.hold
}

// Flush drives the flush servo to max, holds, and returns it to rest.
func (f *Feeder) Flush() error {
	_, err := f.Run(ActionFlush)
	return err
}

// DispenseSeeds drives the seed servo to max, holds, and returns it to rest.
func (f *Feeder) DispenseSeeds() error {
	_, err := f.Run(ActionSeeds)
	return err
}

// AddWater opens the water valve, holds, and closes it.
func (f *Feeder) AddWater() error {
	_, err := f.Run(ActionWater)
	return err
}

// Run performs one actuation and blocks until it is complete.
// The hold is not cancellable.
func (f *Feeder) Run(a Action) (Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.obs {
		o.Begin(a)
	}

	ev := Event{Action: a, Start: f.now()}
	switch {
	case f.closed:
		ev.Err = ErrClosed
	case a == ActionFlush:
		ev.Err = f.pulseServo(f.flush, f.hold.Flush)
	case a == ActionSeeds:
		ev.Err = f.pulseServo(f.seeds, f.hold.Seeds)
	case a == ActionWater:
		ev.Err = f.pulseValve(f.water, f.hold.Water)
	default:
		ev.Err = fmt.Errorf("%w: %q", ErrUnknownAction, a)
	}
	ev.Elapsed = f.now().Sub(ev.Start)

	for _, o := range f.obs {
		o.Record(ev)
	}
	return ev, ev.Err
}

func (f *Feeder) pulseServo(s gpio.Servo, hold time.Duration) error {
	if err := s.Max(); err != nil {
		return fmt.Errorf("servo to max: %w", err)
	}
	f.sleep(hold)
	if err := s.Min(); err != nil {
		return fmt.Errorf("servo to min: %w", err)
	}
	return nil
}

func (f *Feeder) pulseValve(v gpio.Valve, hold time.Duration) error {
	if err := v.On(); err != nil {
		return fmt.Errorf("valve on: %w", err)
	}
	f.sleep(hold)
	if err := v.Off(); err != nil {
		return fmt.Errorf("valve off: %w", err)
	}
	return nil
}

// Close waits for any actuation in progress, then releases every handle.
// Later actuations fail with ErrClosed.
func (f *Feeder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	if err := f.flush.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close flush servo: %w", err))
	}
	if err := f.seeds.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close seeds servo: %w", err))
	}
	if err := f.water.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close water valve: %w", err))
	}
	return errors.Join(errs...)
}

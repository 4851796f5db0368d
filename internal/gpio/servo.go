package gpio

import (
	"errors"
	"fmt"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Hobby servo timing: one pulse every 20ms, 1ms at one end of travel and
// 2ms at the other.
const (
	servoFrequency = 50 * physic.Hertz
	servoFrame     = 20 * time.Millisecond
	servoMinPulse  = 1 * time.Millisecond
	servoMaxPulse  = 2 * time.Millisecond
)

// RealServo drives a servo on a Raspberry Pi pin using periph.io PWM.
type RealServo struct {
	pin pgpio.PinIO
}

// NewRealServo initialises the periph host drivers and looks up the BCM pin.
// The servo is not moved until Max or Min is called.
func NewRealServo(pin int) (*RealServo, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return nil, fmt.Errorf("servo pin %d: not found", pin)
	}
	return &RealServo{pin: p}, nil
}

// Max drives the servo to its maximum position (2ms pulse).
func (s *RealServo) Max() error {
	return s.pulse(servoMaxPulse)
}

// Min drives the servo to its minimum position (1ms pulse).
// The signal keeps running so the servo holds its rest position.
func (s *RealServo) Min() error {
	return s.pulse(servoMinPulse)
}

func (s *RealServo) pulse(width time.Duration) error {
	if err := s.pin.PWM(pulseDuty(width), servoFrequency); err != nil {
		return fmt.Errorf("servo %s pwm %v: %w", s.pin.Name(), width, err)
	}
	return nil
}

// Close stops the PWM signal and leaves the pin driven low.
func (s *RealServo) Close() error {
	var errs []error
	if err := s.pin.Halt(); err != nil {
		errs = append(errs, fmt.Errorf("halt %s: %w", s.pin.Name(), err))
	}
	if err := s.pin.Out(pgpio.Low); err != nil {
		errs = append(errs, fmt.Errorf("drive %s low: %w", s.pin.Name(), err))
	}
	return errors.Join(errs...)
}

// pulseDuty converts a pulse width into a duty cycle for one servo frame.
func pulseDuty(width time.Duration) pgpio.Duty {
	return pgpio.Duty(int64(pgpio.DutyMax) * int64(width) / int64(servoFrame))
}

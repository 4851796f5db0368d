//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealValve drives a valve from actual hardware using Linux GPIO character device.
type RealValve struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealValve requests the pin as an output, initially inactive (valve closed).
func NewRealValve(pin int) (*RealValve, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pigeon-feeder"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request valve pin %d: %w", pin, err)
	}

	return &RealValve{chip: chip, line: line}, nil
}

// On sets the line active.
func (v *RealValve) On() error {
	if err := v.line.SetValue(1); err != nil {
		return fmt.Errorf("valve on: %w", err)
	}
	return nil
}

// Off sets the line inactive.
func (v *RealValve) Off() error {
	if err := v.line.SetValue(0); err != nil {
		return fmt.Errorf("valve off: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// The valve is closed first, then the pin is reconfigured to input with
// pull-down (matching Pi boot defaults) so the solenoid driver cannot be
// left energised across a restart.
func (v *RealValve) Close() error {
	var errs []error

	if v.line != nil {
		if err := v.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("valve off: %w", err))
		}
		if err := v.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure valve pin: %w", err))
		}
		if err := v.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close valve pin: %w", err))
		}
	}
	if v.chip != nil {
		if err := v.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

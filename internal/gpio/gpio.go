// Package gpio provides the feeder's actuator outputs with hardware abstraction.
// Servos are driven with PWM through periph.io; the water valve is a plain
// digital line on the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Servo is a rotary position actuator that can be driven to either end of
// its travel.
type Servo interface {
	// Max drives the servo to its maximum position.
	Max() error

	// Min drives the servo to its minimum (rest) position.
	Min() error

	// Close releases the pin.
	Close() error
}

// Valve is an on/off output such as a solenoid valve.
type Valve interface {
	// On opens the valve (line active).
	On() error

	// Off closes the valve (line inactive).
	Off() error

	// Close releases GPIO resources.
	Close() error
}

// Default pin bindings (BCM numbering)
const (
	DefaultPinFlush = 17 // glass flush servo
	DefaultPinSeeds = 27 // seed dispenser servo
	DefaultPinWater = 22 // water solenoid valve
)

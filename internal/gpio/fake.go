package gpio

import (
	"sync"
	"time"
)

// Call records a single operation on a fake actuator.
type Call struct {
	Op string // "max", "min", "on", "off"
	At time.Time
}

// FakeServo is a test double that records servo commands.
type FakeServo struct {
	mu    sync.Mutex
	calls []Call

	// MaxError, if set, will be returned by Max().
	MaxError error

	// MinError, if set, will be returned by Min().
	MinError error

	closed bool
}

// NewFakeServo creates a FakeServo with no recorded calls.
func NewFakeServo() *FakeServo {
	return &FakeServo{}
}

// Max records a "max" command.
func (f *FakeServo) Max() error {
	return f.record("max", f.MaxError)
}

// Min records a "min" command.
func (f *FakeServo) Min() error {
	return f.record("min", f.MinError)
}

// Failed commands are not recorded.
func (f *FakeServo) record(op string, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.calls = append(f.calls, Call{Op: op, At: time.Now()})
	return nil
}

// Calls returns a copy of the recorded commands.
func (f *FakeServo) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Close marks the servo as closed.
func (f *FakeServo) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeServo) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeValve is a test double that records valve commands.
type FakeValve struct {
	mu    sync.Mutex
	calls []Call
	open  bool

	// OnError, if set, will be returned by On().
	OnError error

	// OffError, if set, will be returned by Off().
	OffError error

	closed bool
}

// NewFakeValve creates a closed FakeValve.
func NewFakeValve() *FakeValve {
	return &FakeValve{}
}

// On records an "on" command and opens the valve.
func (f *FakeValve) On() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OnError != nil {
		return f.OnError
	}
	f.open = true
	f.calls = append(f.calls, Call{Op: "on", At: time.Now()})
	return nil
}

// Off records an "off" command and closes the valve.
func (f *FakeValve) Off() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OffError != nil {
		return f.OffError
	}
	f.open = false
	f.calls = append(f.calls, Call{Op: "off", At: time.Now()})
	return nil
}

// IsOpen reports whether the last successful command was On.
func (f *FakeValve) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Calls returns a copy of the recorded commands.
func (f *FakeValve) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Close marks the valve as closed and released.
func (f *FakeValve) Close() error {
	f.mu.Lock()
	f.open = false
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeValve) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Ops returns just the operation names from a call list.
func Ops(calls []Call) []string {
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

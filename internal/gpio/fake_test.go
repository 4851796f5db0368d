package gpio

import (
	"errors"
	"slices"
	"testing"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
)

func TestFakeServoRecordsCommands(t *testing.T) {
	f := NewFakeServo()

	if err := f.Max(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Min(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := f.Calls()
	if got, want := Ops(calls), []string{"max", "min"}; !slices.Equal(got, want) {
		t.Fatalf("ops: got %v, want %v", got, want)
	}
	if calls[1].At.Before(calls[0].At) {
		t.Errorf("timestamps out of order: %v then %v", calls[0].At, calls[1].At)
	}
}

func TestFakeServoError(t *testing.T) {
	f := NewFakeServo()
	f.MaxError = errors.New("simulated error")

	err := f.Max()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if len(f.Calls()) != 0 {
		t.Errorf("expected no calls recorded on error, got %v", Ops(f.Calls()))
	}

	// Min still works
	if err := f.Min(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeServoClose(t *testing.T) {
	f := NewFakeServo()

	if f.Closed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
}

func TestFakeValveOnOff(t *testing.T) {
	f := NewFakeValve()

	if f.IsOpen() {
		t.Fatal("valve should start closed")
	}

	f.On()
	if !f.IsOpen() {
		t.Error("valve should be open after On()")
	}

	f.Off()
	if f.IsOpen() {
		t.Error("valve should be closed after Off()")
	}

	if got, want := Ops(f.Calls()), []string{"on", "off"}; !slices.Equal(got, want) {
		t.Errorf("ops: got %v, want %v", got, want)
	}
}

func TestFakeValveOffErrorLeavesOpen(t *testing.T) {
	f := NewFakeValve()
	f.OffError = errors.New("stuck")

	f.On()
	if err := f.Off(); err == nil {
		t.Fatal("expected error from Off()")
	}
	if !f.IsOpen() {
		t.Error("failed Off() should leave the valve open")
	}
}

func TestFakeValveCloseShutsValve(t *testing.T) {
	f := NewFakeValve()
	f.On()

	f.Close()

	if f.IsOpen() {
		t.Error("Close() should shut the valve")
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
}

func TestPulseDuty(t *testing.T) {
	tests := []struct {
		width time.Duration
		want  pgpio.Duty
	}{
		{servoMinPulse, pgpio.DutyMax / 20}, // 1ms of 20ms = 5%
		{servoMaxPulse, pgpio.DutyMax / 10}, // 2ms of 20ms = 10%
		{servoFrame, pgpio.DutyMax},
	}

	for _, tt := range tests {
		if got := pulseDuty(tt.width); got != tt.want {
			t.Errorf("pulseDuty(%v): got %d, want %d", tt.width, got, tt.want)
		}
	}
}

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/pigeon-feeder/internal/feeder"
	"github.com/sweeney/pigeon-feeder/internal/mqtt"
	"github.com/sweeney/pigeon-feeder/internal/status"
)

// --- flag tests ---

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	if cfg.httpAddr != ":8080" {
		t.Errorf("httpAddr: got %q, want :8080", cfg.httpAddr)
	}
	if cfg.adminAddr != "" {
		t.Errorf("adminAddr: got %q, want empty", cfg.adminAddr)
	}
	if cfg.broker != "" {
		t.Errorf("broker: got %q, want empty", cfg.broker)
	}
	if cfg.pins != (status.Pins{Flush: 17, Seeds: 27, Water: 22}) {
		t.Errorf("pins: got %+v, want 17/27/22", cfg.pins)
	}
	if cfg.hold != feeder.DefaultDurations {
		t.Errorf("hold: got %+v, want %+v", cfg.hold, feeder.DefaultDurations)
	}
	if cfg.heartbeat != 15*time.Minute {
		t.Errorf("heartbeat: got %v, want 15m", cfg.heartbeat)
	}
	if cfg.connectWait != 30*time.Second {
		t.Errorf("connectWait: got %v, want 30s", cfg.connectWait)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	args := []string{
		"-http", "127.0.0.1:9000",
		"-admin", ":9100",
		"-broker", "tcp://localhost:1883",
		"-pin-flush", "5", "-pin-seeds", "6", "-pin-water", "13",
		"-flush", "500ms", "-seeds", "4s", "-water", "1s",
		"-heartbeat", "0",
		"-once", "water",
	}
	cfg, err := parseFlags(args, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	if cfg.httpAddr != "127.0.0.1:9000" || cfg.adminAddr != ":9100" || cfg.broker != "tcp://localhost:1883" {
		t.Errorf("addresses: got %q %q %q", cfg.httpAddr, cfg.adminAddr, cfg.broker)
	}
	if cfg.pins != (status.Pins{Flush: 5, Seeds: 6, Water: 13}) {
		t.Errorf("pins: got %+v", cfg.pins)
	}
	want := feeder.Durations{Flush: 500 * time.Millisecond, Seeds: 4 * time.Second, Water: time.Second}
	if cfg.hold != want {
		t.Errorf("hold: got %+v, want %+v", cfg.hold, want)
	}
	if cfg.heartbeat != 0 {
		t.Errorf("heartbeat: got %v, want 0", cfg.heartbeat)
	}
	if cfg.once != "water" {
		t.Errorf("once: got %q, want water", cfg.once)
	}
}

func TestParseFlagsRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero hold", []string{"-seeds", "0s"}},
		{"negative hold", []string{"-water", "-1s"}},
		{"duplicate pin", []string{"-pin-water", "17"}},
		{"negative pin", []string{"-pin-flush", "-1"}},
		{"unknown once action", []string{"-once", "dance"}},
		{"negative heartbeat", []string{"-heartbeat", "-1m"}},
		{"zero broker wait", []string{"-broker-wait", "0"}},
		{"negative broker wait", []string{"-broker-wait", "-5s"}},
		{"positional args", []string{"flush"}},
		{"unknown flag", []string{"-verbose"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, io.Discard); err == nil {
				t.Errorf("parseFlags(%v): expected error", tt.args)
			}
		})
	}
}

func TestParseFlagsHelp(t *testing.T) {
	_, err := parseFlags([]string{"-h"}, io.Discard)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("got %v, want flag.ErrHelp", err)
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func newTestTracker() *status.Tracker {
	return status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{
		HTTPAddr:  ":8080",
		Pins:      status.Pins{Flush: 17, Seeds: 27, Water: 22},
		Durations: feeder.DefaultDurations,
	})
}

// runRunLoop drives runLoop with nTicks heartbeats followed by signal,
// returning runLoop's error.
func runRunLoop(t *testing.T, pub *mqtt.FakePublisher, tracker *status.Tracker, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	srvErr := make(chan error)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(pub, pub, tracker, clock, tick, sig, srvErr)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	err := runRunLoop(t, pub, newTestTracker(), clock, 0, syscall.SIGINT)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := pub.SystemEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(events))
	}
	se := events[0]
	if se.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGINT" {
		t.Errorf("expected reason SIGINT, got %q", se.Reason)
	}
	if se.Retained != true {
		t.Error("expected Retained=true for SHUTDOWN")
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	err := runRunLoop(t, pub, newTestTracker(), clock, 0, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := pub.SystemEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(events))
	}
	if events[0].Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", events[0].Reason)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads()[0], &sj); err != nil {
		t.Fatalf("unmarshal shutdown payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("payload event/reason: got %q/%q", sj.Status.Event, sj.Status.Reason)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.SetConnected(true)
	tracker := newTestTracker()
	tracker.Record(feeder.Event{
		Action:  feeder.ActionWater,
		Start:   time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Elapsed: 2 * time.Second,
	})
	clock := fakeClock(time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC), 15*time.Minute)

	err := runRunLoop(t, pub, tracker, clock, 2, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := pub.SystemEvents()
	payloads := pub.SystemPayloads()
	var heartbeats, shutdowns int
	for i, se := range events {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			if se.Retained {
				t.Error("HEARTBEAT should not be retained")
			}
			var sj status.StatusJSON
			if err := json.Unmarshal(payloads[i], &sj); err != nil {
				t.Fatalf("unmarshal heartbeat payload: %v", err)
			}
			if sj.Status.Event != "HEARTBEAT" {
				t.Errorf("payload event: got %q", sj.Status.Event)
			}
			if !sj.Status.MQTT.Connected {
				t.Error("heartbeat should report MQTT connected")
			}
			if sj.Status.Last == nil || sj.Status.Last.Action != "water" {
				t.Errorf("heartbeat last_actuation: got %+v", sj.Status.Last)
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 2 {
		t.Errorf("expected 2 HEARTBEAT events, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker unavailable")
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	// Heartbeat and shutdown publishes fail; the loop must still exit cleanly.
	err := runRunLoop(t, pub, newTestTracker(), clock, 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if n := len(pub.SystemEvents()); n != 0 {
		t.Errorf("expected 0 recorded system events, got %d", n)
	}
}

func TestRunLoopServerError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	srvErr := make(chan error, 1)
	srvErr <- errors.New("listen tcp :8080: bind: address already in use")

	err := runLoop(pub, pub, newTestTracker(), time.Now, nil, make(chan os.Signal), srvErr)
	if err == nil {
		t.Fatal("expected server error to end runLoop")
	}
	if n := len(pub.SystemEvents()); n != 0 {
		t.Errorf("expected no SHUTDOWN on server failure, got %d system events", n)
	}
}

func TestRunLoopNilTickDisablesHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGINT

	err := runLoop(pub, pub, newTestTracker(), time.Now, nil, sig, nil)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	events := pub.SystemEvents()
	if len(events) != 1 || events[0].Event != "SHUTDOWN" {
		t.Errorf("expected only SHUTDOWN, got %+v", events)
	}
}

// --- publishObserver tests ---

func TestPublishObserverForwardsEvents(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	obs := publishObserver{pub}

	obs.Begin(feeder.ActionFlush)
	if n := len(pub.Events()); n != 0 {
		t.Fatalf("Begin should not publish, got %d events", n)
	}

	ev := feeder.Event{
		Action:  feeder.ActionFlush,
		Start:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Elapsed: time.Second,
	}
	obs.Record(ev)

	events := pub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Action != feeder.ActionFlush {
		t.Errorf("action: got %q, want flush", events[0].Action)
	}
}

func TestPublishObserverSwallowsErrors(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker unavailable")

	// Must not panic or block.
	publishObserver{pub}.Record(feeder.Event{Action: feeder.ActionSeeds})

	if n := len(pub.Events()); n != 0 {
		t.Errorf("expected 0 recorded events, got %d", n)
	}
}

func TestLongestHold(t *testing.T) {
	if got := longestHold(feeder.DefaultDurations); got != 3*time.Second {
		t.Errorf("longestHold: got %v, want 3s", got)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT: got %q", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM: got %q", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %q", got)
	}
}

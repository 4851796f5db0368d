// Package status provides a thread-safe status tracker for the feeder daemon.
// It is read by the admin HTTP endpoint and by MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pigeon-feeder/internal/feeder"
)

// Config contains daemon configuration for display.
type Config struct {
	HTTPAddr    string
	AdminAddr   string
	Broker      string
	HeartbeatMs int64
	Pins        Pins
	Durations   feeder.Durations
}

// Pins are the BCM pin bindings in use.
type Pins struct {
	Flush int
	Seeds int
	Water int
}

// Counts tracks actuations per action since startup.
type Counts struct {
	OK     int
	Failed int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Busy          feeder.Action // action in progress, empty when idle
	Last          *feeder.Event
	Counts        map[feeder.Action]Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	counts map[feeder.Action]Counts
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		counts: make(map[feeder.Action]Counts),
	}
}

// Begin marks an action as in progress.
func (t *Tracker) Begin(a feeder.Action) {
	t.mu.Lock()
	t.snap.Busy = a
	t.mu.Unlock()
}

// Record stores a finished actuation and clears the busy flag.
func (t *Tracker) Record(ev feeder.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.counts[ev.Action]
	if ev.OK() {
		c.OK++
	} else {
		c.Failed++
	}
	t.counts[ev.Action] = c
	t.snap.Last = &ev
	t.snap.Busy = ""
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts = make(map[feeder.Action]Counts, len(t.counts))
	for a, c := range t.counts {
		s.Counts[a] = c
	}
	if t.snap.Last != nil {
		last := *t.snap.Last
		s.Last = &last
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

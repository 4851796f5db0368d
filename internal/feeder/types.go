// Package feeder drives the feeder's actuators through fixed timed sequences.
// It knows nothing about HTTP or MQTT; callers get an Event back from every
// actuation and decide what to do with it.
package feeder

import (
	"errors"
	"fmt"
	"time"
)

// Action names a timed actuation.
type Action string

const (
	ActionFlush Action = "flush"
	ActionSeeds Action = "seeds"
	ActionWater Action = "water"
)

// Actions lists every action in a fixed order.
var Actions = []Action{ActionFlush, ActionSeeds, ActionWater}

// Message is the confirmation text reported after a successful actuation.
func (a Action) Message() string {
	switch a {
	case ActionFlush:
		return "Glass flushed"
	case ActionSeeds:
		return "Seeds dispensed"
	case ActionWater:
		return "Water added"
	}
	return ""
}

// ParseAction converts a name into an Action.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// ErrUnknownAction is returned for names that match no action.
var ErrUnknownAction = errors.New("unknown action")

// Durations holds the hold time for each action.
type Durations struct {
	Flush time.Duration
	Seeds time.Duration
	Water time.Duration
}

// DefaultDurations are the factory hold times.
var DefaultDurations = Durations{
	Flush: 1 * time.Second,
	Seeds: 3 * time.Second,
	Water: 2 * time.Second,
}

// For returns the hold time for an action.
func (d Durations) For(a Action) time.Duration {
	switch a {
	case ActionFlush:
		return d.Flush
	case ActionSeeds:
		return d.Seeds
	case ActionWater:
		return d.Water
	}
	return 0
}

// Validate rejects non-positive hold times.
func (d Durations) Validate() error {
	for _, a := range Actions {
		if d.For(a) <= 0 {
			return fmt.Errorf("%s duration must be positive, got %v", a, d.For(a))
		}
	}
	return nil
}

// Event describes one completed (or failed) actuation.
type Event struct {
	Action  Action
	Start   time.Time
	Elapsed time.Duration
	Err     error
}

// OK reports whether the actuation completed without a hardware error.
func (e Event) OK() bool {
	return e.Err == nil
}

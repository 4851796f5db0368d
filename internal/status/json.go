package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pigeon-feeder/internal/feeder"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                `json:"event,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	Busy          string                `json:"busy,omitempty"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     string                `json:"start_time"`
	Timestamp     string                `json:"timestamp"`
	MQTT          MQTTStatus            `json:"mqtt"`
	Last          *LastJSON             `json:"last_actuation,omitempty"`
	Counts        map[string]CountsJSON `json:"actuation_counts"`
	Config        ConfigJSON            `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// LastJSON is the JSON representation of the most recent actuation.
type LastJSON struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	ElapsedMs int64  `json:"elapsed_ms"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// CountsJSON is the JSON representation of per-action counts.
type CountsJSON struct {
	OK     int `json:"ok"`
	Failed int `json:"failed"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HTTPAddr    string           `json:"http_addr"`
	AdminAddr   string           `json:"admin_addr,omitempty"`
	Broker      string           `json:"broker,omitempty"`
	HeartbeatMs int64            `json:"heartbeat_ms"`
	Pins        map[string]int   `json:"pins"`
	HoldMs      map[string]int64 `json:"hold_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Busy:          string(snap.Busy),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        make(map[string]CountsJSON, len(feeder.Actions)),
		Config: ConfigJSON{
			HTTPAddr:    snap.Config.HTTPAddr,
			AdminAddr:   snap.Config.AdminAddr,
			Broker:      snap.Config.Broker,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Pins: map[string]int{
				string(feeder.ActionFlush): snap.Config.Pins.Flush,
				string(feeder.ActionSeeds): snap.Config.Pins.Seeds,
				string(feeder.ActionWater): snap.Config.Pins.Water,
			},
			HoldMs: make(map[string]int64, len(feeder.Actions)),
		},
	}

	// Every action appears, even before its first run.
	for _, a := range feeder.Actions {
		c := snap.Counts[a]
		inner.Counts[string(a)] = CountsJSON{OK: c.OK, Failed: c.Failed}
		inner.Config.HoldMs[string(a)] = snap.Config.Durations.For(a).Milliseconds()
	}

	if snap.Last != nil {
		inner.Last = &LastJSON{
			Action:    string(snap.Last.Action),
			Timestamp: snap.Last.Start.UTC().Format(time.RFC3339),
			ElapsedMs: snap.Last.Elapsed.Milliseconds(),
			OK:        snap.Last.OK(),
		}
		if snap.Last.Err != nil {
			inner.Last.Error = snap.Last.Err.Error()
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the admin endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

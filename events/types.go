// Package events provides an in-process notification bus for supervisor
// subsystems. Health probes, reconnection attempts, and state transitions
// are published here so the daemon, metrics, and logging can react without
// coupling to the VPN manager.
package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeProbeResult
	TypeReconnectAttempt
	TypeReaperSweep
	TypeNetworkChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published when the connection status changes.
type StateChangedEvent struct {
	Session   string    `json:"session"`
	Previous  string    `json:"previous"`
	Current   string    `json:"current"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// ProbeResultEvent is published after each health probe.
type ProbeResultEvent struct {
	Success   bool          `json:"success"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Type returns the event type identifier for ProbeResultEvent.
func (e ProbeResultEvent) Type() uint32 { return TypeProbeResult }

// ReconnectAttemptEvent is published before each reconnection attempt.
type ReconnectAttemptEvent struct {
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Type returns the event type identifier for ReconnectAttemptEvent.
func (e ReconnectAttemptEvent) Type() uint32 { return TypeReconnectAttempt }

// ReaperSweepEvent is published after a sweep for orphaned client processes.
type ReaperSweepEvent struct {
	Killed    int       `json:"killed"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ReaperSweepEvent.
func (e ReaperSweepEvent) Type() uint32 { return TypeReaperSweep }

// NetworkChangedEvent is published when host network availability changes.
type NetworkChangedEvent struct {
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for NetworkChangedEvent.
func (e NetworkChangedEvent) Type() uint32 { return TypeNetworkChanged }

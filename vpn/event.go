package vpn

import "fmt"

// Status represents the state of the supervised connection.
type Status int

const (
	StatusNotConnected Status = iota
	StatusConnecting
	StatusAuthenticating
	StatusConnected
	StatusDisconnecting
	StatusReconnecting
	StatusFailed
)

// String returns a human-readable status string.
func (s Status) String() string {
	switch s {
	case StatusNotConnected:
		return "Not connected"
	case StatusConnecting:
		return "Connecting..."
	case StatusAuthenticating:
		return "Authenticating..."
	case StatusConnected:
		return "Connected"
	case StatusDisconnecting:
		return "Disconnecting..."
	case StatusReconnecting:
		return "Reconnecting..."
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DisconnectReason explains why a connection ended.
type DisconnectReason int

const (
	ReasonUserRequested DisconnectReason = iota
	ReasonServerDisconnect
	ReasonProcessTerminated
	ReasonTimeout
)

// String returns a human-readable reason string.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonUserRequested:
		return "user requested"
	case ReasonServerDisconnect:
		return "server disconnect"
	case ReasonProcessTerminated:
		return "process terminated"
	case ReasonTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ConnectionEvent is one classified lifecycle event parsed from the VPN
// client's output. Exactly one concrete type is produced per line.
type ConnectionEvent interface {
	connectionEvent()
}

// AuthenticatingEvent indicates the authentication phase is in progress.
type AuthenticatingEvent struct {
	Message string
}

// SessionEstablishedEvent indicates the gateway accepted the session.
type SessionEstablishedEvent struct{}

// DeviceConfiguredEvent indicates the tunnel device received an address
// but the connection is not yet fully up.
type DeviceConfiguredEvent struct {
	Device string
	IP     string
}

// ConnectedEvent indicates the tunnel is fully established.
// IP and Device may be empty when the client reports them on earlier lines.
type ConnectedEvent struct {
	IP     string
	Device string
}

// DisconnectedEvent indicates the connection ended.
type DisconnectedEvent struct {
	Reason DisconnectReason
}

// ErrorEvent carries a classified client error with the raw line that
// produced it.
type ErrorEvent struct {
	Kind      error
	RawOutput string
}

// UnrecognizedEvent preserves a line no classification rule matched.
// Output-format drift degrades to this, never to a hard failure.
type UnrecognizedEvent struct {
	Line string
}

func (AuthenticatingEvent) connectionEvent()     {}
func (SessionEstablishedEvent) connectionEvent() {}
func (DeviceConfiguredEvent) connectionEvent()   {}
func (ConnectedEvent) connectionEvent()          {}
func (DisconnectedEvent) connectionEvent()       {}
func (ErrorEvent) connectionEvent()              {}
func (UnrecognizedEvent) connectionEvent()       {}

// IsTerminal reports whether an event ends a connection attempt.
func IsTerminal(ev ConnectionEvent) bool {
	switch ev.(type) {
	case ConnectedEvent, DisconnectedEvent, ErrorEvent:
		return true
	default:
		return false
	}
}

// Tracker folds an ordered event sequence into the authoritative current
// state. Only the most recent terminal event determines status; address
// details reported on earlier lines are carried forward into Connected.
type Tracker struct {
	status Status
	ip     string
	device string
}

// NewTracker returns a tracker in the not-connected state.
func NewTracker() *Tracker {
	return &Tracker{status: StatusNotConnected}
}

// Apply advances the tracker with the next event in emission order.
func (t *Tracker) Apply(ev ConnectionEvent) {
	switch e := ev.(type) {
	case AuthenticatingEvent:
		t.status = StatusAuthenticating
	case SessionEstablishedEvent:
		t.status = StatusAuthenticating
	case DeviceConfiguredEvent:
		t.device = e.Device
		t.ip = e.IP
	case ConnectedEvent:
		if e.IP != "" {
			t.ip = e.IP
		}
		if e.Device != "" {
			t.device = e.Device
		}
		t.status = StatusConnected
	case DisconnectedEvent:
		t.status = StatusNotConnected
		t.ip = ""
		t.device = ""
	case ErrorEvent:
		t.status = StatusFailed
	case UnrecognizedEvent:
		// No state change.
	}
}

// Status returns the current status.
func (t *Tracker) Status() Status {
	return t.status
}

// Address returns the tunnel IP and device of the current connection.
func (t *Tracker) Address() (ip, device string) {
	return t.ip, t.device
}

// Describe returns a one-line summary of an event for logging.
func Describe(ev ConnectionEvent) string {
	switch e := ev.(type) {
	case AuthenticatingEvent:
		return "authenticating: " + e.Message
	case SessionEstablishedEvent:
		return "session established"
	case DeviceConfiguredEvent:
		return fmt.Sprintf("device %s configured as %s", e.Device, e.IP)
	case ConnectedEvent:
		return fmt.Sprintf("connected (%s on %s)", e.IP, e.Device)
	case DisconnectedEvent:
		return "disconnected: " + e.Reason.String()
	case ErrorEvent:
		return "error: " + e.Kind.Error()
	case UnrecognizedEvent:
		return "unrecognized output"
	default:
		return "unknown event"
	}
}

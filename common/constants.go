package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "ocguard"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "ocguard"
	// ClientExecutable is the VPN client binary ocguard supervises.
	ClientExecutable = "openconnect"
	// KeyringService is the identifier used for keyring entries.
	KeyringService = "ocguard"
)

// File names used by the application.
const (
	ConfigFileName      = "config.yaml"
	StateFileName       = "state.json"
	HistoryFileName     = "history.db"
	CredentialsFileName = ".credentials"
	LogFileName         = "ocguard.log"
	PIDFileName         = "ocguard.pid"
)

// Default timeouts and intervals.
const (
	// ConnectTimeout is the maximum time to wait for the client to report
	// an established connection.
	ConnectTimeout = 60 * time.Second
	// TerminatePollInterval is how often process liveness is re-checked
	// while waiting for a signalled process to exit.
	TerminatePollInterval = 500 * time.Millisecond
	// TerminateGraceTimeout is how long a process gets after SIGTERM
	// before escalation to SIGKILL.
	TerminateGraceTimeout = 5 * time.Second
	// TerminateKillTimeout is how long a process gets after SIGKILL.
	TerminateKillTimeout = 500 * time.Millisecond
	// ProbeInterval is the default health probe period.
	ProbeInterval = 60 * time.Second
	// ProbeTimeout is the default per-probe budget.
	ProbeTimeout = 5 * time.Second
)

// Default reconnection policy values.
const (
	DefaultMaxAttempts       = 5
	DefaultBaseInterval      = 5 * time.Second
	DefaultBackoffMultiplier = 2
	DefaultMaxInterval       = 60 * time.Second
	DefaultFailureThreshold  = 3
)

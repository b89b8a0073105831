package vpn

import (
	"context"
	"time"

	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/config"
	"github.com/ocguard/ocguard/events"
	"github.com/ocguard/ocguard/history"
)

// Common errors - re-exported from common package for convenience.
var (
	ErrAlreadyConnected = common.ErrAlreadyConnected
	ErrNotConnected     = common.ErrNotConnected
	ErrConnectionFailed = common.ErrConnectionFailed
)

// StatusInfo is a snapshot returned by Status.
type StatusInfo struct {
	// State is the persisted descriptor, nil when not connected.
	State *State
	// Live reports whether the recorded process is actually running.
	Live bool
	// Controller is the recovery state machine's current state.
	Controller ControllerState
	// Probe is the result of the on-demand liveness check, nil when no
	// connection exists to check.
	Probe *ProbeResult
}

// Manager is the supervisor facade: it owns the connector, health
// prober, reconnection controller, and reaper for the single configured
// connection.
type Manager struct {
	cfg         *config.Config
	store       *StateStore
	connector   *Connector
	prober      *Prober
	controller  *Controller
	reaper      *Reaper
	bus         *events.Bus
	credentials CredentialProvider
	history     *history.Store
}

// NewManager wires the supervisor subsystems together. The history
// store and bus are optional.
func NewManager(cfg *config.Config, credentials CredentialProvider, bus *events.Bus, hist *history.Store) (*Manager, error) {
	store, err := NewStateStore()
	if err != nil {
		return nil, err
	}
	return newManager(cfg, credentials, bus, hist, store), nil
}

func newManager(cfg *config.Config, credentials CredentialProvider, bus *events.Bus, hist *history.Store, store *StateStore) *Manager {
	connector := NewConnector(ConnectorConfig{
		Server:   cfg.Server,
		Username: cfg.Username,
		Protocol: cfg.Protocol,
		NoDTLS:   cfg.NoDTLS,
	}, store, bus)

	prober := NewProber(ProberConfig{
		Endpoint: cfg.Health.Endpoint,
		Interval: cfg.Health.Interval.Std(),
		Timeout:  cfg.Health.Timeout.Std(),
	}, bus)

	m := &Manager{
		cfg:         cfg,
		store:       store,
		connector:   connector,
		prober:      prober,
		reaper:      NewReaper(bus),
		bus:         bus,
		credentials: credentials,
		history:     hist,
	}

	// The controller drives the connector through the manager so every
	// incarnation it creates or tears down gets a history row, not just
	// the manual connect path.
	m.controller = NewController(ControllerConfig{
		MaxAttempts:      cfg.Reconnect.MaxAttempts,
		BaseInterval:     cfg.Reconnect.BaseInterval.Std(),
		Multiplier:       cfg.Reconnect.Multiplier,
		MaxInterval:      cfg.Reconnect.MaxInterval.Std(),
		FailureThreshold: cfg.Reconnect.FailureThreshold,
	}, recoveryConnection{m}, credentials, bus)

	prober.SetOnResult(m.controller.OnProbeResult)
	return m
}

// recoveryConnection is the connection surface handed to the
// reconnection controller.
type recoveryConnection struct {
	m *Manager
}

func (rc recoveryConnection) Connect(ctx context.Context, creds Credentials) error {
	if err := rc.m.connector.Connect(ctx, creds); err != nil {
		return err
	}
	rc.m.recordConnect()
	return nil
}

func (rc recoveryConnection) Disconnect() error {
	// The session survives cleanup, so it is still readable afterwards,
	// but the row should close with the teardown, not after it.
	rc.m.recordDisconnect(rc.m.connector.Session(), ReasonProcessTerminated.String())
	return rc.m.connector.Disconnect()
}

// Connector returns the underlying process connector.
func (m *Manager) Connector() *Connector {
	return m.connector
}

// Controller returns the reconnection controller.
func (m *Manager) Controller() *Controller {
	return m.controller
}

// Connect establishes the VPN connection. With force set, stale or
// conflicting state is cleaned up first instead of failing.
func (m *Manager) Connect(ctx context.Context, force bool) error {
	state, err := m.store.Load()
	if err != nil {
		common.LogWarn("Unreadable connection state, discarding: %v", err)
		m.store.Clear()
		state = nil
	}

	if state != nil {
		if state.Verify() && !force {
			return common.WrapError(common.ErrAlreadyConnected,
				"already connected since "+state.ConnectedAt.Format(time.RFC3339))
		}
		// Stale record or forced reconnect: tear down whatever is left.
		common.LogInfo("Cleaning up previous connection (pid %d)", state.PID)
		if err := m.Disconnect(); err != nil {
			return err
		}
	} else {
		// Orphans can exist without a state record, e.g. after a crash.
		m.reaper.Sweep()
	}

	creds, err := m.credentials(ctx)
	if err != nil {
		return err
	}

	if err := m.connector.Connect(ctx, creds); err != nil {
		return err
	}

	m.controller.NotifyConnected()
	if m.cfg.Reconnect.Enabled {
		m.controller.Arm()
	}
	m.prober.Start()

	m.recordConnect()
	return nil
}

// recordConnect opens a history row for the incarnation described by
// the freshly persisted state.
func (m *Manager) recordConnect() {
	if m.history == nil {
		return
	}
	st, err := m.store.Load()
	if err != nil || st == nil {
		return
	}
	if err := m.history.RecordConnect(st.Session, m.cfg.Server, st.IP, st.Device, st.ConnectedAt); err != nil {
		common.LogWarn("Failed to record connection history: %v", err)
	}
}

// recordDisconnect closes the history row for a session. Closing an
// already-closed or unknown session is a no-op.
func (m *Manager) recordDisconnect(session, reason string) {
	if m.history == nil || session == "" {
		return
	}
	if err := m.history.RecordDisconnect(session, reason, time.Now()); err != nil {
		common.LogWarn("Failed to record disconnection history: %v", err)
	}
}

// Disconnect tears down the connection and sweeps for orphans. It is
// idempotent: succeeding with nothing running is the expected outcome.
func (m *Manager) Disconnect() error {
	m.prober.Stop()
	m.controller.Stop()

	session := m.connector.Session()
	tracked := m.connector.PID()

	if err := m.connector.Disconnect(); err != nil {
		return err
	}

	// The sweep runs unconditionally: orphans may exist that no handle
	// ever tracked.
	m.reaper.Sweep(tracked)

	if err := m.store.Clear(); err != nil {
		return err
	}

	m.recordDisconnect(session, ReasonUserRequested.String())
	return nil
}

// Status reports the persisted state plus a live liveness check.
func (m *Manager) Status(ctx context.Context) (*StatusInfo, error) {
	info := &StatusInfo{Controller: m.controller.State()}

	state, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return info, nil
	}

	info.State = state
	info.Live = state.Verify()
	if info.Live {
		result := m.prober.Probe(ctx)
		info.Probe = &result
	}
	return info, nil
}

// Reset clears the Failed recovery state and retry counters.
func (m *Manager) Reset() {
	m.controller.Reset()
}

// SetNetworkAvailable forwards host connectivity transitions to the
// recovery controller. Connectivity returning does not wait for the
// next probe tick.
func (m *Manager) SetNetworkAvailable(up bool) {
	m.controller.SetNetworkAvailable(up)
	if up && m.prober.IsRunning() {
		go func() {
			m.prober.report(m.prober.Probe(context.Background()))
		}()
	}
}

// ApplyConfig applies reloaded probe and recovery settings to the
// running subsystems. Connection parameters (server, protocol, account)
// take effect on the next connection.
func (m *Manager) ApplyConfig(cfg *config.Config) {
	m.cfg = cfg
	m.prober.Reconfigure(ProberConfig{
		Endpoint: cfg.Health.Endpoint,
		Interval: cfg.Health.Interval.Std(),
		Timeout:  cfg.Health.Timeout.Std(),
	})
	m.controller.Reconfigure(ControllerConfig{
		MaxAttempts:      cfg.Reconnect.MaxAttempts,
		BaseInterval:     cfg.Reconnect.BaseInterval.Std(),
		Multiplier:       cfg.Reconnect.Multiplier,
		MaxInterval:      cfg.Reconnect.MaxInterval.Std(),
		FailureThreshold: cfg.Reconnect.FailureThreshold,
	})
}

// Close stops background loops. The connection itself is left running;
// use Disconnect to tear it down.
func (m *Manager) Close() {
	m.prober.Stop()
	m.controller.Stop()
}

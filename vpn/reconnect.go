package vpn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/events"
)

// ControllerState is the reconnection controller's state machine.
type ControllerState int

const (
	ControllerIdle ControllerState = iota
	ControllerMonitoring
	ControllerReconnecting
	ControllerFailed
)

// String returns a human-readable controller state.
func (s ControllerState) String() string {
	switch s {
	case ControllerIdle:
		return "Idle"
	case ControllerMonitoring:
		return "Monitoring"
	case ControllerReconnecting:
		return "Reconnecting"
	case ControllerFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Connection is the connection surface the controller drives.
type Connection interface {
	Connect(ctx context.Context, creds Credentials) error
	Disconnect() error
}

// CredentialProvider supplies fresh credentials for each reconnection
// attempt. One-time codes expire, so credentials are never cached.
type CredentialProvider func(ctx context.Context) (Credentials, error)

// ControllerConfig holds the bounded-backoff recovery parameters.
type ControllerConfig struct {
	MaxAttempts      int
	BaseInterval     time.Duration
	Multiplier       int
	MaxInterval      time.Duration
	FailureThreshold int
}

// DefaultControllerConfig returns the default recovery parameters.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxAttempts:      common.DefaultMaxAttempts,
		BaseInterval:     common.DefaultBaseInterval,
		Multiplier:       common.DefaultBackoffMultiplier,
		MaxInterval:      common.DefaultMaxInterval,
		FailureThreshold: common.DefaultFailureThreshold,
	}
}

// Controller autonomously re-establishes connectivity after transient
// failures. Consecutive probe failures beyond the threshold trigger a
// reconnection cycle with bounded exponential backoff; exhausting
// MaxAttempts parks the controller in Failed until an explicit Reset.
type Controller struct {
	config      ControllerConfig
	conn        Connection
	credentials CredentialProvider
	bus         *events.Bus

	mu                  sync.Mutex
	state               ControllerState
	attempts            int
	consecutiveFailures int
	lastAttempt         time.Time
	networkDown         bool
	stopChan            chan struct{}

	// inflight enforces at most one reconnection cycle at a time.
	inflight sync.Mutex
}

// NewController creates a controller in the Idle state.
func NewController(config ControllerConfig, conn Connection, credentials CredentialProvider, bus *events.Bus) *Controller {
	return &Controller{
		config:      config,
		conn:        conn,
		credentials: credentials,
		bus:         bus,
		state:       ControllerIdle,
	}
}

// State returns a non-blocking snapshot of the controller state.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current failed-attempt count.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Arm moves the controller from Idle to Monitoring.
func (c *Controller) Arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ControllerIdle {
		return
	}
	c.state = ControllerMonitoring
	c.stopChan = make(chan struct{})
	common.LogInfo("Reconnection controller armed (threshold: %d, max attempts: %d)",
		c.config.FailureThreshold, c.config.MaxAttempts)
}

// Stop returns the controller to Idle and cancels any pending backoff
// wait.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ControllerIdle {
		return
	}
	c.state = ControllerIdle
	c.attempts = 0
	c.consecutiveFailures = 0
	if c.stopChan != nil {
		close(c.stopChan)
		c.stopChan = nil
	}
}

// Reset clears the Failed terminal state and retry counters, re-arming
// autonomous recovery.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = 0
	c.consecutiveFailures = 0
	if c.state == ControllerFailed {
		c.state = ControllerMonitoring
		if c.stopChan == nil {
			c.stopChan = make(chan struct{})
		}
		common.LogInfo("Reconnection controller reset, monitoring resumed")
	}
}

// Reconfigure applies new recovery parameters. State and counters are
// preserved; the next attempt uses the new policy.
func (c *Controller) Reconfigure(config ControllerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = config
}

// NotifyConnected resets the failure counters after any successful
// connection, manual or autonomous.
func (c *Controller) NotifyConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = 0
	c.consecutiveFailures = 0
}

// SetNetworkAvailable gates recovery on host connectivity. Reconnecting
// while the physical network is down wastes attempts that cannot
// succeed.
func (c *Controller) SetNetworkAvailable(up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.networkDown = !up
	if !up {
		common.LogInfo("Network down, reconnection attempts suspended")
	}
}

// OnProbeResult feeds one health probe outcome into the controller.
// Success resets the consecutive-failure counter immediately; the
// counter is binary per interval with no gradual decay.
func (c *Controller) OnProbeResult(result ProbeResult) {
	c.mu.Lock()
	if result.Success {
		c.consecutiveFailures = 0
		c.mu.Unlock()
		return
	}

	// Probe failures while the host network is down say nothing about
	// the tunnel; they are not counted.
	if c.networkDown {
		c.mu.Unlock()
		return
	}

	c.consecutiveFailures++
	trigger := c.state == ControllerMonitoring &&
		c.consecutiveFailures >= c.config.FailureThreshold
	c.mu.Unlock()

	if trigger {
		go c.reconnect()
	}
}

// Backoff returns the delay before a given 1-based attempt:
// min(base * multiplier^(attempt-1), max).
func (c *Controller) Backoff(attempt int) time.Duration {
	interval := c.config.BaseInterval
	for i := 1; i < attempt; i++ {
		interval *= time.Duration(c.config.Multiplier)
		if interval >= c.config.MaxInterval {
			return c.config.MaxInterval
		}
	}
	if interval > c.config.MaxInterval {
		return c.config.MaxInterval
	}
	return interval
}

// reconnect runs one full recovery cycle. The in-flight guard makes
// duplicate triggers no-ops instead of queueing extra cycles.
func (c *Controller) reconnect() {
	if !c.inflight.TryLock() {
		return
	}
	defer c.inflight.Unlock()

	c.mu.Lock()
	// A trigger that lost the race to an already-completed cycle is
	// stale once the counter has been reset.
	if c.state != ControllerMonitoring || c.consecutiveFailures < c.config.FailureThreshold {
		c.mu.Unlock()
		return
	}
	c.state = ControllerReconnecting
	stop := c.stopChan
	c.mu.Unlock()

	common.LogWarn("Connection unhealthy, starting reconnection")

	for {
		c.mu.Lock()
		if c.state != ControllerReconnecting {
			c.mu.Unlock()
			return
		}
		if c.attempts >= c.config.MaxAttempts {
			c.state = ControllerFailed
			c.mu.Unlock()
			common.LogError("Reconnection failed after %d attempts, manual reset required",
				c.config.MaxAttempts)
			return
		}
		attempt := c.attempts + 1
		delay := c.Backoff(attempt)
		c.lastAttempt = time.Now()
		c.mu.Unlock()

		common.LogInfo("Reconnection attempt %d/%d in %v", attempt, c.config.MaxAttempts, delay)
		if c.bus != nil {
			c.bus.Publish(events.ReconnectAttemptEvent{
				Attempt:     attempt,
				MaxAttempts: c.config.MaxAttempts,
				Delay:       delay,
				Timestamp:   time.Now(),
			})
		}

		// Tear down the old incarnation before waiting so its events can
		// never interleave with the new one's.
		if err := c.conn.Disconnect(); err != nil {
			common.LogWarn("Disconnect before reconnect failed: %v", err)
		}

		select {
		case <-time.After(delay):
		case <-stop:
			return
		}

		err := c.attemptConnect()
		if err == nil {
			c.mu.Lock()
			c.attempts = 0
			c.consecutiveFailures = 0
			c.state = ControllerMonitoring
			c.mu.Unlock()
			common.LogInfo("Reconnection successful")
			return
		}

		// Stale credentials will not self-correct; retrying the same
		// secret only locks the account.
		if errors.Is(err, common.ErrAuthenticationFailed) {
			c.mu.Lock()
			c.state = ControllerFailed
			c.mu.Unlock()
			common.LogError("Authentication failed during reconnect, manual reset required")
			return
		}

		c.mu.Lock()
		c.attempts++
		c.mu.Unlock()
		common.LogWarn("Reconnection attempt %d failed: %v", attempt, err)
	}
}

func (c *Controller) attemptConnect() error {
	ctx := context.Background()
	creds, err := c.credentials(ctx)
	if err != nil {
		return common.WrapError(err, "failed to obtain fresh credentials")
	}
	return c.conn.Connect(ctx, creds)
}

package vpn

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/events"
)

// Credentials is the finished secret material piped to the client.
// It is delivered exclusively through the child's standard input, never
// as process arguments or environment variables.
type Credentials struct {
	Password string
}

// ConnectorConfig holds the spawn parameters for the VPN client.
type ConnectorConfig struct {
	Server   string
	Username string
	Protocol string
	NoDTLS   bool
	// ConnectTimeout bounds how long connect() waits for a terminal event.
	ConnectTimeout time.Duration
}

// Connector owns one VPN client child process end to end: spawn, stream
// consumption, classification, and termination. One connector supervises
// at most one process incarnation at a time.
type Connector struct {
	config ConnectorConfig
	parser *Parser
	store  *StateStore
	bus    *events.Bus

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	session     string
	tracker     *Tracker
	connecting  bool
	termination bool
	exited      chan struct{}
	subscribers []chan ConnectionEvent
}

// NewConnector creates a connector. The bus is optional.
func NewConnector(config ConnectorConfig, store *StateStore, bus *events.Bus) *Connector {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = common.ConnectTimeout
	}
	return &Connector{
		config:  config,
		parser:  NewParser(),
		store:   store,
		bus:     bus,
		tracker: NewTracker(),
	}
}

// Subscribe returns a channel receiving every classified event in
// emission order. Slow subscribers drop events rather than stalling the
// stream monitor.
func (c *Connector) Subscribe() <-chan ConnectionEvent {
	ch := make(chan ConnectionEvent, 64)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Status returns a non-blocking snapshot of the current status.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Status()
}

// PID returns the supervised process ID, or 0 when nothing is running.
func (c *Connector) PID() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return int32(c.cmd.Process.Pid)
}

// Session returns the identifier of the current process incarnation.
func (c *Connector) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connect spawns the client, pipes the credentials, and monitors output
// until the tunnel is up, the process exits, the timeout elapses, or ctx
// is cancelled, whichever comes first. On success the persisted state is
// written and monitoring continues in the background.
func (c *Connector) Connect(ctx context.Context, creds Credentials) error {
	c.mu.Lock()
	// The slot is reserved before the lock is released for the spawn, so
	// a concurrent Connect cannot also pass the availability check.
	if c.cmd != nil || c.connecting {
		c.mu.Unlock()
		return common.ErrAlreadyConnected
	}
	c.connecting = true
	session := uuid.NewString()
	c.session = session
	c.termination = false
	c.tracker = NewTracker()
	c.mu.Unlock()

	cmd, stdin, evCh, err := c.spawn(creds)
	if err != nil {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		return err
	}

	exited := make(chan struct{})
	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.exited = exited
	c.connecting = false
	c.mu.Unlock()

	go func() {
		cmd.Wait()
		close(exited)
	}()

	c.setStatus(StatusConnecting, "")

	timeout := time.NewTimer(c.config.ConnectTimeout)
	defer timeout.Stop()

	for {
		select {
		case ev, ok := <-evCh:
			if !ok {
				// Streams closed without a terminal event: the process is
				// exiting before the tunnel came up.
				c.failConnect(ReasonProcessTerminated)
				return common.WrapError(common.ErrUnexpectedTermination,
					"client exited before the connection was established")
			}
			done, err := c.handleConnectEvent(ev)
			if err != nil {
				c.failConnect(ReasonProcessTerminated)
				go drainEvents(evCh)
				return err
			}
			if done {
				go c.monitor(evCh, exited, session)
				return nil
			}
		case <-exited:
			c.failConnect(ReasonProcessTerminated)
			go drainEvents(evCh)
			return common.WrapError(common.ErrUnexpectedTermination,
				"client exited before the connection was established")
		case <-timeout.C:
			c.failConnect(ReasonTimeout)
			go drainEvents(evCh)
			return common.WrapError(common.ErrTimeout, "no connection within timeout")
		case <-ctx.Done():
			c.failConnect(ReasonUserRequested)
			go drainEvents(evCh)
			return common.WrapError(common.ErrCancelled, "connect cancelled")
		}
	}
}

// spawn starts the client process and returns the classified event
// stream fed by its stdout and stderr.
func (c *Connector) spawn(creds Credentials) (*exec.Cmd, io.WriteCloser, chan ConnectionEvent, error) {
	args := []string{
		"--protocol", c.config.Protocol,
		"--user", c.config.Username,
		"--passwd-on-stdin",
	}
	if c.config.NoDTLS {
		args = append(args, "--no-dtls")
	}
	args = append(args, c.config.Server)

	cmd := exec.Command(common.ClientExecutable, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, common.WrapError(common.ErrSpawnFailed, err.Error())
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, common.WrapError(common.ErrSpawnFailed, err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, common.WrapError(common.ErrSpawnFailed, err.Error())
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, common.WrapError(common.ErrSpawnFailed, err.Error())
	}
	common.LogInfo("Spawned %s (pid %d)", common.ClientExecutable, cmd.Process.Pid)

	// Write the secret and keep stdin open: the client treats a closed
	// stdin as a signal to shut down.
	if _, err := io.WriteString(stdin, creds.Password+"\n"); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, nil, nil, common.WrapError(common.ErrSpawnFailed, "failed to deliver credentials")
	}

	evCh := make(chan ConnectionEvent, 64)
	var wg sync.WaitGroup
	wg.Add(2)
	go c.consumeStream(stdout, c.parser.ParseLine, evCh, &wg)
	go c.consumeStream(stderr, c.parser.ParseError, evCh, &wg)
	go func() {
		wg.Wait()
		close(evCh)
	}()

	return cmd, stdin, evCh, nil
}

// drainEvents discards the rest of a stream after a failed connect so
// the scanner goroutines can run to completion.
func drainEvents(evCh <-chan ConnectionEvent) {
	for range evCh {
	}
}

// consumeStream classifies each line of one output stream in order.
func (c *Connector) consumeStream(r io.Reader, classify func(string) ConnectionEvent, evCh chan<- ConnectionEvent, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		common.LogDebug("%s: %s", common.ClientExecutable, line)
		evCh <- classify(line)
	}
}

// handleConnectEvent processes one event during the connect phase.
// Returns done=true once the tunnel is up.
func (c *Connector) handleConnectEvent(ev ConnectionEvent) (bool, error) {
	c.dispatch(ev)

	switch e := ev.(type) {
	case ConnectedEvent:
		c.mu.Lock()
		ip, device := c.tracker.Address()
		pid := int32(c.cmd.Process.Pid)
		session := c.session
		c.mu.Unlock()

		state := &State{
			IP:          ip,
			Device:      device,
			ConnectedAt: time.Now(),
			PID:         pid,
			Session:     session,
		}
		if err := c.store.Save(state); err != nil {
			common.LogError("Failed to persist connection state: %v", err)
		}
		common.LogInfo("Connected: %s on %s (pid %d)", ip, device, pid)
		return true, nil

	case ErrorEvent:
		common.LogError("Client error: %s (%s)", e.Kind, e.RawOutput)
		return false, e.Kind

	default:
		return false, nil
	}
}

// monitor consumes the remaining event stream after connect returns.
// An exit outside the disconnect flow becomes an explicit Disconnected
// event, never a silent drop.
func (c *Connector) monitor(evCh chan ConnectionEvent, exited chan struct{}, session string) {
	for ev := range evCh {
		c.dispatch(ev)
	}
	<-exited

	c.mu.Lock()
	stale := c.session != session
	requested := c.termination
	c.mu.Unlock()
	if stale {
		return
	}

	if !requested {
		common.LogWarn("Client process exited unexpectedly")
		// State goes first so observers of the event never see a stale
		// descriptor.
		c.cleanup()
		c.dispatch(DisconnectedEvent{Reason: ReasonProcessTerminated})
	}
}

// Disconnect gracefully terminates the supervised process: SIGTERM,
// liveness polls every 500ms for up to 5s, then SIGKILL with a final
// 500ms wait. The persisted state is always removed, and calling this
// with nothing running is a successful no-op.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	c.termination = true
	cmd := c.cmd
	exited := c.exited
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return c.store.Clear()
	}

	pid := cmd.Process.Pid
	c.setStatus(StatusDisconnecting, "")
	common.LogInfo("Sending SIGTERM to pid %d", pid)

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone; nothing to wait for.
		c.finishDisconnect()
		return nil
	}

	grace := time.NewTimer(common.TerminateGraceTimeout)
	defer grace.Stop()

	select {
	case <-exited:
		common.LogInfo("Client terminated gracefully")
	case <-grace.C:
		common.LogWarn("Graceful shutdown timed out, sending SIGKILL to pid %d", pid)
		if err := cmd.Process.Kill(); err != nil && isPermissionError(err) {
			common.LogWarn("Cannot kill pid %d: permission denied", pid)
		}
		select {
		case <-exited:
		case <-time.After(common.TerminateKillTimeout):
			common.LogWarn("Process %d still present after SIGKILL", pid)
		}
	}

	c.finishDisconnect()
	return nil
}

func (c *Connector) finishDisconnect() {
	c.cleanup()
	c.dispatch(DisconnectedEvent{Reason: ReasonUserRequested})
}

// failConnect tears down a half-started process after a failed connect.
func (c *Connector) failConnect(reason DisconnectReason) {
	c.mu.Lock()
	c.termination = true
	cmd := c.cmd
	exited := c.exited
	c.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-exited:
		case <-time.After(common.TerminateGraceTimeout):
			cmd.Process.Kill()
		}
	}

	c.cleanup()
	c.dispatch(DisconnectedEvent{Reason: reason})
}

// cleanup releases the process handle and removes persisted state.
func (c *Connector) cleanup() {
	c.mu.Lock()
	if c.stdin != nil {
		c.stdin.Close()
		c.stdin = nil
	}
	c.cmd = nil
	c.exited = nil
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		common.LogWarn("Failed to clear connection state: %v", err)
	}
}

// dispatch applies an event to the tracker and fans it out to
// subscribers and the notification bus in emission order.
func (c *Connector) dispatch(ev ConnectionEvent) {
	c.mu.Lock()
	previous := c.tracker.Status()
	c.tracker.Apply(ev)
	current := c.tracker.Status()
	session := c.session
	subs := make([]chan ConnectionEvent, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	if _, ok := ev.(UnrecognizedEvent); ok {
		common.LogDebug("Unclassified client output")
	} else {
		common.LogDebug("Event: %s", Describe(ev))
	}

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}

	if c.bus != nil && previous != current {
		c.bus.Publish(events.StateChangedEvent{
			Session:   session,
			Previous:  previous.String(),
			Current:   current.String(),
			Reason:    Describe(ev),
			Timestamp: time.Now(),
		})
	}
}

// setStatus publishes an externally driven status transition.
func (c *Connector) setStatus(status Status, reason string) {
	c.mu.Lock()
	previous := c.tracker.Status()
	c.tracker.status = status
	session := c.session
	c.mu.Unlock()

	if c.bus != nil && previous != status {
		c.bus.Publish(events.StateChangedEvent{
			Session:   session,
			Previous:  previous.String(),
			Current:   status.String(),
			Reason:    reason,
			Timestamp: time.Now(),
		})
	}
}

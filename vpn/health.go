package vpn

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/events"
)

// ProbeResult is the outcome of one liveness probe.
type ProbeResult struct {
	Timestamp time.Time
	Success   bool
	Latency   time.Duration
	Err       error
}

// ProberConfig holds configuration for the health prober.
type ProberConfig struct {
	// Endpoint is the HTTP(S) URL probed for reachability.
	Endpoint string
	// Interval is how often a probe fires.
	Interval time.Duration
	// Timeout bounds a single probe.
	Timeout time.Duration
}

// DefaultProberConfig returns sensible probe defaults.
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		Endpoint: "https://www.gstatic.com/generate_204",
		Interval: common.ProbeInterval,
		Timeout:  common.ProbeTimeout,
	}
}

// Prober periodically checks network liveness independently of the VPN
// client's own reporting. Any HTTP response within the timeout counts as
// success regardless of status code; only timeouts and connection errors
// count as failures. Exactly one probe runs per interval, with no
// internal retry.
type Prober struct {
	mu       sync.Mutex
	config   ProberConfig
	client   *http.Client
	bus      *events.Bus
	onResult func(ProbeResult)
	running  bool
	stopChan chan struct{}
}

// NewProber creates a prober. The bus is optional; when set, each probe
// publishes a ProbeResultEvent.
func NewProber(config ProberConfig, bus *events.Bus) *Prober {
	return &Prober{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		bus:    bus,
	}
}

// SetOnResult sets a callback invoked with each probe result.
func (p *Prober) SetOnResult(callback func(ProbeResult)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResult = callback
}

// Start begins the probe loop.
func (p *Prober) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	stop := p.stopChan
	interval := p.config.Interval
	p.mu.Unlock()

	common.LogInfo("Health prober started (endpoint: %s, interval: %v)",
		p.config.Endpoint, interval)

	go p.runLoop(stop, interval)
}

// Reconfigure applies new probe settings. A running loop is restarted
// so the new interval takes effect immediately.
func (p *Prober) Reconfigure(config ProberConfig) {
	p.mu.Lock()
	p.config = config
	p.client = &http.Client{Timeout: config.Timeout}
	if p.running {
		close(p.stopChan)
		p.stopChan = make(chan struct{})
		go p.runLoop(p.stopChan, config.Interval)
	}
	p.mu.Unlock()
}

// Stop stops the probe loop.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	common.LogInfo("Health prober stopped")
}

// IsRunning returns whether the probe loop is active.
func (p *Prober) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Prober) runLoop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			result := p.Probe(context.Background())
			p.report(result)
		}
	}
}

// Probe issues a single bounded liveness check.
func (p *Prober) Probe(ctx context.Context) ProbeResult {
	start := time.Now()
	result := ProbeResult{Timestamp: start}

	p.mu.Lock()
	endpoint := p.config.Endpoint
	client := p.client
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		result.Err = common.WrapError(err, "invalid probe endpoint")
		return result
	}

	resp, err := client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Err = err
		return result
	}
	resp.Body.Close()

	result.Success = true
	return result
}

func (p *Prober) report(result ProbeResult) {
	if result.Success {
		common.LogDebug("Health probe ok (%v)", result.Latency)
	} else {
		common.LogWarn("Health probe failed: %v", result.Err)
	}

	if p.bus != nil {
		ev := events.ProbeResultEvent{
			Success:   result.Success,
			Latency:   result.Latency,
			Timestamp: result.Timestamp,
		}
		if result.Err != nil {
			ev.Error = result.Err.Error()
		}
		p.bus.Publish(ev)
	}

	p.mu.Lock()
	callback := p.onResult
	p.mu.Unlock()
	if callback != nil {
		callback(result)
	}
}

package vpn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProber_Probe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	prober := NewProber(ProberConfig{
		Endpoint: server.URL,
		Interval: time.Minute,
		Timeout:  2 * time.Second,
	}, nil)

	result := prober.Probe(context.Background())
	if !result.Success {
		t.Errorf("Probe() failed: %v", result.Err)
	}
	if result.Latency <= 0 {
		t.Error("Probe() should record latency")
	}
}

// Connectivity check, not a health check of the endpoint: any HTTP
// response counts as success.
func TestProber_Probe_ErrorStatusIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	prober := NewProber(ProberConfig{
		Endpoint: server.URL,
		Interval: time.Minute,
		Timeout:  2 * time.Second,
	}, nil)

	result := prober.Probe(context.Background())
	if !result.Success {
		t.Errorf("Probe() should succeed on any HTTP response, got %v", result.Err)
	}
}

func TestProber_Probe_ConnectionRefused(t *testing.T) {
	// Reserve a port and close the listener so the address refuses.
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	prober := NewProber(ProberConfig{
		Endpoint: url,
		Interval: time.Minute,
		Timeout:  time.Second,
	}, nil)

	result := prober.Probe(context.Background())
	if result.Success {
		t.Error("Probe() should fail when the endpoint is unreachable")
	}
	if result.Err == nil {
		t.Error("failed probe should carry an error")
	}
}

func TestProber_Probe_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	prober := NewProber(ProberConfig{
		Endpoint: server.URL,
		Interval: time.Minute,
		Timeout:  50 * time.Millisecond,
	}, nil)

	result := prober.Probe(context.Background())
	if result.Success {
		t.Error("Probe() should fail on timeout")
	}
}

func TestProber_StartStop(t *testing.T) {
	prober := NewProber(DefaultProberConfig(), nil)

	prober.Start()
	if !prober.IsRunning() {
		t.Error("prober should be running after Start")
	}

	// Second Start is a no-op.
	prober.Start()

	prober.Stop()
	if prober.IsRunning() {
		t.Error("prober should not be running after Stop")
	}

	// Second Stop is a no-op.
	prober.Stop()
}

func TestProber_CallbackReceivesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	results := make(chan ProbeResult, 1)
	prober := NewProber(ProberConfig{
		Endpoint: server.URL,
		Interval: time.Minute,
		Timeout:  2 * time.Second,
	}, nil)
	prober.SetOnResult(func(r ProbeResult) {
		select {
		case results <- r:
		default:
		}
	})

	prober.report(prober.Probe(context.Background()))

	select {
	case r := <-results:
		if !r.Success {
			t.Errorf("callback result failed: %v", r.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

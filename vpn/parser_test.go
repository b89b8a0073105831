package vpn

import (
	"errors"
	"testing"

	"github.com/ocguard/ocguard/common"
)

func TestParser_ParseLine(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name string
		line string
		want ConnectionEvent
	}{
		{
			"legacy connected format",
			"Connected tun0 as 10.0.1.100",
			DeviceConfiguredEvent{Device: "tun0", IP: "10.0.1.100"},
		},
		{
			"f5 configured with ssl confirmation",
			"Configured as 10.10.62.228, with SSL connected and DTLS disabled",
			ConnectedEvent{IP: "10.10.62.228", Device: "tun"},
		},
		{
			"legacy ip address line",
			"Got Legacy IP address 10.10.1.5",
			DeviceConfiguredEvent{Device: "tun", IP: "10.10.1.5"},
		},
		{
			"authentication failure",
			"Failed to authenticate: bad password",
			ErrorEvent{Kind: common.ErrAuthenticationFailed, RawOutput: "Failed to authenticate: bad password"},
		},
		{
			"post request",
			"POST https://vpn.example.com/my.policy",
			AuthenticatingEvent{Message: "Authenticating with server..."},
		},
		{
			"connect response",
			"Got CONNECT response: HTTP/1.1 200 OK",
			AuthenticatingEvent{Message: "Received server response"},
		},
		{
			"session manager",
			"Connected to F5 Session Manager",
			SessionEstablishedEvent{},
		},
		{
			"established connection",
			"Established connection to gateway",
			AuthenticatingEvent{Message: "Establishing connection..."},
		},
		{
			"authenticating ellipsis",
			"Authenticating...",
			AuthenticatingEvent{Message: "Authenticating with server..."},
		},
		{
			"bare connected",
			"Connected",
			ConnectedEvent{},
		},
		{
			"unknown output",
			"some random noise",
			UnrecognizedEvent{Line: "some random noise"},
		},
		{
			"malformed ip degrades to unrecognized",
			"Connected tun0 as not-an-address",
			UnrecognizedEvent{Line: "Connected tun0 as not-an-address"},
		},
		{
			"ipv6 address",
			"Connected tun1 as 2001:db8::1",
			DeviceConfiguredEvent{Device: "tun1", IP: "2001:db8::1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parser.ParseLine(tt.line)
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %#v, want %#v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParser_ParseError(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		line     string
		wantKind error
	}{
		{"auth failure", "Failed to authenticate to server", common.ErrAuthenticationFailed},
		{"ssl error", "SSL connection failure", common.ErrConnectionFailed},
		{"handshake error", "TLS handshake timed out", common.ErrConnectionFailed},
		{"certificate error", "Server certificate verification failed", common.ErrConnectionFailed},
		{"tun error", "Failed to open tun device", common.ErrConnectionFailed},
		{"dns error", "getaddrinfo failed: Name or service not known", common.ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parser.ParseError(tt.line)
			errEv, ok := got.(ErrorEvent)
			if !ok {
				t.Fatalf("ParseError(%q) = %#v, want ErrorEvent", tt.line, got)
			}
			if !errors.Is(errEv.Kind, tt.wantKind) {
				t.Errorf("ParseError(%q) kind = %v, want %v", tt.line, errEv.Kind, tt.wantKind)
			}
			if errEv.RawOutput != tt.line {
				t.Errorf("ParseError(%q) should preserve the raw line", tt.line)
			}
		})
	}

	got := parser.ParseError("benign progress message")
	if _, ok := got.(UnrecognizedEvent); !ok {
		t.Errorf("unmatched stderr should be UnrecognizedEvent, got %#v", got)
	}
}

// Every line yields exactly one event, whatever the input.
func TestParser_Totality(t *testing.T) {
	parser := NewParser()

	lines := []string{
		"",
		"   ",
		"Connected",
		"Connected tun0 as",
		"Configured as ,",
		"POST http://insecure.example.com",
		"\x00binary\x01garbage",
		"Connected tun0 as 10.0.1.100 extra trailing text",
	}

	for _, line := range lines {
		if ev := parser.ParseLine(line); ev == nil {
			t.Errorf("ParseLine(%q) returned nil", line)
		}
		if ev := parser.ParseError(line); ev == nil {
			t.Errorf("ParseError(%q) returned nil", line)
		}
	}
}

func TestTracker_ConnectSequence(t *testing.T) {
	parser := NewParser()
	tracker := NewTracker()

	lines := []string{
		"Authenticating...",
		"Got Legacy IP address 10.10.1.5",
		"Connected",
	}
	for _, line := range lines {
		tracker.Apply(parser.ParseLine(line))
	}

	if tracker.Status() != StatusConnected {
		t.Errorf("status = %v, want Connected", tracker.Status())
	}
	ip, _ := tracker.Address()
	if ip != "10.10.1.5" {
		t.Errorf("ip = %q, want 10.10.1.5", ip)
	}
}

func TestTracker_DisconnectClearsAddress(t *testing.T) {
	tracker := NewTracker()
	tracker.Apply(ConnectedEvent{IP: "10.0.0.2", Device: "tun0"})
	tracker.Apply(DisconnectedEvent{Reason: ReasonServerDisconnect})

	if tracker.Status() != StatusNotConnected {
		t.Errorf("status = %v, want NotConnected", tracker.Status())
	}
	ip, device := tracker.Address()
	if ip != "" || device != "" {
		t.Errorf("address should be cleared, got %q/%q", ip, device)
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		event ConnectionEvent
		want  bool
	}{
		{ConnectedEvent{}, true},
		{DisconnectedEvent{}, true},
		{ErrorEvent{Kind: common.ErrConnectionFailed}, true},
		{AuthenticatingEvent{}, false},
		{SessionEstablishedEvent{}, false},
		{DeviceConfiguredEvent{}, false},
		{UnrecognizedEvent{}, false},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.event); got != tt.want {
			t.Errorf("IsTerminal(%T) = %v, want %v", tt.event, got, tt.want)
		}
	}
}

package vpn

import (
	"net"
	"regexp"
	"strings"

	"github.com/ocguard/ocguard/common"
)

// parseRule is a single classification rule. classify returns the event
// for a matching line, or false to let later rules try.
type parseRule struct {
	pattern  *regexp.Regexp
	classify func(re *regexp.Regexp, line string) (ConnectionEvent, bool)
}

// Parser classifies VPN client output lines into connection events.
// Rules are evaluated in order, most specific first; the first match wins.
// Lines no rule claims become UnrecognizedEvent so that output-format
// drift degrades gracefully instead of failing.
type Parser struct {
	stdoutRules []parseRule
	stderrRules []parseRule
}

// NewParser compiles the classification rules.
func NewParser() *Parser {
	match := func(ev ConnectionEvent) func(*regexp.Regexp, string) (ConnectionEvent, bool) {
		return func(_ *regexp.Regexp, _ string) (ConnectionEvent, bool) {
			return ev, true
		}
	}
	errEvent := func(kind error) func(*regexp.Regexp, string) (ConnectionEvent, bool) {
		return func(_ *regexp.Regexp, line string) (ConnectionEvent, bool) {
			return ErrorEvent{Kind: kind, RawOutput: line}, true
		}
	}

	return &Parser{
		stdoutRules: []parseRule{
			// Address assignment. Legacy clients print "Connected tun0 as
			// 10.0.1.100"; F5 mode prints "Configured as 10.10.62.228, with
			// SSL connected and DTLS disabled" where the same line confirms
			// the tunnel is up.
			{
				pattern:  regexp.MustCompile(`(?:Connected\s+(\w+)\s+as|Configured as)\s+(\S+)`),
				classify: classifyAddress,
			},
			{
				pattern: regexp.MustCompile(`Got\s+(?:Legacy\s+)?IP address\s+(\S+)`),
				classify: func(re *regexp.Regexp, line string) (ConnectionEvent, bool) {
					m := re.FindStringSubmatch(line)
					ip, ok := cleanIP(m[1])
					if !ok {
						return nil, false
					}
					return DeviceConfiguredEvent{Device: "tun", IP: ip}, true
				},
			},
			{
				pattern:  regexp.MustCompile(`Failed to authenticate`),
				classify: errEvent(common.ErrAuthenticationFailed),
			},
			{
				pattern:  regexp.MustCompile(`POST\s+https?://`),
				classify: match(AuthenticatingEvent{Message: "Authenticating with server..."}),
			},
			{
				pattern:  regexp.MustCompile(`Got CONNECT response`),
				classify: match(AuthenticatingEvent{Message: "Received server response"}),
			},
			{
				pattern:  regexp.MustCompile(`Connected to .*Session Manager`),
				classify: match(SessionEstablishedEvent{}),
			},
			{
				pattern:  regexp.MustCompile(`Established connection|SSL connected`),
				classify: match(AuthenticatingEvent{Message: "Establishing connection..."}),
			},
			{
				pattern:  regexp.MustCompile(`^Authenticating\b`),
				classify: match(AuthenticatingEvent{Message: "Authenticating with server..."}),
			},
			{
				pattern:  regexp.MustCompile(`^Connected[.!]?\s*$`),
				classify: match(ConnectedEvent{}),
			},
		},
		stderrRules: []parseRule{
			{
				pattern:  regexp.MustCompile(`Failed to authenticate`),
				classify: errEvent(common.ErrAuthenticationFailed),
			},
			{
				pattern:  regexp.MustCompile(`(?i)SSL|TLS|connection failure|handshake`),
				classify: errEvent(common.WrapError(common.ErrConnectionFailed, "SSL/TLS connection failure")),
			},
			{
				pattern:  regexp.MustCompile(`(?i)certificate|cert.*invalid|verification failed`),
				classify: errEvent(common.WrapError(common.ErrConnectionFailed, "certificate validation failed")),
			},
			{
				pattern:  regexp.MustCompile(`(?i)failed to open tun|tun.*error|no tun device`),
				classify: errEvent(common.WrapError(common.ErrConnectionFailed, "failed to open TUN device, try running with elevated privileges")),
			},
			{
				pattern:  regexp.MustCompile(`(?i)cannot resolve|unknown host|name resolution|getaddrinfo failed|Name or service not known`),
				classify: errEvent(common.WrapError(common.ErrConnectionFailed, "DNS resolution failed, check server address")),
			},
		},
	}
}

// ParseLine classifies one stdout line.
func (p *Parser) ParseLine(line string) ConnectionEvent {
	return applyRules(p.stdoutRules, line)
}

// ParseError classifies one stderr line.
func (p *Parser) ParseError(line string) ConnectionEvent {
	return applyRules(p.stderrRules, line)
}

func applyRules(rules []parseRule, line string) ConnectionEvent {
	for _, rule := range rules {
		if !rule.pattern.MatchString(line) {
			continue
		}
		if ev, ok := rule.classify(rule.pattern, line); ok {
			return ev
		}
	}
	return UnrecognizedEvent{Line: line}
}

// classifyAddress handles both address-assignment formats. When the line
// also confirms the transport ("SSL connected" or DTLS status) the tunnel
// is fully up, otherwise only the device has been configured.
func classifyAddress(re *regexp.Regexp, line string) (ConnectionEvent, bool) {
	m := re.FindStringSubmatch(line)

	device := m[1]
	if device == "" {
		device = "tun"
	}

	ip, ok := cleanIP(m[2])
	if !ok {
		// A non-address token where an IP is expected degrades to
		// Unrecognized via rule fallthrough.
		return nil, false
	}

	if strings.Contains(line, "SSL connected") || strings.Contains(line, "DTLS") {
		return ConnectedEvent{IP: ip, Device: device}, true
	}
	return DeviceConfiguredEvent{Device: device, IP: ip}, true
}

// cleanIP strips trailing punctuation and validates the address.
func cleanIP(token string) (string, bool) {
	cleaned := strings.TrimSpace(strings.TrimRight(token, ",."))
	if net.ParseIP(cleaned) == nil {
		return "", false
	}
	return cleaned, true
}

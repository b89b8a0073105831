// Package vpn supervises an external VPN client process to provide
// resilient, observable connectivity.
//
// The package is organized around a small set of cooperating types:
//
//   - Parser classifies client output lines into typed ConnectionEvents
//   - Connector owns one child process end to end: spawn, stream
//     consumption, classification, termination
//   - Prober periodically checks network liveness independently of the
//     client's own reporting
//   - Controller drives autonomous recovery with bounded exponential
//     backoff
//   - Reaper sweeps orphaned client processes system-wide
//   - StateStore persists the connection descriptor for status queries
//   - Manager is the facade tying the pieces together
//
// # Usage
//
//	mgr, err := vpn.NewManager(cfg, credentials, bus, nil)
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Connect(ctx, false); err != nil {
//	    return err
//	}
//	defer mgr.Disconnect()
//
// Credentials are piped to the child's standard input and never appear
// in process arguments or the environment.
package vpn

// Package common provides shared constants, sentinel errors, logging, and
// utilities used throughout ocguard.
//
// This package is the foundation for cross-cutting concerns:
//
//   - Constants: timeouts, file names, and reconnection defaults
//   - Errors: sentinel errors for consistent error handling across packages
//   - Logger: leveled logging with file rotation
//   - Utils: config and data directory resolution
//
// # Usage
//
//	import "github.com/ocguard/ocguard/common"
//
//	// Use constants
//	timeout := common.ConnectTimeout
//
//	// Use logger
//	common.LogInfo("Connecting to %s", server)
//
//	// Check errors
//	if errors.Is(err, common.ErrAuthenticationFailed) {
//	    // Do not retry with the same credentials
//	}
package common

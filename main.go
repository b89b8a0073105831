// Package main provides the entry point for ocguard.
// ocguard supervises an OpenConnect VPN client: it spawns the client,
// classifies its output into lifecycle events, probes connectivity
// independently of the tunnel process, and reconnects with bounded
// exponential backoff when the connection degrades.
//
// Usage:
//
//	ocguard setup          configure server, account and credentials
//	ocguard connect        establish the connection and exit
//	ocguard daemon         establish the connection and keep supervising
//	ocguard status         show connection state and live health
//	ocguard disconnect     terminate the connection
//
// Environment:
//
//	The openconnect binary must be installed and on PATH.
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/ocguard/ocguard/cli"
	"github.com/ocguard/ocguard/common"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	if err := common.InitLogger(common.LogConfig{
		Level:       common.LevelInfo,
		EnableFile:  true,
		MaxFileSize: 5 * 1024 * 1024, // 5MB
		MaxBackups:  5,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	defer common.CloseLogger()

	if _, err := exec.LookPath(common.ClientExecutable); err != nil {
		common.LogError("%s is not installed on the system", common.ClientExecutable)
		fmt.Fprintf(os.Stderr, "Error: %s is not installed or not on PATH.\n", common.ClientExecutable)
		os.Exit(1)
	}

	root := cli.NewRootCommand()
	root.Version = fmt.Sprintf("%s (build %s, commit %s)", appVersion, buildTime, commitSHA)

	if err := root.Execute(); err != nil {
		common.LogError("%v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

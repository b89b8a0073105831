// Package cli implements the ocguard command-line surface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/config"
)

var (
	configPath string
	verbose    bool
)

// NewRootCommand builds the ocguard command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ocguard",
		Short:         "Supervise a resilient OpenConnect VPN session",
		Long:          "ocguard runs an OpenConnect client under supervision: it classifies the client's output into lifecycle events, probes connectivity independently, and reconnects automatically after transient failures.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				common.GetLogger().SetLevel(common.LevelDebug)
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newConnectCommand(),
		newDisconnectCommand(),
		newStatusCommand(),
		newResetCommand(),
		newHistoryCommand(),
		newSetupCommand(),
		newDaemonCommand(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

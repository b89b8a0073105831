package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ocguard/ocguard/events"
	"github.com/ocguard/ocguard/history"
	"github.com/ocguard/ocguard/vpn"
)

func newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Terminate the VPN connection and sweep orphaned clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			hist, err := history.Open()
			if err != nil {
				return err
			}
			defer hist.Close()

			mgr, err := vpn.NewManager(cfg, credentialProvider(), events.New(), hist)
			if err != nil {
				return err
			}

			if err := mgr.Disconnect(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected")
			return nil
		},
	}
}

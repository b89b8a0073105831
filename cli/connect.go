package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ocguard/ocguard/events"
	"github.com/ocguard/ocguard/history"
	"github.com/ocguard/ocguard/vpn"
)

func newConnectCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Establish the VPN connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server == "" || cfg.Username == "" {
				return fmt.Errorf("server and username are not configured, run 'ocguard setup' first")
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
			defer mgr.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Connecting to %s...\n", cfg.Server)
			if err := mgr.Connect(ctx, force); err != nil {
				return err
			}

			info, err := mgr.Status(ctx)
			if err == nil && info.State != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Connected: %s on %s (pid %d)\n",
					info.State.IP, info.State.Device, info.State.PID)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Connected")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'ocguard daemon' for supervised auto-reconnect.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "clean up any existing connection first")
	return cmd
}

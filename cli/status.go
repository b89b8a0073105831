package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocguard/ocguard/events"
	"github.com/ocguard/ocguard/vpn"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection state and live health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mgr, err := vpn.NewManager(cfg, credentialProvider(), events.New(), nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			info, err := mgr.Status(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if info.State == nil {
				fmt.Fprintln(out, "Status: not connected")
				return nil
			}

			if info.Live {
				fmt.Fprintln(out, "Status: connected")
			} else {
				fmt.Fprintln(out, "Status: stale (recorded process is gone)")
			}
			fmt.Fprintf(out, "  Server:    %s\n", cfg.Server)
			fmt.Fprintf(out, "  IP:        %s\n", info.State.IP)
			fmt.Fprintf(out, "  Device:    %s\n", info.State.Device)
			fmt.Fprintf(out, "  PID:       %d\n", info.State.PID)
			fmt.Fprintf(out, "  Since:     %s (%s)\n",
				info.State.ConnectedAt.Format(time.RFC3339),
				time.Since(info.State.ConnectedAt).Round(time.Second))

			if info.Probe != nil {
				if info.Probe.Success {
					fmt.Fprintf(out, "  Health:    ok (%v)\n", info.Probe.Latency.Round(time.Millisecond))
				} else {
					fmt.Fprintf(out, "  Health:    failing (%v)\n", info.Probe.Err)
				}
			}
			return nil
		},
	}
}

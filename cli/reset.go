package cli

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ocguard/ocguard/events"
	"github.com/ocguard/ocguard/vpn"
)

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear stale connection state and re-arm recovery",
		Long: "Removes a stale connection record left behind by a crash and " +
			"signals a running daemon (SIGHUP) to clear its Failed recovery " +
			"state and retry counters.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mgr, err := vpn.NewManager(cfg, credentialProvider(), events.New(), nil)
			if err != nil {
				return err
			}

			info, err := mgr.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if info.State != nil && !info.Live {
				if err := mgr.Disconnect(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Removed stale connection state")
			}

			if pid := findDaemonPID(); pid > 0 {
				if err := syscall.Kill(pid, syscall.SIGHUP); err == nil {
					fmt.Fprintf(out, "Signalled daemon (pid %d) to re-arm recovery\n", pid)
					return nil
				}
			}
			fmt.Fprintln(out, "No running daemon found; recovery state reset on next start")
			return nil
		},
	}
}

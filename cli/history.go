package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocguard/ocguard/history"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent connection sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded sessions")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONNECTED\tDURATION\tSERVER\tIP\tDEVICE\tEND")
			for _, e := range entries {
				duration := "active"
				end := "-"
				if e.EndedAt != nil {
					duration = e.EndedAt.Sub(e.ConnectedAt).Round(time.Second).String()
					end = e.EndReason
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ConnectedAt.Local().Format("2006-01-02 15:04"),
					duration, e.Server, e.IP, e.Device, end)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions to show")
	return cmd
}

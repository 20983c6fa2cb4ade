package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSweepCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Time out stale outreach and resolve fallback amounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			records, err := recordStoreFromViper()
			if err != nil {
				return err
			}
			defer records.Close()

			if days <= 0 {
				days = viper.GetInt("outreach.timeout_days")
			}
			// The sweep never talks to the thread store.
			manager := managerFromViper(logger, nil, records)
			res, err := manager.ProcessTimeoutSweep(cmd.Context(), days)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scanned: %d\ntimed out: %d\n", res.Scanned, res.TimedOut)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Timeout window in days (defaults to outreach.timeout_days)")
	return cmd
}

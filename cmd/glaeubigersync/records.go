package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect contact records",
	}
	cmd.AddCommand(newRecordsListCmd())
	return cmd
}

func newRecordsListCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "list <client-id>",
		Short: "List a client's contact records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loggerFromViper(); err != nil {
				return err
			}
			records, err := recordStoreFromViper()
			if err != nil {
				return err
			}
			defer records.Close()

			recs, err := records.ListByClient(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			if len(recs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no records")
				return nil
			}
			for _, rec := range recs {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(),
					"%s\t%s\t%s\t%.2f\t%s\t%s\n",
					rec.CreditorName,
					rec.ReferenceCode,
					rec.State,
					rec.FinalAmount,
					rec.AmountSource,
					rec.UpdatedAt.Format("2006-01-02 15:04"),
				)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print as JSON")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justLukaBB/glaeubiger-sync/clients"
	"github.com/justLukaBB/glaeubiger-sync/creditors"
	"github.com/justLukaBB/glaeubiger-sync/outreach"
)

func newInitiateCmd() *cobra.Command {
	var name string
	var email string
	var mentionsFile string
	var strategyName string
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "initiate <client-id>",
		Short: "Deduplicate a client's creditor mentions and open the outreach batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID := strings.TrimSpace(args[0])
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}

			mentions, err := readMentions(mentionsFile)
			if err != nil {
				return err
			}
			strategy, err := parseStrategy(strategyName)
			if err != nil {
				return err
			}
			identities := creditors.Deduplicate(mentions, strategy)
			if len(identities) == 0 {
				return fmt.Errorf("no creditor identities after deduplication")
			}
			logger.Info("creditors_deduplicated",
				"client_id", clientID,
				"mentions", len(mentions),
				"identities", len(identities))

			threadStore, err := threadStoreFromViper()
			if err != nil {
				return err
			}
			records, err := recordStoreFromViper()
			if err != nil {
				return err
			}
			defer records.Close()
			syn, err := synchronizerFromViper(logger)
			if err != nil {
				return err
			}

			manager := managerFromViper(logger, threadStore, records)
			client := outreach.ClientInfo{ID: clientID, Name: name, Email: email}
			result, err := manager.InitiateContact(cmd.Context(), client, identities)
			if err != nil {
				return err
			}

			err = syn.Update(cmd.Context(), clientID, func(agg *clients.Aggregate) error {
				agg.Name = name
				agg.Email = email
				agg.MergeIdentities(identities, strategy)
				return nil
			})
			if err != nil {
				return fmt.Errorf("updating client aggregate: %w", err)
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "parent thread: %s\nsent: %d\nfailed: %d\n",
				result.ParentThreadID, result.Sent, result.Failed)
			for _, o := range result.Outcomes {
				line := fmt.Sprintf("%s\t%s", o.CreditorName, o.State)
				if o.Error != "" {
					line += "\t" + o.Error
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Client display name")
	cmd.Flags().StringVar(&email, "email", "", "Client email address")
	cmd.Flags().StringVar(&mentionsFile, "mentions", "", "JSON file with extracted creditor mentions (- for stdin)")
	cmd.Flags().StringVar(&strategyName, "merge-strategy", "highest_amount", "Duplicate merge strategy: highest_amount|most_recent")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print as JSON")
	_ = cmd.MarkFlagRequired("mentions")
	return cmd
}

func readMentions(path string) ([]creditors.Mention, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading mentions: %w", err)
	}
	var mentions []creditors.Mention
	if err := json.Unmarshal(raw, &mentions); err != nil {
		return nil, fmt.Errorf("decoding mentions: %w", err)
	}
	return mentions, nil
}

func parseStrategy(name string) (creditors.MergeStrategy, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", "highest_amount":
		return creditors.HighestAmount{}, nil
	case "most_recent":
		return creditors.MostRecent{}, nil
	default:
		return nil, fmt.Errorf("unknown merge strategy %q", name)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/aegis-kb/aegis/internal/store"
)

var provFilter store.ProvenanceFilter

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Query the append-only provenance ledger",
	RunE:  runProvenance,
}

func init() {
	provenanceCmd.Flags().StringVar(&provFilter.ObjectID, "object", "", "filter by object id")
	provenanceCmd.Flags().StringVar(&provFilter.Action, "action", "", "filter by action (ingested, flagged, denied, validated, embedding_failed)")
	provenanceCmd.Flags().StringVar(&provFilter.Actor, "actor", "", "filter by actor")
	provenanceCmd.Flags().StringVar(&provFilter.Since, "since", "", "events at or after this ISO-8601 timestamp")
	provenanceCmd.Flags().StringVar(&provFilter.Until, "until", "", "events at or before this ISO-8601 timestamp")
	provenanceCmd.Flags().IntVar(&provFilter.Limit, "limit", 50, "maximum events returned")
}

func runProvenance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	events, err := db.QueryProvenance(provFilter)
	if err != nil {
		return err
	}
	if events == nil {
		events = []store.ProvenanceEvent{}
	}
	return printJSON(events)
}
